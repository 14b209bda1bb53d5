package proxy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange_AbsentHeaderTreatedAsWholeFile(t *testing.T) {
	rng, err := parseRange("", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rng.start)
	assert.Equal(t, int64(99), rng.end)
}

func TestParseRange_ExplicitRange(t *testing.T) {
	rng, err := parseRange("bytes=10-19", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rng.start)
	assert.Equal(t, int64(19), rng.end)
	assert.Equal(t, int64(10), rng.length())
}

func TestParseRange_OpenEndedNormalizedToTotalSize(t *testing.T) {
	rng, err := parseRange("bytes=500-", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), rng.start)
	assert.Equal(t, int64(999), rng.end)
}

func TestParseRange_SuffixRange(t *testing.T) {
	rng, err := parseRange("bytes=-100", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(900), rng.start)
	assert.Equal(t, int64(999), rng.end)
}

func TestParseRange_ClampsEndToTotalSize(t *testing.T) {
	rng, err := parseRange("bytes=0-999999", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(99), rng.end)
}

func TestParseRange_BeyondTotalSizeIsNotSatisfiable(t *testing.T) {
	_, err := parseRange("bytes=200-300", 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errRangeNotSatisfiable))
}

func TestParseRange_MalformedHeader(t *testing.T) {
	_, err := parseRange("bytes=abc-def", 100)
	require.Error(t, err)
}
