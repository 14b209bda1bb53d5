package chunkstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func TestWriteChunk_ReadRangeRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	payload := []byte("the quick brown fox")
	require.NoError(t, store.WriteChunk(1, 0, payload))

	got, err := store.ReadRange(1, 0, int64(len(payload)-1))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteChunk_AtOffsetLeavesSparseGapReadableAsZeros(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.CreateEntryFile(1, 100))
	require.NoError(t, store.WriteChunk(1, 50, []byte("hello")))

	gap, err := store.ReadRange(1, 0, 9)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 10), gap, "unwritten bytes in a truncated sparse file read back as zeros")

	written, err := store.ReadRange(1, 50, 54)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), written)
}

func TestReadRange_MissingFileReturnsNotFound(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadRange(999, 0, 9)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestDeleteEntryFile_MissingFileIsNotAnError(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.DeleteEntryFile(999))
}

func TestDeleteEntryFile_RemovesWrittenData(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.WriteChunk(1, 0, []byte("data")))
	require.NoError(t, store.DeleteEntryFile(1))

	_, err = store.ReadRange(1, 0, 3)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestFreeDiskBytes_ReturnsPositiveValue(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	free, err := store.FreeDiskBytes()
	require.NoError(t, err)
	assert.Positive(t, free)
}
