package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

// fakeRepo stubs only the two reads Compute performs; every other method
// panics if called, so a test that reaches one signals a bug in Compute.
type fakeRepo struct {
	domain.Repository
	downloaded int64
	pending    bool
}

func (r *fakeRepo) GetDownloadedBytes(ctx context.Context, entryID int64) (int64, error) {
	return r.downloaded, nil
}

func (r *fakeRepo) HasPendingDownloads(ctx context.Context, entryID int64) (bool, error) {
	return r.pending, nil
}

func TestCompute_ErrorMessageAlwaysWinsAsFailed(t *testing.T) {
	repo := &fakeRepo{downloaded: 500, pending: true}
	entry := domain.CacheEntry{ID: 1, ErrorMessage: "upstream 404", IsComplete: false}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, snap.State)
}

func TestCompute_CompleteEntryIsComplete(t *testing.T) {
	repo := &fakeRepo{downloaded: 1024, pending: false}
	entry := domain.CacheEntry{ID: 1, IsComplete: true, ExpectedTotalSize: 1024}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, snap.State)
	assert.EqualValues(t, 1024, snap.DownloadedBytes)
}

func TestCompute_NotStartedHasNoBytesAndNoPending(t *testing.T) {
	repo := &fakeRepo{downloaded: 0, pending: false}
	entry := domain.CacheEntry{ID: 1}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotStarted, snap.State)
}

func TestCompute_InitializingHasPendingButNoBytesYet(t *testing.T) {
	repo := &fakeRepo{downloaded: 0, pending: true}
	entry := domain.CacheEntry{ID: 1}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitializing, snap.State)
}

func TestCompute_DownloadingHasBytesAndPending(t *testing.T) {
	repo := &fakeRepo{downloaded: 512, pending: true}
	entry := domain.CacheEntry{ID: 1}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDownloading, snap.State)
}

func TestCompute_PausedHasBytesButNothingPending(t *testing.T) {
	repo := &fakeRepo{downloaded: 512, pending: false}
	entry := domain.CacheEntry{ID: 1}

	snap, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, snap.State)
}

func TestCompute_IsDeterministicForTheSameInputs(t *testing.T) {
	repo := &fakeRepo{downloaded: 512, pending: true}
	entry := domain.CacheEntry{ID: 1}

	first, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	second, err := Compute(context.Background(), repo, entry)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
