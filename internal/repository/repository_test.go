package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	repo, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFindOrCreateEntry_IsIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	first, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1<<20)
	require.NoError(t, err)

	second, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1<<20)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestRecordChunk_IgnoresDuplicateIndex(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)

	chunk := domain.Chunk{EntryID: entry.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}
	require.NoError(t, repo.RecordChunk(ctx, chunk))
	require.NoError(t, repo.RecordChunk(ctx, chunk))

	chunks, err := repo.ListChunks(ctx, entry.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestHasByteRange_DetectsGap(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)

	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: entry.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}))
	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: entry.ID, ChunkIndex: 2, StartByte: 2048, EndByte: 3071, DownloadedAt: time.Now().UTC()}))

	covered, err := repo.HasByteRange(ctx, entry.ID, 0, 1023)
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = repo.HasByteRange(ctx, entry.ID, 0, 3071)
	require.NoError(t, err)
	assert.False(t, covered, "chunk 1 is missing, so the range is not contiguous")
}

func TestGetDownloadedBytes_SumsChunks(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)

	total, err := repo.GetDownloadedBytes(ctx, entry.ID)
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: entry.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}))
	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: entry.ID, ChunkIndex: 1, StartByte: 1024, EndByte: 2047, DownloadedAt: time.Now().UTC()}))

	total, err = repo.GetDownloadedBytes(ctx, entry.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2048, total)
}

func TestUpsertProgress_RejectsSuspiciousReset(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertProgress(ctx, domain.PlaybackProgress{
		MediaID: "media-1", UserID: "user-1", PositionMS: 600_000, DurationMS: 7_200_000,
	}))

	err := repo.UpsertProgress(ctx, domain.PlaybackProgress{
		MediaID: "media-1", UserID: "user-1", PositionMS: 1_000, DurationMS: 7_200_000,
	})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	progress, err := repo.GetProgress(ctx, "media-1", "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 600_000, progress.PositionMS, "the rejected reset must not have overwritten the stored position")
}

func TestUpsertProgress_AllowsResetWhenMarkedWatched(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertProgress(ctx, domain.PlaybackProgress{
		MediaID: "media-1", UserID: "user-1", PositionMS: 600_000, DurationMS: 7_200_000,
	}))

	require.NoError(t, repo.UpsertProgress(ctx, domain.PlaybackProgress{
		MediaID: "media-1", UserID: "user-1", PositionMS: 0, DurationMS: 7_200_000, Watched: true,
	}))

	progress, err := repo.GetProgress(ctx, "media-1", "user-1")
	require.NoError(t, err)
	assert.Zero(t, progress.PositionMS)
}

func TestEvictOldest_SkipsEntriesWithPendingDownloads(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	stale, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)
	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: stale.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}))
	require.NoError(t, repo.MarkComplete(ctx, stale.ID))
	require.NoError(t, repo.EnqueueChunk(ctx, stale.ID, 1, domain.PriorityLow))

	fresh, err := repo.FindOrCreateEntry(ctx, "plex", "media-2", "original", "http://upstream/2", 1024)
	require.NoError(t, err)
	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: fresh.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}))
	require.NoError(t, repo.MarkComplete(ctx, fresh.ID))

	evicted, err := repo.EvictOldest(ctx, 1024)
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, fresh.ID, evicted[0].ID, "the entry with a pending download must be skipped even though it's older")
}

func TestPurgeEntry_CascadesChunksAndQueue(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)
	require.NoError(t, repo.RecordChunk(ctx, domain.Chunk{EntryID: entry.ID, ChunkIndex: 0, StartByte: 0, EndByte: 1023, DownloadedAt: time.Now().UTC()}))
	require.NoError(t, repo.EnqueueChunk(ctx, entry.ID, 1, domain.PriorityHigh))

	require.NoError(t, repo.PurgeEntry(ctx, entry.ID))

	_, err = repo.GetEntry(ctx, entry.ID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	chunks, err := repo.ListChunks(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks, "chunks must cascade-delete with their entry")

	pending, err := repo.HasPendingDownloads(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, pending, "queue rows must cascade-delete with their entry")
}

func TestListEntries_OrdersByLastAccessedDescending(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	older, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)
	newer, err := repo.FindOrCreateEntry(ctx, "plex", "media-2", "original", "http://upstream/2", 1024)
	require.NoError(t, err)

	require.NoError(t, repo.Touch(ctx, older.ID))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Touch(ctx, newer.ID))

	entries, err := repo.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, newer.ID, entries[0].ID)
	assert.Equal(t, older.ID, entries[1].ID)
}

func TestDequeueNext_OrdersByPriorityThenEnqueueTime(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)

	require.NoError(t, repo.EnqueueChunk(ctx, entry.ID, 0, domain.PriorityLow))
	require.NoError(t, repo.EnqueueChunk(ctx, entry.ID, 1, domain.PriorityCritical))

	item, err := repo.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.EqualValues(t, 1, item.ChunkIndex, "the critical-priority chunk must dispatch first")
	assert.Equal(t, domain.QueueInFlight, item.State)
}

func TestFailQueueItem_MarksFailedAfterMaxAttempts(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	entry, err := repo.FindOrCreateEntry(ctx, "plex", "media-1", "original", "http://upstream/1", 1024)
	require.NoError(t, err)
	require.NoError(t, repo.EnqueueChunk(ctx, entry.ID, 0, domain.PriorityMedium))

	require.NoError(t, repo.FailQueueItem(ctx, entry.ID, 0, 2))
	require.NoError(t, repo.FailQueueItem(ctx, entry.ID, 0, 2))

	// Still present after the second failure (attempt_count == maxAttempts
	// marks it "failed" rather than removing the row).
	pending, err := repo.HasPendingDownloads(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, pending, "a failed queue item is no longer 'queued' or 'in_flight'")
}
