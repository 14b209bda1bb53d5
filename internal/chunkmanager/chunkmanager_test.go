package chunkmanager

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/downloader"
)

// fakeRepo is a minimal in-memory domain.Repository, mirroring the one in
// internal/downloader's own tests but kept package-local since Go test
// helpers aren't exported across packages.
type fakeRepo struct {
	mu      sync.Mutex
	entries map[int64]*domain.CacheEntry
	chunks  map[int64][]domain.Chunk
	queue   map[chunkKey]domain.QueueState
	failed  map[chunkKey]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries: make(map[int64]*domain.CacheEntry),
		chunks:  make(map[int64][]domain.Chunk),
		queue:   make(map[chunkKey]domain.QueueState),
		failed:  make(map[chunkKey]int),
	}
}

func (r *fakeRepo) FindOrCreateEntry(ctx context.Context, sourceID, mediaID, quality, upstreamURL string, chunkSizeBytes int64) (*domain.CacheEntry, error) {
	return nil, nil
}
func (r *fakeRepo) GetEntry(ctx context.Context, entryID int64) (*domain.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[entryID], nil
}
func (r *fakeRepo) ListEntries(ctx context.Context) ([]domain.CacheEntry, error) { return nil, nil }
func (r *fakeRepo) PurgeEntry(ctx context.Context, entryID int64) error          { return nil }
func (r *fakeRepo) RecordChunk(ctx context.Context, chunk domain.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chunks[chunk.EntryID] {
		if c.ChunkIndex == chunk.ChunkIndex {
			return nil
		}
	}
	r.chunks[chunk.EntryID] = append(r.chunks[chunk.EntryID], chunk)
	return nil
}
func (r *fakeRepo) HasByteRange(ctx context.Context, entryID int64, start, end int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chunks[entryID] {
		if c.StartByte <= start && c.EndByte >= end {
			return true, nil
		}
	}
	return false, nil
}
func (r *fakeRepo) GetDownloadedBytes(ctx context.Context, entryID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, c := range r.chunks[entryID] {
		total += c.Len()
	}
	return total, nil
}
func (r *fakeRepo) HasPendingDownloads(ctx context.Context, entryID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, st := range r.queue {
		if k.entryID == entryID && st != domain.QueueFailed {
			return true, nil
		}
	}
	return false, nil
}
func (r *fakeRepo) ListChunks(ctx context.Context, entryID int64) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[entryID], nil
}
func (r *fakeRepo) UpdateEntryError(ctx context.Context, entryID int64, msg string) error { return nil }
func (r *fakeRepo) UpdateExpectedSize(ctx context.Context, entryID int64, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[entryID]; ok {
		e.ExpectedTotalSize = size
	}
	return nil
}
func (r *fakeRepo) MarkComplete(ctx context.Context, entryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[entryID]; ok {
		e.IsComplete = true
	}
	return nil
}
func (r *fakeRepo) Touch(ctx context.Context, entryID int64) error { return nil }
func (r *fakeRepo) EvictOldest(ctx context.Context, targetBytes int64) ([]domain.CacheEntry, error) {
	return nil, nil
}
func (r *fakeRepo) EnqueueChunk(ctx context.Context, entryID, chunkIndex int64, priority domain.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue[chunkKey{entryID, chunkIndex}] = domain.QueueQueued
	return nil
}
func (r *fakeRepo) DequeueNext(ctx context.Context) (*domain.DownloadQueueItem, error) {
	return nil, nil
}
func (r *fakeRepo) CompleteQueueItem(ctx context.Context, entryID, chunkIndex int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queue, chunkKey{entryID, chunkIndex})
	return nil
}
func (r *fakeRepo) FailQueueItem(ctx context.Context, entryID, chunkIndex int64, maxAttempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := chunkKey{entryID, chunkIndex}
	r.failed[key]++
	if r.failed[key] >= maxAttempts {
		r.queue[key] = domain.QueueFailed
	}
	return nil
}
func (r *fakeRepo) CancelRequests(ctx context.Context, entryID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.queue {
		if k.entryID == entryID {
			delete(r.queue, k)
		}
	}
	return nil
}
func (r *fakeRepo) UpsertProgress(ctx context.Context, p domain.PlaybackProgress) error  { return nil }
func (r *fakeRepo) BatchUpsertProgress(ctx context.Context, items []domain.PlaybackProgress) error {
	return nil
}
func (r *fakeRepo) GetProgress(ctx context.Context, mediaID, userID string) (*domain.PlaybackProgress, error) {
	return nil, nil
}
func (r *fakeRepo) MarkWatched(ctx context.Context, mediaID, userID string) error   { return nil }
func (r *fakeRepo) ClearProgress(ctx context.Context, mediaID, userID string) error { return nil }
func (r *fakeRepo) GetMarkers(ctx context.Context, mediaID string) ([]domain.Marker, bool, error) {
	return nil, false, nil
}
func (r *fakeRepo) SaveMarkers(ctx context.Context, mediaID string, markers []domain.Marker) error {
	return nil
}

var _ domain.Repository = (*fakeRepo)(nil)

func TestRequestChunk_AlreadyAvailableIsNoOp(t *testing.T) {
	repo := newFakeRepo()
	entry := &domain.CacheEntry{ID: 1, ChunkSizeBytes: 10, ExpectedTotalSize: 10}
	repo.entries[1] = entry
	repo.chunks[1] = []domain.Chunk{{EntryID: 1, ChunkIndex: 0, StartByte: 0, EndByte: 9}}

	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 2, nil)
	m := New(repo, dl, 10, nil)

	require.NoError(t, m.RequestChunk(context.Background(), 1, 0, domain.PriorityHigh))

	assert.Equal(t, 0, m.pq.Len())
	assert.Empty(t, repo.queue)
}

func TestManager_DispatchesAndWaiterWakes(t *testing.T) {
	payload := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	repo := newFakeRepo()
	entry := &domain.CacheEntry{ID: 2, UpstreamURL: srv.URL, ChunkSizeBytes: 10, ExpectedTotalSize: 10}
	repo.entries[2] = entry

	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 2, nil)
	m := New(repo, dl, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.NoError(t, m.RequestChunk(ctx, 2, 0, domain.PriorityCritical))

	ok, err := m.WaitForChunk(ctx, 2, 0, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_WaitForChunk_TimesOutWithoutRemovingQueueEntry(t *testing.T) {
	repo := newFakeRepo()
	entry := &domain.CacheEntry{ID: 3, ChunkSizeBytes: 10, ExpectedTotalSize: 10}
	repo.entries[3] = entry

	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 2, nil)
	m := New(repo, dl, 10, nil)

	// Never call Run, so the request sits in the queue untouched.
	require.NoError(t, m.RequestChunk(context.Background(), 3, 0, domain.PriorityLow))

	ok, err := m.WaitForChunk(context.Background(), 3, 0, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	_, stillQueued := repo.queue[chunkKey{3, 0}]
	assert.True(t, stillQueued)
}

func TestCancelRequests_RemovesFromQueueBeforeDispatch(t *testing.T) {
	repo := newFakeRepo()
	entry := &domain.CacheEntry{ID: 4, ChunkSizeBytes: 10, ExpectedTotalSize: 20}
	repo.entries[4] = entry

	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 2, nil)
	m := New(repo, dl, 10, nil)

	require.NoError(t, m.RequestChunk(context.Background(), 4, 0, domain.PriorityLow))
	require.NoError(t, m.RequestChunk(context.Background(), 4, 1, domain.PriorityLow))
	assert.Equal(t, 2, m.pq.Len())

	require.NoError(t, m.CancelRequests(context.Background(), 4, []int64{0, 1}))
	assert.Equal(t, 0, m.pq.Len())
	assert.Empty(t, repo.queue)
}

func TestRequestChunksForRange_CoversAllIntersectingChunks(t *testing.T) {
	repo := newFakeRepo()
	entry := &domain.CacheEntry{ID: 5, ChunkSizeBytes: 10, ExpectedTotalSize: 35}
	repo.entries[5] = entry

	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 2, nil)
	m := New(repo, dl, 10, nil)

	require.NoError(t, m.RequestChunksForRange(context.Background(), 5, 5, 25, domain.PriorityMedium))

	assert.Len(t, repo.queue, 3) // chunks 0, 1, 2 intersect bytes [5, 25]
}
