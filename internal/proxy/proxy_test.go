package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/chunkmanager"
	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/downloader"
)

// fakeRepo is a minimal in-memory domain.Repository for proxy tests.
type fakeRepo struct {
	mu      sync.Mutex
	entries map[int64]*domain.CacheEntry
	chunks  map[int64][]domain.Chunk
	nextID  int64
	byKey   map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entries: make(map[int64]*domain.CacheEntry),
		chunks:  make(map[int64][]domain.Chunk),
		byKey:   make(map[string]int64),
	}
}

func (r *fakeRepo) FindOrCreateEntry(ctx context.Context, sourceID, mediaID, quality, upstreamURL string, chunkSizeBytes int64) (*domain.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sourceID + "|" + mediaID + "|" + quality
	if id, ok := r.byKey[key]; ok {
		return r.entries[id], nil
	}
	r.nextID++
	e := &domain.CacheEntry{
		ID:             r.nextID,
		SourceID:       sourceID,
		MediaID:        mediaID,
		Quality:        quality,
		UpstreamURL:    upstreamURL,
		ChunkSizeBytes: chunkSizeBytes,
	}
	r.entries[e.ID] = e
	r.byKey[key] = e.ID
	return e, nil
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
	return false, nil
}
func (r *fakeRepo) ListChunks(ctx context.Context, entryID int64) ([]domain.Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[entryID], nil
}
func (r *fakeRepo) UpdateEntryError(ctx context.Context, entryID int64, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[entryID]; ok {
		e.ErrorMessage = msg
	}
	return nil
}
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
	return nil
}
func (r *fakeRepo) DequeueNext(ctx context.Context) (*domain.DownloadQueueItem, error) {
	return nil, nil
}
func (r *fakeRepo) CompleteQueueItem(ctx context.Context, entryID, chunkIndex int64) error {
	return nil
}
func (r *fakeRepo) FailQueueItem(ctx context.Context, entryID, chunkIndex int64, maxAttempts int) error {
	return nil
}
func (r *fakeRepo) CancelRequests(ctx context.Context, entryID int64) error { return nil }
func (r *fakeRepo) UpsertProgress(ctx context.Context, p domain.PlaybackProgress) error {
	return nil
}
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

func newTestStack(t *testing.T, upstreamURL string) (*Server, *fakeRepo, context.CancelFunc) {
	t.Helper()
	repo := newFakeRepo()
	store, err := chunkstore.New(t.TempDir())
	require.NoError(t, err)
	dl := downloader.New(repo, store, 4, nil)
	mgr := chunkmanager.New(repo, dl, 10, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)

	resolve := func(ctx context.Context, sourceID, mediaID, quality string) (string, error) {
		return upstreamURL, nil
	}

	srv := New(repo, store, mgr, resolve, NewStats(nil), nil)
	return srv, repo, cancel
}

func TestHandleCache_SmallRangeServesFromCacheOnce206(t *testing.T) {
	payload := []byte("abcdefghij") // 10 bytes
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	srv, _, cancel := newTestStack(t, upstream.URL)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/cache/plex/media-1/original", nil)
	req.Header.Set("Range", "bytes=0-9")
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-9/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestHandleCache_NoRangeHeaderStillReturns206(t *testing.T) {
	payload := []byte("abcdefghij")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	srv, _, cancel := newTestStack(t, upstream.URL)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/cache/plex/media-1/original", nil)
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestHandleCache_RangeBeyondTotalSizeIs416(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer upstream.Close()

	srv, _, cancel := newTestStack(t, upstream.URL)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/cache/plex/media-1/original", nil)
	req.Header.Set("Range", "bytes=200-300")
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

func TestHandleCache_SetsNoStoreAndFallbackContentType(t *testing.T) {
	payload := []byte("abcdefghij")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload)
	}))
	defer upstream.Close()

	srv, _, cancel := newTestStack(t, upstream.URL)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/cache/plex/media-1/original", nil)
	req.Header.Set("Range", "bytes=0-9")
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"),
		"entry has no known MIME type, so a generic binary type must still be set")
}

func TestHandleSearch_ServiceUnavailableWithoutSearchFunc(t *testing.T) {
	srv, _, cancel := newTestStack(t, "http://unused")
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/search?q=robot", nil)
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSearch_ReturnsMatchesAsJSON(t *testing.T) {
	srv, _, cancel := newTestStack(t, "http://unused")
	defer cancel()

	srv.WithSearch(func(query string) []domain.MediaItem {
		return []domain.MediaItem{{ID: "1", Title: "Mr. Robot"}}
	})

	req := httptest.NewRequest(http.MethodGet, "/search?q=robot", nil)
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mr. Robot")
}

func TestHandleSearch_MissingQueryParamIsBadRequest(t *testing.T) {
	srv, _, cancel := newTestStack(t, "http://unused")
	defer cancel()
	srv.WithSearch(func(query string) []domain.MediaItem { return nil })

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	rec := httptest.NewRecorder()

	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
