// Package downloader issues upstream HTTP range GETs for missing chunks,
// writes the bytes through the chunk store, and records completion in the
// repository. It is the only component that mutates a cache entry's bytes
// on disk.
package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/events"
)

const (
	defaultMaxAttempts  = 3
	baseRetryDelay      = 500 * time.Millisecond
	emergencyCleanupTarget = 1 << 30 // 1 GiB, per spec's emergency_cleanup(target=1 GiB)
)

// ChunkCompleted is published after a chunk's bytes are durably recorded,
// so the chunk manager's waiters see both the event and the persisted row.
type ChunkCompleted struct {
	EntryID    int64
	ChunkIndex int64
}

// DownloadProgress is a high-frequency byte-progress tick published after
// every chunk write. A dropped tick is harmless since the next one
// supersedes it, so this rides the lossy broadcaster rather than the
// lossless one ChunkCompleted uses.
type DownloadProgress struct {
	EntryID         int64
	ChunkIndex      int64
	BytesWritten    int64
	DownloadedBytes int64
}

// Downloader fetches and persists chunks for cache entries. A semaphore
// bounds how many chunk downloads run concurrently across all entries.
type Downloader struct {
	repo        domain.Repository
	store       *chunkstore.Store
	httpClient  *http.Client
	logger      *slog.Logger
	sem         *semaphore.Weighted
	maxAttempts int
	completed   *events.LosslessBroadcaster[ChunkCompleted]
	progress    *events.LossyBroadcaster[DownloadProgress]
}

// Option configures a Downloader at construction.
type Option func(*Downloader)

// WithMaxAttempts overrides the default retry attempt count.
func WithMaxAttempts(n int) Option {
	return func(d *Downloader) { d.maxAttempts = n }
}

// WithHTTPClient overrides the default HTTP client, used in tests to point
// at an httptest.Server with a short timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.httpClient = c }
}

// New creates a Downloader bounded to maxConcurrent simultaneous in-flight
// chunk downloads (spec's "a configurable maximum... a semaphore enforces
// it").
func New(repo domain.Repository, store *chunkstore.Store, maxConcurrent int, logger *slog.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	d := &Downloader{
		repo:        repo,
		store:       store,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		maxAttempts: defaultMaxAttempts,
		completed:   events.NewLosslessBroadcaster(deliverWithTimeout[ChunkCompleted]),
		progress:    &events.LossyBroadcaster[DownloadProgress]{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// deliverWithTimeout blocks delivering val on ch for up to 5 seconds, the
// same per-subscriber safety valve the config watcher uses for
// ConfigChanged, so one stalled waiter can never wedge the downloader.
func deliverWithTimeout[T any](ch chan<- T, val T) {
	select {
	case ch <- val:
	case <-time.After(5 * time.Second):
	}
}

// Subscribe registers ch to receive ChunkCompleted events.
func (d *Downloader) Subscribe(ch chan<- ChunkCompleted) {
	d.completed.Subscribe(ch)
}

// SubscribeProgress registers ch to receive DownloadProgress ticks. Unlike
// Subscribe, a slow reader simply misses ticks rather than stalling
// downloads.
func (d *Downloader) SubscribeProgress(ch chan<- DownloadProgress) {
	d.progress.Subscribe(ch)
}

// chunkRange returns the inclusive [start, end] byte range covered by
// chunkIndex, clamped to expectedTotalSize when it's the final, possibly
// shorter chunk (spec §4.D "final chunk shorter than chunk_size").
func chunkRange(chunkIndex, chunkSizeBytes, expectedTotalSize int64) (int64, int64) {
	return domain.ChunkByteRange(chunkIndex, chunkSizeBytes, expectedTotalSize)
}

// DownloadChunk fetches chunkIndex of entry from upstream and persists it.
// It acquires the downloader's concurrency semaphore for the duration of
// the network request and write, blocking the caller (the per-request
// goroutine the chunk manager's dispatcher starts) if maxConcurrent
// downloads are already in flight.
func (d *Downloader) DownloadChunk(ctx context.Context, entry domain.CacheEntry, chunkIndex int64) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("downloader: acquire semaphore: %w", err)
	}
	defer d.sem.Release(1)

	start, end := chunkRange(chunkIndex, entry.ChunkSizeBytes, entry.ExpectedTotalSize)

	data, totalSize, err := d.fetchRangeWithRetry(ctx, entry, start, end)
	if err != nil {
		return d.handleFailure(ctx, entry, err)
	}

	if entry.ExpectedTotalSize == 0 && totalSize > 0 {
		if err := d.repo.UpdateExpectedSize(ctx, entry.ID, totalSize); err != nil {
			return err
		}
	}

	if err := d.writeChunk(ctx, entry, chunkIndex, start, end, data); err != nil {
		return err
	}

	if err := d.repo.RecordChunk(ctx, domain.Chunk{
		EntryID:      entry.ID,
		ChunkIndex:   chunkIndex,
		StartByte:    start,
		EndByte:      start + int64(len(data)) - 1,
		DownloadedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := d.repo.CompleteQueueItem(ctx, entry.ID, chunkIndex); err != nil {
		d.logger.Warn("failed to complete queue item", "entry_id", entry.ID, "chunk_index", chunkIndex, "error", err)
	}

	if err := d.maybeMarkComplete(ctx, entry); err != nil {
		return err
	}

	if downloaded, err := d.repo.GetDownloadedBytes(ctx, entry.ID); err == nil {
		d.progress.Publish(DownloadProgress{
			EntryID:         entry.ID,
			ChunkIndex:      chunkIndex,
			BytesWritten:    int64(len(data)),
			DownloadedBytes: downloaded,
		})
	}

	d.completed.Publish(ChunkCompleted{EntryID: entry.ID, ChunkIndex: chunkIndex})
	return nil
}

// maybeMarkComplete flags entry complete once its downloaded bytes equal
// its expected total size.
func (d *Downloader) maybeMarkComplete(ctx context.Context, entry domain.CacheEntry) error {
	if entry.ExpectedTotalSize == 0 {
		return nil
	}
	downloaded, err := d.repo.GetDownloadedBytes(ctx, entry.ID)
	if err != nil {
		return err
	}
	if downloaded >= entry.ExpectedTotalSize {
		return d.repo.MarkComplete(ctx, entry.ID)
	}
	return nil
}

// writeChunk writes data to the chunk store, running the disk-full
// emergency-cleanup-and-retry-once sequence from spec §4.D if the first
// write fails with KindDiskFull.
func (d *Downloader) writeChunk(ctx context.Context, entry domain.CacheEntry, chunkIndex, start, end int64, data []byte) error {
	err := d.store.WriteChunk(entry.ID, start, data)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.KindDiskFull) {
		return err
	}

	d.logger.Warn("disk full writing chunk, running emergency cleanup",
		"entry_id", entry.ID, "chunk_index", chunkIndex)

	if _, evictErr := d.repo.EvictOldest(ctx, emergencyCleanupTarget); evictErr != nil {
		d.logger.Error("emergency cleanup failed", "error", evictErr)
	}

	if retryErr := d.store.WriteChunk(entry.ID, start, data); retryErr != nil {
		_ = d.repo.UpdateEntryError(ctx, entry.ID, "DISK_FULL")
		return domain.NewCacheError("downloader.writeChunk", domain.KindDiskFull, domain.ErrDiskFull)
	}
	return nil
}

// handleFailure classifies a fetch failure: permanent failures (401/403/404
// terminal, permission-denied) record the entry's error immediately; 416
// range-not-satisfiable clears the entry's expected size instead of
// recording an error. Every error, these included, is returned to the
// caller.
func (d *Downloader) handleFailure(ctx context.Context, entry domain.CacheEntry, err error) error {
	switch {
	case domain.IsKind(err, domain.KindRangeNotSatisfiable):
		d.logger.Warn("range not satisfiable, clearing expected size", "entry_id", entry.ID)
		_ = d.repo.UpdateExpectedSize(ctx, entry.ID, 0)
		return err
	case domain.IsKind(err, domain.KindPermanentUpstream), domain.IsKind(err, domain.KindPermissionDenied):
		_ = d.repo.UpdateEntryError(ctx, entry.ID, err.Error())
		return err
	default:
		return err
	}
}

// fetchRangeWithRetry issues the ranged GET with exponential backoff and
// jitter, matching the jellyfin client's doRequest attempt/delay shape
// generalized to range semantics. It returns the response body bytes and,
// when present, the upstream's reported full content size (from
// Content-Range's total segment).
func (d *Downloader) fetchRangeWithRetry(ctx context.Context, entry domain.CacheEntry, start, end int64) ([]byte, int64, error) {
	var lastErr error

	for attempt := 0; attempt <= d.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, 0, domain.NewCacheError("downloader.fetchRange", domain.KindCancelled, ctx.Err())
		}

		if attempt > 0 {
			delay := jitteredBackoff(attempt)
			d.logger.Debug("retrying chunk download", "entry_id", entry.ID, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, 0, domain.NewCacheError("downloader.fetchRange", domain.KindCancelled, ctx.Err())
			}
		}

		data, total, retryable, err := d.fetchRangeOnce(ctx, entry, start, end)
		if err == nil {
			return data, total, nil
		}
		if !retryable {
			return nil, 0, err
		}
		lastErr = err
	}

	return nil, 0, domain.NewCacheError("downloader.fetchRange", domain.KindTimeout, fmt.Errorf("exhausted %d attempts: %w", d.maxAttempts, lastErr))
}

// fetchRangeOnce performs a single ranged GET attempt, classifying the
// result per spec §4.D's retry table: 401/403/404 terminal, 416 treated as
// corruption (not retried), 408/429/5xx/connection-reset retried.
func (d *Downloader) fetchRangeOnce(ctx context.Context, entry domain.CacheEntry, start, end int64) (data []byte, total int64, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.UpstreamURL, nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("downloader: build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, true, domain.NewCacheError("downloader.fetchRange", domain.KindIO, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent, http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, 0, true, domain.NewCacheError("downloader.fetchRange", domain.KindIO, readErr)
		}
		return body, parseContentRangeTotal(resp.Header.Get("Content-Range")), false, nil

	case http.StatusRequestedRangeNotSatisfiable:
		return nil, 0, false, domain.NewCacheError("downloader.fetchRange", domain.KindRangeNotSatisfiable, domain.ErrRangeNotSatisfiable)

	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, 0, false, domain.NewCacheError("downloader.fetchRange", domain.KindPermanentUpstream,
			fmt.Errorf("upstream status %d: %w", resp.StatusCode, domain.ErrItemNotFound))

	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return nil, 0, true, domain.NewCacheError("downloader.fetchRange", domain.KindTimeout,
			fmt.Errorf("upstream status %d", resp.StatusCode))

	default:
		if resp.StatusCode >= 500 {
			return nil, 0, true, domain.NewCacheError("downloader.fetchRange", domain.KindIO,
				fmt.Errorf("upstream status %d", resp.StatusCode))
		}
		return nil, 0, false, domain.NewCacheError("downloader.fetchRange", domain.KindPermanentUpstream,
			fmt.Errorf("unexpected upstream status %d", resp.StatusCode))
	}
}

// jitteredBackoff returns attempt's delay: 500ms, 1s, 2s, doubling each
// time, with up to 20% jitter so concurrent retries don't thunder together.
func jitteredBackoff(attempt int) time.Duration {
	base := baseRetryDelay * time.Duration(1<<(attempt-1))
	jitter := time.Duration(deterministicJitterFraction(attempt) * float64(base) * 0.2)
	return base + jitter
}

// deterministicJitterFraction derives a stable pseudo-random fraction in
// [0, 1) from attempt, avoiding math/rand's global state (and its need for
// a seed) for a one-off jitter term.
func deterministicJitterFraction(attempt int) float64 {
	h := attempt*2654435761 ^ (attempt << 13)
	return float64(uint32(h)%1000) / 1000.0
}

// parseContentRangeTotal extracts the total size from a "bytes a-b/total"
// Content-Range header, returning 0 if absent or malformed ("*").
func parseContentRangeTotal(header string) int64 {
	if header == "" {
		return 0
	}
	idx := -1
	for i := len(header) - 1; i >= 0; i-- {
		if header[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(header)-1 {
		return 0
	}
	var total int64
	_, err := fmt.Sscanf(header[idx+1:], "%d", &total)
	if err != nil {
		return 0
	}
	return total
}
