package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary for cache entries, chunks, the
// download queue, and playback progress (spec §4.A). A single
// implementation backs the daemon; sqlite is the reference engine.
type Repository interface {
	// FindOrCreateEntry returns the existing entry for (sourceID, mediaID,
	// quality), or creates one pointed at upstreamURL if none exists. This
	// is the single entry point into the cache for a playback request.
	FindOrCreateEntry(ctx context.Context, sourceID, mediaID, quality, upstreamURL string, chunkSizeBytes int64) (*CacheEntry, error)

	// GetEntry fetches an entry by ID.
	GetEntry(ctx context.Context, entryID int64) (*CacheEntry, error)

	// ListEntries returns every cache entry, ordered by LastAccessedAt
	// descending, for operator-facing status reporting.
	ListEntries(ctx context.Context) ([]CacheEntry, error)

	// PurgeEntry deletes entryID and its chunks/queue rows outright,
	// regardless of completeness or recency. The caller is responsible for
	// removing the backing chunk-store file.
	PurgeEntry(ctx context.Context, entryID int64) error

	// RecordChunk idempotently records a completed chunk download. Calling
	// it twice for the same (entryID, chunkIndex) is a no-op, not an error.
	RecordChunk(ctx context.Context, chunk Chunk) error

	// HasByteRange reports whether [start, end] is fully covered by
	// contiguous recorded chunks for entryID.
	HasByteRange(ctx context.Context, entryID int64, start, end int64) (bool, error)

	// GetDownloadedBytes returns the sum of chunk lengths recorded for entryID.
	GetDownloadedBytes(ctx context.Context, entryID int64) (int64, error)

	// HasPendingDownloads reports whether entryID has queued or in-flight
	// download-queue rows.
	HasPendingDownloads(ctx context.Context, entryID int64) (bool, error)

	// ListChunks returns all recorded chunks for entryID, ordered by StartByte.
	ListChunks(ctx context.Context, entryID int64) ([]Chunk, error)

	// UpdateEntryError records a failure message against entryID (or clears
	// it when msg is empty).
	UpdateEntryError(ctx context.Context, entryID int64, msg string) error

	// UpdateExpectedSize sets entryID's expected total size once the
	// downloader learns it from an upstream Content-Length/Content-Range.
	UpdateExpectedSize(ctx context.Context, entryID int64, size int64) error

	// MarkComplete flags entryID as fully downloaded.
	MarkComplete(ctx context.Context, entryID int64) error

	// Touch updates entryID's LastAccessedAt to now, used by eviction's LRU ordering.
	Touch(ctx context.Context, entryID int64) error

	// EvictOldest deletes the least-recently-accessed complete, non-pending
	// entries until at least targetBytes have been freed, returning the
	// entries it evicted so the caller can delete their chunk files too.
	EvictOldest(ctx context.Context, targetBytes int64) ([]CacheEntry, error)

	// EnqueueChunk adds a download-queue row for (entryID, chunkIndex) at
	// the given priority, or raises its priority if already queued.
	EnqueueChunk(ctx context.Context, entryID, chunkIndex int64, priority Priority) error

	// DequeueNext returns and marks in-flight the highest-priority queued
	// item, or (nil, nil) if the queue is empty.
	DequeueNext(ctx context.Context) (*DownloadQueueItem, error)

	// CompleteQueueItem removes a queue row after its chunk downloads successfully.
	CompleteQueueItem(ctx context.Context, entryID, chunkIndex int64) error

	// FailQueueItem increments the attempt count and returns the queue row
	// to Queued state, or marks it Failed if attempts are exhausted.
	FailQueueItem(ctx context.Context, entryID, chunkIndex int64, maxAttempts int) error

	// CancelRequests removes all queued (not in-flight) rows for entryID.
	CancelRequests(ctx context.Context, entryID int64) error

	// UpsertProgress records a playback position. A suspicious-reset guard
	// rejects updates where positionMS drops to near zero from a
	// significantly advanced position within a short window, unless Watched
	// is simultaneously set true (spec §9).
	UpsertProgress(ctx context.Context, p PlaybackProgress) error

	// BatchUpsertProgress applies a batch of progress updates in one
	// transaction, used by the sync coordinator to reconcile upstream state.
	BatchUpsertProgress(ctx context.Context, items []PlaybackProgress) error

	// GetProgress returns the stored progress for (mediaID, userID), or a
	// KindNotFound CacheError if none exists.
	GetProgress(ctx context.Context, mediaID, userID string) (*PlaybackProgress, error)

	// MarkWatched sets Watched true and increments ViewCount for (mediaID, userID).
	MarkWatched(ctx context.Context, mediaID, userID string) error

	// ClearProgress deletes the stored progress for (mediaID, userID).
	ClearProgress(ctx context.Context, mediaID, userID string) error

	// GetMarkers returns mediaID's stored intro/credits markers, or (nil,
	// false) if none have been persisted yet.
	GetMarkers(ctx context.Context, mediaID string) ([]Marker, bool, error)

	// SaveMarkers persists mediaID's markers, replacing any previously
	// stored set, so they survive a process restart (spec §3/§4.H).
	SaveMarkers(ctx context.Context, mediaID string, markers []Marker) error
}

// StateSnapshot is the derived, point-in-time view of a cache entry used by
// the state computer and exposed over the status CLI (spec §4.C).
type StateSnapshot struct {
	Entry           CacheEntry
	State           EntryState
	DownloadedBytes int64
	TotalBytes      int64
	HasPending      bool
	LastAccessedAgo time.Duration
}
