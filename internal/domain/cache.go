package domain

import "time"

// Priority is the ordinal label a caller attaches to a chunk request;
// smaller ordinal wins dispatch order (spec §4.E).
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// EntryState is the derived lifecycle state of a CacheEntry (spec §4.C).
type EntryState int

const (
	StateNotStarted EntryState = iota
	StateInitializing
	StateDownloading
	StatePaused
	StateComplete
	StateFailed
)

func (s EntryState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInitializing:
		return "initializing"
	case StateDownloading:
		return "downloading"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CacheEntry is one cached media stream, identified by (source, media, quality).
type CacheEntry struct {
	ID                 int64
	SourceID           string
	MediaID            string
	Quality            string
	UpstreamURL        string
	ExpectedTotalSize  int64 // 0 if unknown
	IsComplete         bool
	LastAccessedAt     time.Time
	ErrorMessage       string
	MIMEType           string
	ChunkSizeBytes     int64 // fixed at creation time, immutable thereafter (spec §9)
	CreatedAt          time.Time
}

// Chunk is one completed byte range inside an entry.
type Chunk struct {
	EntryID       int64
	ChunkIndex    int64
	StartByte     int64 // inclusive
	EndByte       int64 // inclusive
	DownloadedAt  time.Time
}

// Len returns the number of bytes covered by the chunk.
func (c Chunk) Len() int64 { return c.EndByte - c.StartByte + 1 }

// ChunkByteRange returns the inclusive [start, end] byte range covered by
// chunkIndex given a fixed chunkSizeBytes, clamped to expectedTotalSize when
// it is known and this is the final, possibly shorter chunk.
func ChunkByteRange(chunkIndex, chunkSizeBytes, expectedTotalSize int64) (start, end int64) {
	start = chunkIndex * chunkSizeBytes
	end = start + chunkSizeBytes - 1
	if expectedTotalSize > 0 && end > expectedTotalSize-1 {
		end = expectedTotalSize - 1
	}
	return start, end
}

// ChunkIndexForByte returns the chunk index containing byte offset b.
func ChunkIndexForByte(b, chunkSizeBytes int64) int64 {
	return b / chunkSizeBytes
}

// QueueState is the lifecycle state of a DownloadQueueItem.
type QueueState int

const (
	QueueQueued QueueState = iota
	QueueInFlight
	QueueFailed
)

func (s QueueState) String() string {
	switch s {
	case QueueQueued:
		return "queued"
	case QueueInFlight:
		return "in_flight"
	case QueueFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadQueueItem is one pending or in-flight chunk request.
type DownloadQueueItem struct {
	EntryID      int64
	ChunkIndex   int64
	Priority     Priority
	EnqueuedAt   time.Time
	State        QueueState
	AttemptCount int
}

// PlaybackProgress is one (media, user) playback position record.
type PlaybackProgress struct {
	MediaID         string
	UserID          string
	PositionMS      int64
	DurationMS      int64
	Watched         bool
	ViewCount       int
	LastWatchedAt   time.Time
	PlayQueueID        *int64
	PlayQueueVersion   *int64
	PlayQueueItemID    *int64
}

// MarkerKind distinguishes intro markers from credits markers.
type MarkerKind int

const (
	MarkerIntro MarkerKind = iota
	MarkerCredits
)

func (k MarkerKind) String() string {
	if k == MarkerCredits {
		return "credits"
	}
	return "intro"
}

// Marker is a labelled time range in a media item (skip-intro/skip-credits).
type Marker struct {
	MediaID  string
	Kind     MarkerKind
	StartMS  int64
	EndMS    int64
}

// DurationSeconds returns the marker's length in whole seconds, used against
// PlaybackConfig.MinimumMarkerDurationSecs.
func (m Marker) DurationSeconds() int64 {
	return (m.EndMS - m.StartMS) / 1000
}
