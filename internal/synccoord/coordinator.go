// Package synccoord reconciles playback progress and watch state between
// the local repository and the upstream media server: it pushes local
// progress and watch state upstream, lazily fetches markers the first time
// a title plays, and applies batches of progress rows to the local
// repository.
package synccoord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/homesections"
	"github.com/arsfeld/reelcache/internal/mediabackend"
)

const syncChunkSize = 50

// SyncProgress reports cumulative progress during a reconciliation pass, the
// way LibraryService.SyncLibrary streamed chunk progress in the browsing UI.
type SyncProgress struct {
	Synced int
	Total  int
	Errors int
	Done   bool
}

// Coordinator owns the push/pull of progress and watch state between the
// local repository and the configured media backend.
type Coordinator struct {
	repo    domain.Repository
	backend mediabackend.MediaBackend
	logger  *slog.Logger

	markerCacheMu sync.RWMutex
	markerCache   map[string][]domain.Marker

	titleCacheMu sync.RWMutex
	titleCache   []domain.MediaItem // flattened across every library gathered so far, for offline search

	diskCache *homesections.LibraryStore // optional; persists gathered libraries across restarts
}

// New creates a Coordinator bound to repo and backend.
func New(repo domain.Repository, backend mediabackend.MediaBackend, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		repo:        repo,
		backend:     backend,
		logger:      logger,
		markerCache: make(map[string][]domain.Marker),
	}
}

// WithDiskCache attaches a disk-backed library-listing store so gathered libraries
// survive a restart and GatherLibraryMovies can fall back to the last known
// listing when the backend is unreachable (spec §1 offline playback goal).
func (c *Coordinator) WithDiskCache(store *homesections.LibraryStore) *Coordinator {
	c.diskCache = store
	return c
}

// ReportProgress records a playback position locally and pushes it upstream.
// The local write always happens; the upstream push is best-effort so a
// server hiccup never blocks local resume tracking.
func (c *Coordinator) ReportProgress(ctx context.Context, mediaID, userID string, positionMS, durationMS int64) error {
	if err := c.repo.UpsertProgress(ctx, domain.PlaybackProgress{
		MediaID:       mediaID,
		UserID:        userID,
		PositionMS:    positionMS,
		DurationMS:    durationMS,
		LastWatchedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	if err := c.backend.ReportProgress(ctx, mediaID, positionMS, durationMS); err != nil {
		c.logger.Warn("failed to push progress upstream", "media_id", mediaID, "error", err)
	}
	return nil
}

// MarkWatched marks mediaID watched both locally and upstream.
func (c *Coordinator) MarkWatched(ctx context.Context, mediaID, userID string) error {
	if err := c.repo.MarkWatched(ctx, mediaID, userID); err != nil {
		return err
	}
	if err := c.backend.MarkWatched(ctx, mediaID); err != nil {
		c.logger.Warn("failed to push watched state upstream", "media_id", mediaID, "error", err)
	}
	return nil
}

// ClearProgress clears watch/resume state both locally and upstream.
func (c *Coordinator) ClearProgress(ctx context.Context, mediaID, userID string) error {
	if err := c.repo.ClearProgress(ctx, mediaID, userID); err != nil {
		return err
	}
	if err := c.backend.ClearProgress(ctx, mediaID); err != nil {
		c.logger.Warn("failed to clear progress upstream", "media_id", mediaID, "error", err)
	}
	return nil
}

// Markers returns mediaID's intro/credits markers. It checks the in-memory
// cache, then the repository, before asking the backend; a backend fetch is
// persisted to the repository so markers survive a process restart (spec
// §3, §4.H).
func (c *Coordinator) Markers(ctx context.Context, mediaID string) ([]domain.Marker, error) {
	c.markerCacheMu.RLock()
	if markers, ok := c.markerCache[mediaID]; ok {
		c.markerCacheMu.RUnlock()
		return markers, nil
	}
	c.markerCacheMu.RUnlock()

	if stored, ok, err := c.repo.GetMarkers(ctx, mediaID); err != nil {
		c.logger.Warn("failed to read stored markers", "media_id", mediaID, "error", err)
	} else if ok {
		c.cacheMarkers(mediaID, stored)
		return stored, nil
	}

	markers, err := c.backend.FetchMarkers(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	if err := c.repo.SaveMarkers(ctx, mediaID, markers); err != nil {
		c.logger.Warn("failed to persist markers", "media_id", mediaID, "error", err)
	}
	c.cacheMarkers(mediaID, markers)

	return markers, nil
}

func (c *Coordinator) cacheMarkers(mediaID string, markers []domain.Marker) {
	c.markerCacheMu.Lock()
	c.markerCache[mediaID] = markers
	c.markerCacheMu.Unlock()
}

// GatherLibraryMovies fetches every movie in libID, paginating through the
// backend with fetchAll and deduplicating titles that two sources reported
// slightly differently.
func (c *Coordinator) GatherLibraryMovies(ctx context.Context, libID string, onProgress func(loaded, total int)) ([]domain.MediaItem, error) {
	ptrs, err := fetchAll(ctx, func(ctx context.Context, offset, limit int) ([]*domain.MediaItem, int, error) {
		return c.backend.GetMovies(ctx, libID, offset, limit)
	}, defaultChunkSize, onProgress)
	if err != nil {
		if c.diskCache != nil {
			if cached, ok := c.diskCache.GetMovies(libID); ok {
				c.logger.Warn("library gather failed; serving last cached listing", "library", libID, "error", err)
				movies := make([]domain.MediaItem, len(cached))
				for i, m := range cached {
					movies[i] = *m
				}
				c.cacheTitles(movies)
				return movies, nil
			}
		}
		return nil, err
	}

	movies := make([]domain.MediaItem, 0, len(ptrs))
	for _, m := range ptrs {
		movies = append(movies, *m)
	}
	movies = DedupeByTitle(movies)

	if c.diskCache != nil {
		if err := c.diskCache.SaveMovies(libID, ptrs, time.Now().UTC().Unix()); err != nil {
			c.logger.Warn("failed to persist library listing", "library", libID, "error", err)
		}
	}
	c.cacheTitles(movies)

	return movies, nil
}

func (c *Coordinator) cacheTitles(movies []domain.MediaItem) {
	c.titleCacheMu.Lock()
	c.titleCache = append(c.titleCache, movies...)
	c.titleCacheMu.Unlock()
}

// SearchCached fuzzy-matches query against every title gathered by
// GatherLibraryMovies so far. Unlike backend.Search, this never touches the
// network: it is the search path used when the source is unreachable (spec
// §1's offline playback goal).
func (c *Coordinator) SearchCached(query string) []domain.MediaItem {
	c.titleCacheMu.RLock()
	defer c.titleCacheMu.RUnlock()

	titles := make([]string, len(c.titleCache))
	for i, item := range c.titleCache {
		titles[i] = item.Title
	}

	matches := FuzzySearch(query, titles)
	results := make([]domain.MediaItem, 0, len(matches))
	for _, m := range matches {
		results = append(results, c.titleCache[m.Index])
	}
	return results
}

// ReconcileBatch writes items into the local repository in batches of
// syncChunkSize, one transaction per batch, reporting cumulative progress on
// progressCh the way syncMovies streamed chunk progress during library sync.
// Nothing is pushed upstream. The channel is closed when the pass finishes.
func (c *Coordinator) ReconcileBatch(ctx context.Context, items []domain.PlaybackProgress, progressCh chan<- SyncProgress) {
	defer close(progressCh)

	total := len(items)
	synced := 0
	errs := 0

	for offset := 0; offset < total; offset += syncChunkSize {
		end := offset + syncChunkSize
		if end > total {
			end = total
		}
		batch := items[offset:end]

		if err := c.repo.BatchUpsertProgress(ctx, batch); err != nil {
			c.logger.Error("batch upsert progress failed", "error", err, "offset", offset)
			errs += len(batch)
		} else {
			synced += len(batch)
		}

		select {
		case progressCh <- SyncProgress{Synced: synced, Total: total, Errors: errs}:
		case <-ctx.Done():
			return
		}
	}

	progressCh <- SyncProgress{Synced: synced, Total: total, Errors: errs, Done: true}
}
