// Package repository is the sqlite-backed implementation of
// domain.Repository: cache entries, their chunks, the download queue, and
// playback progress all live in one embedded database file.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arsfeld/reelcache/internal/domain"
)

// SQLiteRepository implements domain.Repository on top of database/sql
// with the pure-Go modernc.org/sqlite driver.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and migrates) the sqlite database at path.
func Open(path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, domain.NewCacheError("repository.Open", domain.KindIO, err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers; one connection avoids lock contention entirely

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.NewCacheError("repository.Open", domain.KindIO, err)
	}

	return &SQLiteRepository{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) FindOrCreateEntry(ctx context.Context, sourceID, mediaID, quality, upstreamURL string, chunkSizeBytes int64) (*domain.CacheEntry, error) {
	entry, err := r.getEntryByKey(ctx, sourceID, mediaID, quality)
	if err == nil {
		return entry, nil
	}
	if !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_entries (source_id, media_id, quality, upstream_url, last_accessed_at, chunk_size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sourceID, mediaID, quality, upstreamURL, now, chunkSizeBytes, now,
	)
	if err != nil {
		// A concurrent FindOrCreateEntry may have raced us to the UNIQUE
		// constraint; treat that as success and re-read.
		if existing, reerr := r.getEntryByKey(ctx, sourceID, mediaID, quality); reerr == nil {
			return existing, nil
		}
		return nil, domain.NewCacheError("FindOrCreateEntry", domain.KindConflict, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain.NewCacheError("FindOrCreateEntry", domain.KindIO, err)
	}

	return r.GetEntry(ctx, id)
}

func (r *SQLiteRepository) getEntryByKey(ctx context.Context, sourceID, mediaID, quality string) (*domain.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, media_id, quality, upstream_url, expected_total_size, is_complete,
		       last_accessed_at, error_message, mime_type, chunk_size_bytes, created_at
		FROM cache_entries WHERE source_id = ? AND media_id = ? AND quality = ?`,
		sourceID, mediaID, quality,
	)
	return scanEntry(row)
}

func (r *SQLiteRepository) GetEntry(ctx context.Context, entryID int64) (*domain.CacheEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_id, media_id, quality, upstream_url, expected_total_size, is_complete,
		       last_accessed_at, error_message, mime_type, chunk_size_bytes, created_at
		FROM cache_entries WHERE id = ?`, entryID,
	)
	return scanEntry(row)
}

func scanEntry(row *sql.Row) (*domain.CacheEntry, error) {
	var e domain.CacheEntry
	var isComplete int
	err := row.Scan(&e.ID, &e.SourceID, &e.MediaID, &e.Quality, &e.UpstreamURL, &e.ExpectedTotalSize,
		&isComplete, &e.LastAccessedAt, &e.ErrorMessage, &e.MIMEType, &e.ChunkSizeBytes, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.NewCacheError("GetEntry", domain.KindNotFound, err)
	}
	if err != nil {
		return nil, domain.NewCacheError("GetEntry", domain.KindIO, err)
	}
	e.IsComplete = isComplete != 0
	return &e, nil
}

func (r *SQLiteRepository) RecordChunk(ctx context.Context, chunk domain.Chunk) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chunks (entry_id, chunk_index, start_byte, end_byte, downloaded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entry_id, chunk_index) DO NOTHING`,
		chunk.EntryID, chunk.ChunkIndex, chunk.StartByte, chunk.EndByte, chunk.DownloadedAt,
	)
	if err != nil {
		return domain.NewCacheError("RecordChunk", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) ListChunks(ctx context.Context, entryID int64) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id, chunk_index, start_byte, end_byte, downloaded_at
		FROM chunks WHERE entry_id = ? ORDER BY start_byte`, entryID,
	)
	if err != nil {
		return nil, domain.NewCacheError("ListChunks", domain.KindIO, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.EntryID, &c.ChunkIndex, &c.StartByte, &c.EndByte, &c.DownloadedAt); err != nil {
			return nil, domain.NewCacheError("ListChunks", domain.KindIO, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// HasByteRange walks the sorted chunk list and checks for contiguous
// coverage of [start, end]; a gap anywhere in the range fails the check.
func (r *SQLiteRepository) HasByteRange(ctx context.Context, entryID int64, start, end int64) (bool, error) {
	chunks, err := r.ListChunks(ctx, entryID)
	if err != nil {
		return false, err
	}

	covered := start - 1
	for _, c := range chunks {
		if c.StartByte > covered+1 {
			break // gap
		}
		if c.EndByte > covered {
			covered = c.EndByte
		}
		if covered >= end {
			return true, nil
		}
	}
	return false, nil
}

func (r *SQLiteRepository) GetDownloadedBytes(ctx context.Context, entryID int64) (int64, error) {
	var total sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT SUM(end_byte - start_byte + 1) FROM chunks WHERE entry_id = ?`, entryID,
	).Scan(&total)
	if err != nil {
		return 0, domain.NewCacheError("GetDownloadedBytes", domain.KindIO, err)
	}
	return total.Int64, nil
}

func (r *SQLiteRepository) HasPendingDownloads(ctx context.Context, entryID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM download_queue WHERE entry_id = ? AND state IN ('queued', 'in_flight')`, entryID,
	).Scan(&count)
	if err != nil {
		return false, domain.NewCacheError("HasPendingDownloads", domain.KindIO, err)
	}
	return count > 0, nil
}

func (r *SQLiteRepository) UpdateEntryError(ctx context.Context, entryID int64, msg string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cache_entries SET error_message = ? WHERE id = ?`, msg, entryID)
	if err != nil {
		return domain.NewCacheError("UpdateEntryError", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateExpectedSize(ctx context.Context, entryID int64, size int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cache_entries SET expected_total_size = ? WHERE id = ?`, size, entryID)
	if err != nil {
		return domain.NewCacheError("UpdateExpectedSize", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkComplete(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cache_entries SET is_complete = 1 WHERE id = ?`, entryID)
	if err != nil {
		return domain.NewCacheError("MarkComplete", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cache_entries SET last_accessed_at = ? WHERE id = ?`, time.Now().UTC(), entryID)
	if err != nil {
		return domain.NewCacheError("Touch", domain.KindIO, err)
	}
	return nil
}

// EvictOldest deletes complete, non-pending entries in LRU order until
// targetBytes have been freed. Entries with pending downloads are skipped:
// evicting mid-download would race the downloader writing chunk files.
func (r *SQLiteRepository) EvictOldest(ctx context.Context, targetBytes int64) ([]domain.CacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, media_id, quality, upstream_url, expected_total_size, is_complete,
		       last_accessed_at, error_message, mime_type, chunk_size_bytes, created_at
		FROM cache_entries WHERE is_complete = 1 ORDER BY last_accessed_at ASC`,
	)
	if err != nil {
		return nil, domain.NewCacheError("EvictOldest", domain.KindIO, err)
	}

	var candidates []domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		var isComplete int
		if err := rows.Scan(&e.ID, &e.SourceID, &e.MediaID, &e.Quality, &e.UpstreamURL, &e.ExpectedTotalSize,
			&isComplete, &e.LastAccessedAt, &e.ErrorMessage, &e.MIMEType, &e.ChunkSizeBytes, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, domain.NewCacheError("EvictOldest", domain.KindIO, err)
		}
		e.IsComplete = true
		candidates = append(candidates, e)
	}
	rows.Close()

	var evicted []domain.CacheEntry
	var freed int64
	for _, e := range candidates {
		if freed >= targetBytes {
			break
		}
		pending, err := r.HasPendingDownloads(ctx, e.ID)
		if err != nil {
			return evicted, err
		}
		if pending {
			continue
		}

		downloaded, err := r.GetDownloadedBytes(ctx, e.ID)
		if err != nil {
			return evicted, err
		}

		if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE id = ?`, e.ID); err != nil {
			return evicted, domain.NewCacheError("EvictOldest", domain.KindIO, err)
		}

		evicted = append(evicted, e)
		freed += downloaded
	}

	return evicted, nil
}

func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]domain.CacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, media_id, quality, upstream_url, expected_total_size, is_complete,
		       last_accessed_at, error_message, mime_type, chunk_size_bytes, created_at
		FROM cache_entries ORDER BY last_accessed_at DESC`,
	)
	if err != nil {
		return nil, domain.NewCacheError("ListEntries", domain.KindIO, err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		var isComplete int
		if err := rows.Scan(&e.ID, &e.SourceID, &e.MediaID, &e.Quality, &e.UpstreamURL, &e.ExpectedTotalSize,
			&isComplete, &e.LastAccessedAt, &e.ErrorMessage, &e.MIMEType, &e.ChunkSizeBytes, &e.CreatedAt); err != nil {
			return nil, domain.NewCacheError("ListEntries", domain.KindIO, err)
		}
		e.IsComplete = isComplete != 0
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *SQLiteRepository) PurgeEntry(ctx context.Context, entryID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE id = ?`, entryID); err != nil {
		return domain.NewCacheError("PurgeEntry", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) EnqueueChunk(ctx context.Context, entryID, chunkIndex int64, priority domain.Priority) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO download_queue (entry_id, chunk_index, priority, enqueued_at, state, attempt_count)
		VALUES (?, ?, ?, ?, 'queued', 0)
		ON CONFLICT (entry_id, chunk_index) DO UPDATE SET priority = MIN(priority, excluded.priority)`,
		entryID, chunkIndex, int(priority), time.Now().UTC(),
	)
	if err != nil {
		return domain.NewCacheError("EnqueueChunk", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) DequeueNext(ctx context.Context) (*domain.DownloadQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT entry_id, chunk_index, priority, enqueued_at, state, attempt_count
		FROM download_queue WHERE state = 'queued'
		ORDER BY priority ASC, enqueued_at ASC LIMIT 1`,
	)

	var item domain.DownloadQueueItem
	var priority int
	var state string
	err := row.Scan(&item.EntryID, &item.ChunkIndex, &priority, &item.EnqueuedAt, &state, &item.AttemptCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewCacheError("DequeueNext", domain.KindIO, err)
	}
	item.Priority = domain.Priority(priority)
	item.State = domain.QueueInFlight

	if _, err := r.db.ExecContext(ctx, `UPDATE download_queue SET state = 'in_flight' WHERE entry_id = ? AND chunk_index = ?`,
		item.EntryID, item.ChunkIndex); err != nil {
		return nil, domain.NewCacheError("DequeueNext", domain.KindIO, err)
	}

	return &item, nil
}

func (r *SQLiteRepository) CompleteQueueItem(ctx context.Context, entryID, chunkIndex int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM download_queue WHERE entry_id = ? AND chunk_index = ?`, entryID, chunkIndex)
	if err != nil {
		return domain.NewCacheError("CompleteQueueItem", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) FailQueueItem(ctx context.Context, entryID, chunkIndex int64, maxAttempts int) error {
	var attempts int
	err := r.db.QueryRowContext(ctx, `SELECT attempt_count FROM download_queue WHERE entry_id = ? AND chunk_index = ?`,
		entryID, chunkIndex).Scan(&attempts)
	if err == sql.ErrNoRows {
		return nil // already removed, nothing to fail
	}
	if err != nil {
		return domain.NewCacheError("FailQueueItem", domain.KindIO, err)
	}

	attempts++
	state := "queued"
	if attempts >= maxAttempts {
		state = "failed"
	}

	_, err = r.db.ExecContext(ctx, `UPDATE download_queue SET attempt_count = ?, state = ? WHERE entry_id = ? AND chunk_index = ?`,
		attempts, state, entryID, chunkIndex)
	if err != nil {
		return domain.NewCacheError("FailQueueItem", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) CancelRequests(ctx context.Context, entryID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM download_queue WHERE entry_id = ? AND state = 'queued'`, entryID)
	if err != nil {
		return domain.NewCacheError("CancelRequests", domain.KindIO, err)
	}
	return nil
}

// suspiciousResetWindow bounds how recently a session must have advanced
// before a near-zero position report is treated as a stale/crashed client
// rather than a genuine restart from the beginning (spec §9).
const suspiciousResetWindow = 2 * time.Minute

func (r *SQLiteRepository) UpsertProgress(ctx context.Context, p domain.PlaybackProgress) error {
	existing, err := r.GetProgress(ctx, p.MediaID, p.UserID)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return err
	}

	if existing != nil && !p.Watched {
		advancedFarEnough := existing.PositionMS > 60_000
		droppedToNearZero := p.PositionMS < 5_000
		withinWindow := time.Since(existing.LastWatchedAt) < suspiciousResetWindow
		if advancedFarEnough && droppedToNearZero && withinWindow {
			return domain.NewCacheError("UpsertProgress", domain.KindConflict, fmt.Errorf("suspicious progress reset rejected"))
		}
	}

	return r.upsertProgressRow(ctx, p)
}

func (r *SQLiteRepository) upsertProgressRow(ctx context.Context, p domain.PlaybackProgress) error {
	watched := 0
	if p.Watched {
		watched = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playback_progress (media_id, user_id, position_ms, duration_ms, watched, view_count,
		                                 last_watched_at, play_queue_id, play_queue_version, play_queue_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_id, user_id) DO UPDATE SET
			position_ms = excluded.position_ms,
			duration_ms = excluded.duration_ms,
			watched = excluded.watched,
			last_watched_at = excluded.last_watched_at,
			play_queue_id = excluded.play_queue_id,
			play_queue_version = excluded.play_queue_version,
			play_queue_item_id = excluded.play_queue_item_id`,
		p.MediaID, p.UserID, p.PositionMS, p.DurationMS, watched, p.ViewCount, time.Now().UTC(),
		p.PlayQueueID, p.PlayQueueVersion, p.PlayQueueItemID,
	)
	if err != nil {
		return domain.NewCacheError("upsertProgressRow", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) BatchUpsertProgress(ctx context.Context, items []domain.PlaybackProgress) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewCacheError("BatchUpsertProgress", domain.KindIO, err)
	}

	for _, p := range items {
		watched := 0
		if p.Watched {
			watched = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO playback_progress (media_id, user_id, position_ms, duration_ms, watched, view_count,
			                                 last_watched_at, play_queue_id, play_queue_version, play_queue_item_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (media_id, user_id) DO UPDATE SET
				position_ms = excluded.position_ms,
				duration_ms = excluded.duration_ms,
				watched = excluded.watched,
				last_watched_at = excluded.last_watched_at`,
			p.MediaID, p.UserID, p.PositionMS, p.DurationMS, watched, p.ViewCount, time.Now().UTC(),
			p.PlayQueueID, p.PlayQueueVersion, p.PlayQueueItemID,
		)
		if err != nil {
			tx.Rollback()
			return domain.NewCacheError("BatchUpsertProgress", domain.KindIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewCacheError("BatchUpsertProgress", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) GetProgress(ctx context.Context, mediaID, userID string) (*domain.PlaybackProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT media_id, user_id, position_ms, duration_ms, watched, view_count, last_watched_at,
		       play_queue_id, play_queue_version, play_queue_item_id
		FROM playback_progress WHERE media_id = ? AND user_id = ?`, mediaID, userID,
	)

	var p domain.PlaybackProgress
	var watched int
	err := row.Scan(&p.MediaID, &p.UserID, &p.PositionMS, &p.DurationMS, &watched, &p.ViewCount,
		&p.LastWatchedAt, &p.PlayQueueID, &p.PlayQueueVersion, &p.PlayQueueItemID)
	if err == sql.ErrNoRows {
		return nil, domain.NewCacheError("GetProgress", domain.KindNotFound, err)
	}
	if err != nil {
		return nil, domain.NewCacheError("GetProgress", domain.KindIO, err)
	}
	p.Watched = watched != 0
	return &p, nil
}

func (r *SQLiteRepository) MarkWatched(ctx context.Context, mediaID, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE playback_progress SET watched = 1, view_count = view_count + 1, last_watched_at = ?
		WHERE media_id = ? AND user_id = ?`, time.Now().UTC(), mediaID, userID,
	)
	if err != nil {
		return domain.NewCacheError("MarkWatched", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) ClearProgress(ctx context.Context, mediaID, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM playback_progress WHERE media_id = ? AND user_id = ?`, mediaID, userID)
	if err != nil {
		return domain.NewCacheError("ClearProgress", domain.KindIO, err)
	}
	return nil
}

func (r *SQLiteRepository) GetMarkers(ctx context.Context, mediaID string) ([]domain.Marker, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, start_ms, end_ms FROM markers WHERE media_id = ?`, mediaID,
	)
	if err != nil {
		return nil, false, domain.NewCacheError("GetMarkers", domain.KindIO, err)
	}
	defer rows.Close()

	var markers []domain.Marker
	for rows.Next() {
		m := domain.Marker{MediaID: mediaID}
		if err := rows.Scan(&m.Kind, &m.StartMS, &m.EndMS); err != nil {
			return nil, false, domain.NewCacheError("GetMarkers", domain.KindIO, err)
		}
		markers = append(markers, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, domain.NewCacheError("GetMarkers", domain.KindIO, err)
	}
	if markers == nil {
		return nil, false, nil
	}
	return markers, true, nil
}

func (r *SQLiteRepository) SaveMarkers(ctx context.Context, mediaID string, markers []domain.Marker) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewCacheError("SaveMarkers", domain.KindIO, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM markers WHERE media_id = ?`, mediaID); err != nil {
		tx.Rollback()
		return domain.NewCacheError("SaveMarkers", domain.KindIO, err)
	}

	for _, m := range markers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO markers (media_id, kind, start_ms, end_ms) VALUES (?, ?, ?, ?)`,
			mediaID, m.Kind, m.StartMS, m.EndMS,
		); err != nil {
			tx.Rollback()
			return domain.NewCacheError("SaveMarkers", domain.KindIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewCacheError("SaveMarkers", domain.KindIO, err)
	}
	return nil
}

var _ domain.Repository = (*SQLiteRepository)(nil)
