// Package state derives a cache entry's lifecycle state from repository
// reads alone: no field on CacheEntry stores "state" directly, so the same
// three queries always produce the same answer (spec §4.C).
package state

import (
	"context"

	"github.com/arsfeld/reelcache/internal/domain"
)

// Compute derives entry's EntryState from its error message, completion
// flag, downloaded bytes, and pending-download queue rows; the expected size
// is copied into the snapshot but does not pick the state. It performs at
// most two repository reads (the caller has already read the entry), both
// idempotent, so calling it twice for the same entry in the same instant
// yields the same state.
func Compute(ctx context.Context, repo domain.Repository, entry domain.CacheEntry) (domain.StateSnapshot, error) {
	snap := domain.StateSnapshot{Entry: entry}

	if entry.ErrorMessage != "" {
		snap.State = domain.StateFailed
		return snap, nil
	}

	downloaded, err := repo.GetDownloadedBytes(ctx, entry.ID)
	if err != nil {
		return snap, err
	}
	snap.DownloadedBytes = downloaded
	snap.TotalBytes = entry.ExpectedTotalSize

	if entry.IsComplete {
		snap.State = domain.StateComplete
		return snap, nil
	}

	pending, err := repo.HasPendingDownloads(ctx, entry.ID)
	if err != nil {
		return snap, err
	}
	snap.HasPending = pending

	switch {
	case downloaded == 0 && !pending:
		snap.State = domain.StateNotStarted
	case downloaded == 0 && pending:
		snap.State = domain.StateInitializing
	case pending:
		snap.State = domain.StateDownloading
	default:
		snap.State = domain.StatePaused
	}

	return snap, nil
}
