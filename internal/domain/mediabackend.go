package domain

import "context"

// PlaybackRepository is the capability a media backend must expose for the
// progressive cache and sync coordinator: resolving an upstream stream URL,
// fetching skip markers, and pushing progress/watch-state back upstream
// (spec §6 "External Interfaces").
type PlaybackRepository interface {
	// ResolveStreamURL returns the direct, upstream-authenticated URL the
	// downloader should range-GET from for itemID at the given quality.
	ResolveStreamURL(ctx context.Context, itemID, quality string) (string, error)

	// FetchMarkers returns the intro/credits markers for itemID, if the
	// backend has computed them. An empty slice means no markers, not an error.
	FetchMarkers(ctx context.Context, itemID string) ([]Marker, error)

	// ReportProgress pushes a playback position update upstream so other
	// clients see resume points. positionMS/durationMS are both required.
	ReportProgress(ctx context.Context, itemID string, positionMS, durationMS int64) error

	// MarkWatched marks itemID fully watched upstream.
	MarkWatched(ctx context.Context, itemID string) error

	// ClearProgress resets itemID's upstream watch/resume state.
	ClearProgress(ctx context.Context, itemID string) error
}

// ConnectionTester probes reachability without a full client round trip.
// The connection monitor (internal/connmon) does not call it; it sends its
// own HTTP probes to each candidate endpoint.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}
