package mediabackend

import (
	"fmt"
	"log/slog"

	"github.com/arsfeld/reelcache/internal/config"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/mediabackend/jellyfin"
	"github.com/arsfeld/reelcache/internal/mediabackend/plex"
)

// MediaBackend combines every repository interface a media server backend
// must implement: browsing, metadata, search, playback resolution, markers,
// and progress/watch-state reporting.
type MediaBackend interface {
	domain.LibraryRepository   // Browsing: GetLibraries, GetMovies, GetShows, GetSeasons, GetEpisodes
	domain.MetadataRepository  // Playback: ResolvePlayableURL, MarkPlayed/Unplayed, GetNextEpisode
	domain.SearchRepository    // Search: Search(query) across all libraries
	domain.PlaybackRepository  // Cache: ResolveStreamURL, FetchMarkers, ReportProgress, MarkWatched, ClearProgress
	domain.ConnectionTester    // TestConnection, used by the connection monitor
}

// BackendConfig contains the configuration needed to create a MediaBackend.
type BackendConfig struct {
	Type     config.SourceType
	URL      string
	Token    string
	UserID   string // Jellyfin only
	Username string // Jellyfin only (for display)
}

// NewClient creates a new MediaBackend based on the server type. This
// factory function abstracts away the specific backend implementation.
func NewClient(cfg *BackendConfig, logger *slog.Logger) (MediaBackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend config is nil")
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("server token is required")
	}

	switch cfg.Type {
	case config.SourceTypePlex:
		return plex.NewClient(cfg.URL, cfg.Token, logger), nil

	case config.SourceTypeJellyfin:
		if cfg.UserID == "" {
			return nil, fmt.Errorf("jellyfin requires user ID")
		}
		return jellyfin.NewClient(cfg.URL, cfg.Token, cfg.UserID, logger), nil

	default:
		return nil, fmt.Errorf("unknown server type: %s", cfg.Type)
	}
}

// NewClientFromConfig creates a MediaBackend from the application config.
func NewClientFromConfig(cfg *config.Config, logger *slog.Logger) (MediaBackend, error) {
	return NewClient(&BackendConfig{
		Type:     cfg.Server.Type,
		URL:      cfg.Server.URL,
		Token:    cfg.Server.Token,
		UserID:   cfg.Server.UserID,
		Username: cfg.Server.Username,
	}, logger)
}
