package mediabackend

import (
	"fmt"
	"log/slog"

	"github.com/arsfeld/reelcache/internal/config"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/mediabackend/jellyfin"
	"github.com/arsfeld/reelcache/internal/mediabackend/plex"
)

// NewAuthFlow creates the appropriate AuthFlow based on server type.
//   - Plex: PIN-based OAuth flow (display PIN, user visits plex.tv/link, poll for token)
//   - Jellyfin: username/password authentication
func NewAuthFlow(serverType config.SourceType, logger *slog.Logger) (domain.AuthFlow, error) {
	switch serverType {
	case config.SourceTypePlex:
		return plex.NewAuthFlow(logger), nil

	case config.SourceTypeJellyfin:
		return jellyfin.NewAuthFlow(logger), nil

	default:
		return nil, fmt.Errorf("unknown server type: %s", serverType)
	}
}
