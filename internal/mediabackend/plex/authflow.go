package plex

import (
	"context"
	"log/slog"
	"time"

	"github.com/arsfeld/reelcache/internal/domain"
)

const pinClaimTimeout = 2 * time.Minute

// AuthFlow drives the Plex PIN-based OAuth flow: display a PIN, the user
// visits plex.tv/link and enters it, then we poll until it is claimed.
type AuthFlow struct {
	client *AuthClient
	logger *slog.Logger
}

// NewAuthFlow creates a new Plex PIN authentication flow.
func NewAuthFlow(logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlow{client: NewAuthClient(logger), logger: logger}
}

// Run implements domain.AuthFlow.
func (f *AuthFlow) Run(ctx context.Context, serverURL string) (*domain.AuthResult, error) {
	pin, id, err := f.client.GetPIN(ctx)
	if err != nil {
		return nil, err
	}

	f.logger.Info("plex pin ready, visit plex.tv/link", "pin", pin)

	token, err := f.client.WaitForPIN(ctx, id, pinClaimTimeout)
	if err != nil {
		return nil, err
	}

	if err := f.client.ValidateToken(ctx, token); err != nil {
		return nil, err
	}

	return &domain.AuthResult{Token: token}, nil
}
