package domain

import "context"

// AuthResult is the outcome of a successful authentication flow.
type AuthResult struct {
	Token    string // Server access token
	UserID   string // Jellyfin only; empty for Plex
	Username string // Display name, when known
}

// AuthFlow drives an interactive authentication flow to completion.
// Plex implements this as a PIN flow (display a code, poll plex.tv until
// claimed); Jellyfin implements it as direct username/password exchange.
type AuthFlow interface {
	// Run executes the flow against the given server URL and returns the
	// resulting credentials, or an error if the flow could not complete.
	Run(ctx context.Context, serverURL string) (*AuthResult, error)
}
