package domain

import "time"

// ConnectionType classifies how the proxy is currently reaching the media
// server (spec §4.G "Connection monitor").
type ConnectionType int

const (
	ConnectionUnknown ConnectionType = iota
	ConnectionLocal
	ConnectionRemote
	ConnectionRelay
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionLocal:
		return "local"
	case ConnectionRemote:
		return "remote"
	case ConnectionRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// ConnectionChanged is published whenever the connection monitor's
// classification of the active server URL changes.
type ConnectionChanged struct {
	Previous  ConnectionType
	Current   ConnectionType
	URL       string
	CheckedAt time.Time
}
