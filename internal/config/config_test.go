package config

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsUnconfiguredUntilServerSet(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.IsConfigured(), "no server URL/token yet")

	cfg.Server.URL = "http://plex.local:32400"
	cfg.Server.Token = "abc123"
	assert.True(t, cfg.IsConfigured())
}

func TestDefaultConfig_CachePolicyIsSane(t *testing.T) {
	cfg := DefaultConfig()
	assert.Greater(t, cfg.Cache.ChunkSizeBytes, int64(0))
	assert.Greater(t, cfg.Cache.MaxConcurrentDownloads, 0)
	assert.Greater(t, cfg.Cache.MaxTotalSizeBytes, cfg.Cache.ChunkSizeBytes,
		"total cache budget must exceed a single chunk")
}

func TestWatcher_OnConfigChangeSkipsIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`[server]
url = "http://plex.local:32400"
`), 0644))

	w := &Watcher{}
	data, err := os.ReadFile(cfgFile)
	require.NoError(t, err)
	w.lastHash = sha256.Sum256(data)

	ch := make(chan ChangedEvent, 1)
	w.Subscribe(ch)

	w.onConfigChange(cfgFile)

	select {
	case <-ch:
		t.Fatal("unchanged file content must not notify subscribers")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcher_OnConfigChangeNotifiesOnContentChange(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`[server]
url = "http://plex.local:32400"
`), 0644))

	w := &Watcher{}
	data, err := os.ReadFile(cfgFile)
	require.NoError(t, err)
	w.lastHash = sha256.Sum256(data)

	ch := make(chan ChangedEvent, 1)
	w.Subscribe(ch)

	require.NoError(t, os.WriteFile(cfgFile, []byte(`[server]
url = "http://jellyfin.local:8096"
`), 0644))

	w.onConfigChange(cfgFile)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("changed file content must notify subscribers")
	}
}
