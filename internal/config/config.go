package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SourceType identifies the kind of media server backing a source.
type SourceType string

const (
	SourceTypePlex     SourceType = "plex"
	SourceTypeJellyfin SourceType = "jellyfin"
	SourceTypeLocal    SourceType = "local"
)

// UpdateBehavior controls the self-update policy.
type UpdateBehavior string

const (
	UpdateManual      UpdateBehavior = "manual"
	UpdateAutoDownload UpdateBehavior = "auto_download"
	UpdateDisabled    UpdateBehavior = "disabled"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Update   UpdateConfig   `mapstructure:"update"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the configured media server.
type ServerConfig struct {
	Type     SourceType `mapstructure:"type"`
	URL      string     `mapstructure:"url"`
	Token    string     `mapstructure:"token"`
	UserID   string     `mapstructure:"user_id"`   // Jellyfin only
	Username string     `mapstructure:"username"`  // Jellyfin only (for display)
}

// CacheConfig controls the progressive media cache (spec §6 "cache" section).
type CacheConfig struct {
	ChunkSizeBytes        int64 `mapstructure:"chunk_size_bytes"`
	MaxConcurrentDownloads int  `mapstructure:"max_concurrent_downloads"`
	MaxTotalSizeBytes     int64 `mapstructure:"max_total_size_bytes"`
	MinFreeDiskBytes      int64 `mapstructure:"min_free_disk_bytes"`
	EnableStats           bool  `mapstructure:"enable_stats"`
	StatsIntervalSecs     int   `mapstructure:"stats_interval_secs"`
	Dir                   string `mapstructure:"dir"`
}

// PlaybackConfig controls resume/marker behavior (spec §6 "playback" section).
type PlaybackConfig struct {
	AutoResume                  bool `mapstructure:"auto_resume"`
	ResumeThresholdSeconds      int  `mapstructure:"resume_threshold_seconds"`
	ProgressUpdateIntervalSecs  int  `mapstructure:"progress_update_interval_seconds"`
	SkipIntroEnabled            bool `mapstructure:"skip_intro_enabled"`
	SkipCreditsEnabled          bool `mapstructure:"skip_credits_enabled"`
	AutoSkipIntro               bool `mapstructure:"auto_skip_intro"`
	AutoSkipCredits             bool `mapstructure:"auto_skip_credits"`
	MinimumMarkerDurationSecs   int  `mapstructure:"minimum_marker_duration_seconds"`
}

// UpdateConfig controls the self-update policy.
type UpdateConfig struct {
	Behavior UpdateBehavior `mapstructure:"behavior"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			ChunkSizeBytes:         10 * 1024 * 1024,
			MaxConcurrentDownloads: 3,
			MaxTotalSizeBytes:      50 * 1024 * 1024 * 1024,
			MinFreeDiskBytes:       1 * 1024 * 1024 * 1024,
			EnableStats:            true,
			StatsIntervalSecs:      60,
			Dir:                    defaultCacheDir(),
		},
		Playback: PlaybackConfig{
			AutoResume:                 true,
			ResumeThresholdSeconds:     5,
			ProgressUpdateIntervalSecs: 10,
			SkipIntroEnabled:           true,
			SkipCreditsEnabled:         true,
			MinimumMarkerDurationSecs:  5,
		},
		Update: UpdateConfig{
			Behavior: UpdateManual,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reelcache", "reelcache.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "reelcache", "reelcache.log")
	}
}

func defaultCacheDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reelcache", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".cache", "reelcache")
	}
}

// defaultConfigPath returns the default XDG-style config directory.
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reelcache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "reelcache")
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("REELCACHE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults.
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file.
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()

	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("server", cfg.Server)
	viper.Set("cache", cfg.Cache)
	viper.Set("playback", cfg.Playback)
	viper.Set("update", cfg.Update)
	viper.Set("logging", cfg.Logging)

	configFile := filepath.Join(configPath, "config.toml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL and token are set.
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Token != ""
}

// ChangedEvent is broadcast whenever the on-disk configuration is observed
// to have materially changed (content hash differs from the last load).
type ChangedEvent struct {
	Config *Config
}

// Watcher observes the config file for changes, debounces by content hash,
// and notifies subscribers with the freshly reloaded Config.
type Watcher struct {
	mu       sync.Mutex
	lastHash [32]byte
	subs     []chan<- ChangedEvent
}

// NewWatcher starts watching viper's active config file via fsnotify and
// returns a Watcher that subscribers can register against. It assumes
// LoadConfig has already been called once (viper has a config file loaded).
func NewWatcher() (*Watcher, error) {
	w := &Watcher{}

	cfgFile := viper.ConfigFileUsed()
	if cfgFile == "" {
		return w, nil
	}

	if data, err := os.ReadFile(cfgFile); err == nil {
		w.lastHash = sha256.Sum256(data)
	}

	viper.OnConfigChange(func(fsnotify.Event) {
		w.onConfigChange(cfgFile)
	})
	viper.WatchConfig()

	return w, nil
}

// Subscribe registers a channel to receive ChangedEvent notifications.
// Delivery blocks: on a full channel the notifier goroutine waits up to 5
// seconds per subscriber. An event a subscriber has not accepted within
// those 5 seconds is dropped for that subscriber.
func (w *Watcher) Subscribe(ch chan<- ChangedEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, ch)
}

func (w *Watcher) onConfigChange(cfgFile string) {
	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	subs := append([]chan<- ChangedEvent(nil), w.subs...)
	w.mu.Unlock()

	cfg := DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return
	}

	evt := ChangedEvent{Config: cfg}
	for _, ch := range subs {
		select {
		case ch <- evt:
		case <-time.After(5 * time.Second):
			// A stalled subscriber must not wedge the watcher forever.
		}
	}
}
