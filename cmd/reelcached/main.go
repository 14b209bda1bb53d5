package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arsfeld/reelcache/internal/chunkmanager"
	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/config"
	"github.com/arsfeld/reelcache/internal/connmon"
	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/downloader"
	"github.com/arsfeld/reelcache/internal/homesections"
	"github.com/arsfeld/reelcache/internal/logging"
	"github.com/arsfeld/reelcache/internal/mediabackend"
	"github.com/arsfeld/reelcache/internal/proxy"
	"github.com/arsfeld/reelcache/internal/repository"
	"github.com/arsfeld/reelcache/internal/synccoord"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("reelcached %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.SetupLogger(&cfg.Logging)
	if err != nil {
		logger = logging.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting reelcached", "version", Version)

	if !cfg.IsConfigured() {
		return runSetupFlow(cfg, logger)
	}

	backend, err := mediabackend.NewClient(&mediabackend.BackendConfig{
		Type:     cfg.Server.Type,
		URL:      cfg.Server.URL,
		Token:    cfg.Server.Token,
		UserID:   cfg.Server.UserID,
		Username: cfg.Server.Username,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create media backend: %w", err)
	}

	if err := os.MkdirAll(cfg.Cache.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	repo, err := repository.Open(filepath.Join(cfg.Cache.Dir, "reelcache.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	store, err := chunkstore.New(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to open chunk store: %w", err)
	}

	dl := downloader.New(repo, store, cfg.Cache.MaxConcurrentDownloads, logger)
	mgr := chunkmanager.New(repo, dl, cfg.Cache.ChunkSizeBytes, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mgr.Run(ctx)
	go logDownloadProgress(ctx, dl, logger)

	authHeader := "X-Plex-Token"
	if cfg.Server.Type == config.SourceTypeJellyfin {
		authHeader = "X-Emby-Token"
	}
	monitor := connmon.New([]connmon.Source{{
		ID:         cfg.Server.URL,
		Candidates: []connmon.Candidate{{URL: cfg.Server.URL, Type: domain.ConnectionLocal}},
		AuthToken:  cfg.Server.Token,
		AuthHeader: authHeader,
	}}, 0, logger)
	go monitor.Run(ctx)

	coord := synccoord.New(repo, backend, logger)
	if libStore, err := homesections.NewLibraryStore(cfg.Cache.Dir, cfg.Server.URL); err != nil {
		logger.Warn("library disk cache unavailable; offline library listing will be empty", "error", err)
	} else {
		coord = coord.WithDiskCache(libStore)
		defer libStore.Close()
	}
	go runLibrarySync(ctx, coord, backend, logger)
	go runDiskPressureLoop(ctx, cfg, repo, store, logger)

	watcher, err := config.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		changes := make(chan config.ChangedEvent, 1)
		watcher.Subscribe(changes)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-changes:
					logger.Info("config changed on disk; cache/server settings require a restart to take effect",
						"new_log_level", ev.Config.Logging.Level)
				}
			}
		}()
	}

	resolve := proxy.ResolveFunc(func(ctx context.Context, sourceID, mediaID, quality string) (string, error) {
		return backend.ResolveStreamURL(ctx, mediaID, quality)
	})

	stats := proxy.NewStats(prometheus.DefaultRegisterer)
	if cfg.Cache.EnableStats {
		go stats.ReportPeriodically(time.Duration(cfg.Cache.StatsIntervalSecs)*time.Second, logger, ctx.Done())
	}

	srv := proxy.New(repo, store, mgr, resolve, stats, logger).WithSearch(coord.SearchCached)
	addr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start proxy: %w", err)
	}
	logger.Info("proxy listening", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("proxy shutdown error", "error", err)
	}

	return nil
}

// runLibrarySync performs one best-effort library gather at startup so the
// coordinator's gathered-title cache (searched by SearchCached) is warm
// before the first search, logging cumulative counts the way syncMovies reported progress in
// the teacher's TUI.
func runLibrarySync(ctx context.Context, coord *synccoord.Coordinator, backend mediabackend.MediaBackend, logger *slog.Logger) {
	libraries, err := backend.GetLibraries(ctx)
	if err != nil {
		logger.Warn("library sync: failed to list libraries", "error", err)
		return
	}

	for _, lib := range libraries {
		movies, err := coord.GatherLibraryMovies(ctx, lib.ID, func(loaded, total int) {
			logger.Debug("library sync progress", "library", lib.Name, "loaded", loaded, "total", total)
		})
		if err != nil {
			logger.Warn("library sync failed", "library", lib.Name, "error", err)
			continue
		}
		logger.Info("library synced", "library", lib.Name, "items", len(movies))
	}
}

// logDownloadProgress subscribes to the downloader's lossy byte-progress
// ticks and logs them at debug level; a dropped tick under load is fine
// since the next one reports the up-to-date total anyway.
func logDownloadProgress(ctx context.Context, dl *downloader.Downloader, logger *slog.Logger) {
	ticks := make(chan downloader.DownloadProgress, 8)
	dl.SubscribeProgress(ticks)

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-ticks:
			logger.Debug("chunk downloaded",
				"entry_id", p.EntryID, "chunk_index", p.ChunkIndex,
				"bytes_written", p.BytesWritten, "downloaded_bytes", p.DownloadedBytes)
		}
	}
}

// runDiskPressureLoop periodically checks free disk space against the
// configured floor and evicts the least-recently-used complete entries
// until the floor is satisfied again (spec §4.A eviction, §9 min-free-disk).
func runDiskPressureLoop(ctx context.Context, cfg *config.Config, repo domain.Repository, store *chunkstore.Store, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			free, err := store.FreeDiskBytes()
			if err != nil {
				logger.Warn("disk pressure check failed", "error", err)
				continue
			}
			if int64(free) >= cfg.Cache.MinFreeDiskBytes {
				continue
			}

			deficit := cfg.Cache.MinFreeDiskBytes - int64(free)
			evicted, err := repo.EvictOldest(ctx, deficit)
			if err != nil {
				logger.Error("eviction failed", "error", err)
				continue
			}
			for _, e := range evicted {
				if err := store.DeleteEntryFile(e.ID); err != nil {
					logger.Warn("failed to delete evicted chunk file", "entry_id", e.ID, "error", err)
				}
			}
			if len(evicted) > 0 {
				logger.Info("evicted entries under disk pressure", "count", len(evicted), "target_bytes", deficit)
			}
		}
	}
}

// runSetupFlow handles the initial setup when not configured.
func runSetupFlow(cfg *config.Config, logger *slog.Logger) error {
	fmt.Println()
	fmt.Println("Welcome to reelcache!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	var serverURL string
	for serverURL == "" {
		fmt.Print("Enter your server URL (e.g., http://192.168.1.100:32400): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		serverURL = strings.TrimSpace(input)
	}

	var serverType config.SourceType
	for {
		fmt.Print("Server type (plex/jellyfin): ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "plex":
			serverType = config.SourceTypePlex
		case "jellyfin":
			serverType = config.SourceTypeJellyfin
		default:
			fmt.Println("Please enter \"plex\" or \"jellyfin\".")
			continue
		}
		break
	}

	cfg.Server.URL = serverURL
	cfg.Server.Type = serverType

	authFlow, err := mediabackend.NewAuthFlow(serverType, logger)
	if err != nil {
		return fmt.Errorf("failed to create auth flow: %w", err)
	}

	ctx := context.Background()
	result, err := authFlow.Run(ctx, serverURL)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	cfg.Server.Token = result.Token
	cfg.Server.UserID = result.UserID
	cfg.Server.Username = result.Username

	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved!")
	fmt.Println()
	fmt.Println("Run reelcached again to start the daemon.")

	return nil
}
