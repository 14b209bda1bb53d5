package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/config"
	"github.com/arsfeld/reelcache/internal/logging"
	"github.com/arsfeld/reelcache/internal/repository"
	"github.com/arsfeld/reelcache/internal/state"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("reelcachectl %s\n", Version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	if err := run(args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: reelcachectl <command> [args]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  status                    list cache entries and their download progress")
	fmt.Println("  evict --target-bytes N    evict least-recently-used complete entries until N bytes are freed")
	fmt.Println("  purge <entry-id>          delete one cache entry and its chunk file outright")
}

func run(cmd string, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NullLogger()

	repo, err := repository.Open(filepath.Join(cfg.Cache.Dir, "reelcache.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer repo.Close()

	store, err := chunkstore.New(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("failed to open chunk store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "status":
		return runStatus(ctx, repo)
	case "evict":
		return runEvict(ctx, repo, store, args)
	case "purge":
		return runPurge(ctx, repo, store, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runStatus(ctx context.Context, repo *repository.SQLiteRepository) error {
	entries, err := repo.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("no cache entries")
		return nil
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 100
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tMEDIA\tQUALITY\tDOWNLOADED\tTOTAL\tSTATE\tLAST ACCESSED")
	for _, e := range entries {
		snap, err := state.Compute(ctx, repo, e)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to compute state for entry %d: %v\n", e.ID, err)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.SourceID, e.MediaID, e.Quality,
			humanBytes(snap.DownloadedBytes), humanBytes(snap.TotalBytes),
			snap.State, e.LastAccessedAt.Format(time.RFC3339))
	}
	tw.Flush()

	if width < 80 {
		fmt.Println("(narrow terminal: columns may wrap)")
	}
	return nil
}

func runEvict(ctx context.Context, repo *repository.SQLiteRepository, store *chunkstore.Store, args []string) error {
	fs := flag.NewFlagSet("evict", flag.ExitOnError)
	targetBytes := fs.Int64("target-bytes", 0, "bytes to free by evicting least-recently-used complete entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *targetBytes <= 0 {
		return fmt.Errorf("--target-bytes must be positive")
	}

	evicted, err := repo.EvictOldest(ctx, *targetBytes)
	if err != nil {
		return fmt.Errorf("eviction failed: %w", err)
	}
	for _, e := range evicted {
		if err := store.DeleteEntryFile(e.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to delete chunk file for entry %d: %v\n", e.ID, err)
		}
	}
	fmt.Printf("evicted %d entries\n", len(evicted))
	return nil
}

func runPurge(ctx context.Context, repo *repository.SQLiteRepository, store *chunkstore.Store, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reelcachectl purge <entry-id>")
	}
	entryID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entry id %q: %w", args[0], err)
	}

	if err := repo.PurgeEntry(ctx, entryID); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	if err := store.DeleteEntryFile(entryID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to delete chunk file for entry %d: %v\n", entryID, err)
	}
	fmt.Printf("purged entry %d\n", entryID)
	return nil
}

func humanBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for d := n / unit; d >= unit; d /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
