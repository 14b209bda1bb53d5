// Package proxy serves HTTP range requests against the progressive media
// cache: it resolves a playback URL to a cache entry, requests missing
// chunks from the chunk manager, and streams bytes back to the player
// either as one satisfied range or progressively as chunks complete
// (spec §4.F). It always answers 206, even for a request with no Range
// header, so decoders that probe before seeking learn the stream is
// seekable from the first response.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arsfeld/reelcache/internal/chunkmanager"
	"github.com/arsfeld/reelcache/internal/chunkstore"
	"github.com/arsfeld/reelcache/internal/domain"
)

const (
	smallRangeMaxBytes = 50 << 20 // 50 MiB, spec §4.F small-vs-large classification boundary
	touchThrottle       = 5 * time.Second
)

// graduatedWaitTimeouts is the small-range wait schedule: 5s, 10s, 30s,
// spec §4.F "graduated timeout (5s → 10s → 30s) ... up to three rounds".
var graduatedWaitTimeouts = []time.Duration{5 * time.Second, 10 * time.Second, 30 * time.Second}

// ResolveFunc resolves (sourceID, mediaID, quality) to the upstream
// stream URL, normally backed by a MediaBackend's ResolveStreamURL.
type ResolveFunc func(ctx context.Context, sourceID, mediaID, quality string) (upstreamURL string, err error)

// SearchFunc answers an offline title search against whatever library
// listing the caller has gathered so far, normally backed by a
// Coordinator's SearchCached.
type SearchFunc func(query string) []domain.MediaItem

// Server is the range-serving HTTP proxy. It owns an ephemeral listener
// bound to 127.0.0.1 so only the local player can reach it.
type Server struct {
	repo     domain.Repository
	store    *chunkstore.Store
	chunkMgr *chunkmanager.Manager
	resolve  ResolveFunc
	search   SearchFunc
	logger   *slog.Logger
	stats    *Stats

	httpClient *http.Client

	touchMu   sync.Mutex
	lastTouch map[int64]time.Time

	httpServer *http.Server
	listener   net.Listener
}

// New constructs a Server. It does not start listening until Start is called.
func New(repo domain.Repository, store *chunkstore.Store, chunkMgr *chunkmanager.Manager, resolve ResolveFunc, stats *Stats, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = NewStats(nil)
	}
	s := &Server{
		repo:       repo,
		store:      store,
		chunkMgr:   chunkMgr,
		resolve:    resolve,
		logger:     logger,
		stats:      stats,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lastTouch:  make(map[int64]time.Time),
	}

	r := chi.NewRouter()
	r.Get("/cache/{sourceID}/{mediaID}/{quality}", s.handleCache)
	r.Get("/search", s.handleSearch)
	r.Handle("/metrics", promhttp.Handler())
	s.httpServer = &http.Server{Handler: r}

	return s
}

// WithSearch attaches an offline search function to the /search endpoint.
// Without one, /search answers 503.
func (s *Server) WithSearch(fn SearchFunc) *Server {
	s.search = fn
	return s
}

// Start binds an ephemeral local port and begins serving in the
// background. It returns the bound address so callers can hand it to the
// player.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("proxy: listen: %w", err)
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("proxy server exited", "error", err)
		}
	}()

	return ln.Addr().String(), nil
}

// Shutdown stops accepting new connections and drains in-flight responses,
// per spec §5's shutdown sequencing (the proxy drains before the
// downloader and repository do).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	s.stats.RequestsServed.Add(1)

	sourceID := chi.URLParam(r, "sourceID")
	mediaID := chi.URLParam(r, "mediaID")
	quality := chi.URLParam(r, "quality")

	entry, err := s.resolveEntry(r.Context(), sourceID, mediaID, quality)
	if err != nil {
		s.logger.Error("resolve entry failed", "source_id", sourceID, "media_id", mediaID, "error", err)
		http.Error(w, "upstream resolution failed", http.StatusBadGateway)
		return
	}

	if err := s.ensureExpectedSize(r.Context(), entry); err != nil {
		s.logger.Warn("could not determine upstream size, falling back to passthrough", "entry_id", entry.ID, "error", err)
		s.passthrough(w, r, entry, 0)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		s.stats.FullRequests.Add(1)
	} else {
		s.stats.RangeRequests.Add(1)
	}

	rng, err := parseRange(rangeHeader, entry.ExpectedTotalSize)
	if err != nil {
		if errors.Is(err, errRangeNotSatisfiable) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", entry.ExpectedTotalSize))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.touch(r.Context(), entry.ID)

	if rng.length() <= smallRangeMaxBytes {
		s.serveSmallRange(w, r, entry, rng)
		return
	}

	s.serveProgressive(w, r, entry, rng)
}

// handleSearch answers an offline title search over whatever the sync
// coordinator has gathered so far (spec §1's offline playback goal), so a
// player can still let a user find something to resume when the source is
// unreachable.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		http.Error(w, "search unavailable", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}

	results := s.search(query)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// resolveEntry resolves the upstream URL and finds or creates the backing
// cache entry (spec §4.F request-handling step 1).
func (s *Server) resolveEntry(ctx context.Context, sourceID, mediaID, quality string) (*domain.CacheEntry, error) {
	upstreamURL, err := s.resolve(ctx, sourceID, mediaID, quality)
	if err != nil {
		return nil, err
	}
	return s.repo.FindOrCreateEntry(ctx, sourceID, mediaID, quality, upstreamURL, s.chunkMgr.ChunkSize())
}

// ensureExpectedSize probes upstream with a one-byte range request to
// learn Content-Length when the entry doesn't know its total size yet
// (spec §4.F step 2).
func (s *Server) ensureExpectedSize(ctx context.Context, entry *domain.CacheEntry) error {
	if entry.ExpectedTotalSize > 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.UpstreamURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("upstream does not support range requests (status %d)", resp.StatusCode)
	}

	total := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if total <= 0 {
		return fmt.Errorf("upstream did not advertise a total size")
	}

	entry.ExpectedTotalSize = total
	return s.repo.UpdateExpectedSize(ctx, entry.ID, total)
}

// touch updates last_accessed_at at most once per touchThrottle interval
// per entry, per spec §4.F step 5 ("batched/throttled to avoid thrashing").
func (s *Server) touch(ctx context.Context, entryID int64) {
	s.touchMu.Lock()
	last, seen := s.lastTouch[entryID]
	due := !seen || time.Since(last) >= touchThrottle
	if due {
		s.lastTouch[entryID] = time.Now()
	}
	s.touchMu.Unlock()

	if due {
		if err := s.repo.Touch(ctx, entryID); err != nil {
			s.logger.Warn("touch failed", "entry_id", entryID, "error", err)
		}
	}
}

// serveSmallRange implements spec §4.F's small-range path: request every
// missing chunk at High priority, wait on the last one with a graduated
// timeout schedule, then emit the whole range as one 206 response.
func (s *Server) serveSmallRange(w http.ResponseWriter, r *http.Request, entry *domain.CacheEntry, rng byteRange) {
	ctx := r.Context()

	if err := s.chunkMgr.RequestChunksForRange(ctx, entry.ID, rng.start, rng.end, domain.PriorityHigh); err != nil {
		http.Error(w, "failed to schedule chunk downloads", http.StatusInternalServerError)
		return
	}

	lastChunkIdx := domain.ChunkIndexForByte(rng.end, entry.ChunkSizeBytes)

	available := false
	for _, timeout := range graduatedWaitTimeouts {
		ok, err := s.chunkMgr.WaitForChunk(ctx, entry.ID, lastChunkIdx, timeout)
		if err != nil {
			http.Error(w, "wait cancelled", http.StatusServiceUnavailable)
			return
		}
		if ok {
			available = true
			break
		}
	}

	has, err := s.repo.HasByteRange(ctx, entry.ID, rng.start, rng.end)
	if err != nil {
		http.Error(w, "repository error", http.StatusInternalServerError)
		return
	}
	if !available || !has {
		s.stats.CacheMisses.Add(1)
		w.Header().Set("Retry-After", "5")
		http.Error(w, "chunk not yet available", http.StatusServiceUnavailable)
		return
	}

	s.stats.CacheHits.Add(1)

	data, err := s.store.ReadRange(entry.ID, rng.start, rng.end)
	if err != nil {
		http.Error(w, "chunk store read failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, entry.ExpectedTotalSize))
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(data)), 10))
	w.Header().Set("Content-Type", contentTypeOrDefault(entry.MIMEType))
	w.WriteHeader(http.StatusPartialContent)
	n, _ := w.Write(data)
	s.stats.BytesServed.Add(int64(n))
}

// serveProgressive implements spec §4.F's large-range path: walk the
// entry's chunks in order, requesting each with Critical priority if
// missing, waiting for it, then writing it to the client as soon as it's
// available. Critical requests are cancelled if the client disconnects
// before the stream completes.
func (s *Server) serveProgressive(w http.ResponseWriter, r *http.Request, entry *domain.CacheEntry, rng byteRange) {
	ctx := r.Context()
	s.stats.ActiveStreams.Add(1)
	defer s.stats.ActiveStreams.Add(-1)

	firstIdx := domain.ChunkIndexForByte(rng.start, entry.ChunkSizeBytes)
	lastIdx := domain.ChunkIndexForByte(rng.end, entry.ChunkSizeBytes)

	var requestedCritical []int64
	defer func() {
		if ctx.Err() != nil && len(requestedCritical) > 0 {
			_ = s.chunkMgr.CancelRequests(context.Background(), entry.ID, requestedCritical)
		}
	}()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, entry.ExpectedTotalSize))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.length(), 10))
	w.Header().Set("Content-Type", contentTypeOrDefault(entry.MIMEType))
	w.WriteHeader(http.StatusPartialContent)

	flusher, canFlush := w.(http.Flusher)

	pos := rng.start
	for idx := firstIdx; idx <= lastIdx; idx++ {
		cStart, cEnd := domain.ChunkByteRange(idx, entry.ChunkSizeBytes, entry.ExpectedTotalSize)
		readStart, readEnd := cStart, cEnd
		if readStart < pos {
			readStart = pos
		}
		if readEnd > rng.end {
			readEnd = rng.end
		}

		has, err := s.repo.HasByteRange(ctx, entry.ID, cStart, cEnd)
		if err != nil {
			s.failMidStream(w, entry, pos)
			return
		}
		if !has {
			if err := s.chunkMgr.RequestChunk(ctx, entry.ID, idx, domain.PriorityCritical); err != nil {
				s.failMidStream(w, entry, pos)
				return
			}
			requestedCritical = append(requestedCritical, idx)

			for {
				ok, err := s.chunkMgr.WaitForChunk(ctx, entry.ID, idx, 30*time.Second)
				if err != nil {
					return // client disconnected or context cancelled
				}
				if ok {
					break
				}
			}
		}

		data, err := s.store.ReadRange(entry.ID, readStart, readEnd)
		if err != nil {
			s.failMidStream(w, entry, pos)
			return
		}

		n, err := w.Write(data)
		s.stats.BytesServed.Add(int64(n))
		if err != nil {
			return // client disconnected mid-write
		}
		if canFlush {
			flusher.Flush()
		}
		pos = readEnd + 1

		if ctx.Err() != nil {
			return
		}
	}
}

// failMidStream switches to passthrough for the remainder of a progressive
// stream after a repository lookup, a chunk request or a chunk-store read
// fails (spec §4.F step 4: "set a cache_failed flag ... switch to
// passthrough"). It records DISK_FULL as the entry's error whatever the cause.
func (s *Server) failMidStream(w http.ResponseWriter, entry *domain.CacheEntry, fromByte int64) {
	s.logger.Warn("cache lookup or read failed mid-stream, switching to passthrough", "entry_id", entry.ID, "from_byte", fromByte)
	_ = s.repo.UpdateEntryError(context.Background(), entry.ID, "DISK_FULL")
	s.streamUpstreamBytes(w, entry.UpstreamURL, fromByte, entry.ExpectedTotalSize-1)
}

// passthrough serves a request directly from upstream without touching the
// cache, used when upstream doesn't support range requests at all.
func (s *Server) passthrough(w http.ResponseWriter, r *http.Request, entry *domain.CacheEntry, fromByte int64) {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", contentTypeOrDefault(entry.MIMEType))
	w.WriteHeader(http.StatusPartialContent)
	s.streamUpstreamBytes(w, entry.UpstreamURL, fromByte, -1)
}

// streamUpstreamBytes opens a fresh upstream GET starting at fromByte and
// copies bytes directly to w, bypassing the chunk store entirely.
func (s *Server) streamUpstreamBytes(w http.ResponseWriter, upstreamURL string, fromByte, toByte int64) {
	req, err := http.NewRequest(http.MethodGet, upstreamURL, nil)
	if err != nil {
		return
	}
	if toByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", fromByte, toByte))
	} else {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", fromByte))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("passthrough upstream request failed", "error", err)
		return
	}
	defer resp.Body.Close()

	n, _ := io.Copy(w, resp.Body)
	s.stats.BytesServed.Add(n)
}

// parseContentRangeTotal extracts the total from "bytes a-b/total".
func parseContentRangeTotal(header string) int64 {
	if header == "" {
		return 0
	}
	idx := -1
	for i := len(header) - 1; i >= 0; i-- {
		if header[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(header)-1 {
		return 0
	}
	var total int64
	if _, err := fmt.Sscanf(header[idx+1:], "%d", &total); err != nil {
		return 0
	}
	return total
}

// contentTypeOrDefault falls back to a generic binary type when upstream
// never reported a MIME type for the entry, so Content-Type is always set
// (spec §6 marks it mandatory).
func contentTypeOrDefault(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
