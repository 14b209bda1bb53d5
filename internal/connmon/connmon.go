// Package connmon periodically probes each configured media source's
// candidate endpoints and classifies which one is currently reachable,
// publishing a ConnectionChanged event on transition (spec §4.G).
package connmon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/events"
)

const (
	defaultProbeInterval = 10 * time.Second
	probeTimeout          = 5 * time.Second
)

// Candidate is one endpoint a source may be reached at, tagged with the
// connection type it represents. Candidates are probed in the order given,
// matching the teacher's tryJellyfin-then-tryPlex cascading probe shape:
// local endpoints should be listed first, then remote, then relay, since
// local wins over remote which wins over relay (spec §4.G).
type Candidate struct {
	URL  string
	Type domain.ConnectionType
}

// Source is one configured media source's probe target set.
type Source struct {
	ID         string
	Candidates []Candidate
	AuthToken  string
	AuthHeader string // e.g. "X-Plex-Token" or "X-Emby-Token"; probe omits auth if empty
}

// Monitor probes every configured Source on a ticker and fans out
// ConnectionChanged events on transition.
type Monitor struct {
	sources  []Source
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]domain.ConnectionChanged

	changed *events.LosslessBroadcaster[domain.ConnectionChanged]
}

// New creates a Monitor over sources, probing every interval (0 uses the
// spec default of 10s).
func New(sources []Source, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{
		sources:  sources,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		logger:   logger,
		lastSeen: make(map[string]domain.ConnectionChanged),
		changed:  events.NewLosslessBroadcaster(deliverWithTimeout[domain.ConnectionChanged]),
	}
}

func deliverWithTimeout[T any](ch chan<- T, val T) {
	select {
	case ch <- val:
	case <-time.After(5 * time.Second):
	}
}

// Subscribe registers ch to receive ConnectionChanged events.
func (m *Monitor) Subscribe(ch chan<- domain.ConnectionChanged) {
	m.changed.Subscribe(ch)
}

// Run probes every source once per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.probeAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	for _, src := range m.sources {
		m.probeOne(ctx, src)
	}
}

func (m *Monitor) probeOne(ctx context.Context, src Source) {
	winner, winURL, ok := m.findReachable(ctx, src)
	if !ok {
		m.logger.Warn("source unreachable on all candidate endpoints", "source_id", src.ID)
		return
	}

	m.mu.Lock()
	prev, hadPrev := m.lastSeen[src.ID]
	changed := !hadPrev || prev.Current != winner || prev.URL != winURL
	event := domain.ConnectionChanged{
		Previous:  domain.ConnectionUnknown,
		Current:   winner,
		URL:       winURL,
		CheckedAt: time.Now().UTC(),
	}
	if hadPrev {
		event.Previous = prev.Current
	}
	if changed {
		m.lastSeen[src.ID] = event
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if winner != domain.ConnectionLocal {
		m.logger.Warn("source connection is not local", "source_id", src.ID, "type", winner.String(), "url", winURL)
	} else {
		m.logger.Info("source connection established", "source_id", src.ID, "type", winner.String(), "url", winURL)
	}

	m.changed.Publish(event)
}

// findReachable tries each candidate in order, returning the first one
// that answers with a successful status code.
func (m *Monitor) findReachable(ctx context.Context, src Source) (domain.ConnectionType, string, bool) {
	for _, cand := range src.Candidates {
		if m.probe(ctx, cand.URL, src) {
			return cand.Type, cand.URL, true
		}
	}
	return domain.ConnectionUnknown, "", false
}

func (m *Monitor) probe(ctx context.Context, baseURL string, src Source) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, baseURL, nil)
	if err != nil {
		return false
	}
	if src.AuthToken != "" && src.AuthHeader != "" {
		req.Header.Set(src.AuthHeader, src.AuthToken)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// LastKnown returns the most recently observed ConnectionChanged for
// sourceID, if any probe has succeeded since startup.
func (m *Monitor) LastKnown(sourceID string) (domain.ConnectionChanged, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.lastSeen[sourceID]
	return c, ok
}
