package proxy

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the proxy's atomic request/byte counters (spec §4.F
// "Statistics"). All fields are updated with atomic ops so handlers never
// take a lock just to bump a counter.
type Stats struct {
	RequestsServed atomic.Int64
	CacheHits      atomic.Int64
	CacheMisses    atomic.Int64
	ActiveStreams  atomic.Int64
	BytesServed    atomic.Int64
	RangeRequests  atomic.Int64
	FullRequests   atomic.Int64
}

// NewStats creates an empty Stats and registers it with reg under the
// "reelcache_proxy_" namespace. reg may be nil to skip registration (tests).
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{}
	if reg == nil {
		return s
	}

	gaugeFunc := func(name, help string, read func() int64) {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "reelcache",
			Subsystem: "proxy",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read()) }))
	}

	gaugeFunc("requests_served_total", "Total proxy requests served.", s.RequestsServed.Load)
	gaugeFunc("cache_hits_total", "Requests fully satisfied from cache without waiting.", s.CacheHits.Load)
	gaugeFunc("cache_misses_total", "Requests that had to wait for at least one chunk.", s.CacheMisses.Load)
	gaugeFunc("active_streams", "Currently open progressive streams.", s.ActiveStreams.Load)
	gaugeFunc("bytes_served_total", "Total bytes written to clients.", s.BytesServed.Load)
	gaugeFunc("range_requests_total", "Requests with an explicit Range header.", s.RangeRequests.Load)
	gaugeFunc("full_requests_total", "Requests without a Range header.", s.FullRequests.Load)

	return s
}

// ReportPeriodically logs a single-line summary every interval, but only
// when at least one request has been served since the last report (spec
// §4.F's "only when at least one request has been served" rule). It blocks
// until stop is closed.
func (s *Stats) ReportPeriodically(interval time.Duration, logger *slog.Logger, stop <-chan struct{}) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastServed int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			served := s.RequestsServed.Load()
			if served == lastServed {
				continue
			}
			lastServed = served
			logger.Info(fmt.Sprintf("proxy stats: served=%d hits=%d misses=%d active=%d bytes=%d range=%d full=%d",
				served, s.CacheHits.Load(), s.CacheMisses.Load(), s.ActiveStreams.Load(),
				s.BytesServed.Load(), s.RangeRequests.Load(), s.FullRequests.Load()))
		}
	}
}
