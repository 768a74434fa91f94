package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics aggregates the per-request, per-pool and per-adapter figures the
// orchestrator and proxy manager report on.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	AdapterRuns     *prometheus.CounterVec
	AdapterItems    *prometheus.GaugeVec
	PoolScore       *prometheus.GaugeVec
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec

	mu       sync.Mutex
	sessions map[string]*VenueSession
	started  time.Time
}

// VenueSession is the in-memory latency record kept alongside the registry
// for the end-of-run report.
type VenueSession struct {
	Requests  int64
	Failures  int64
	Latencies []float64 // seconds, most recent 100
}

// New builds a registry with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: make(map[string]*VenueSession),
		started:  time.Now(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skinarb_request_duration_seconds",
			Help:    "Outbound request duration by venue and result",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"venue", "result"}),
		AdapterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinarb_adapter_runs_total",
			Help: "Adapter run outcomes by venue and status",
		}, []string{"venue", "status"}),
		AdapterItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skinarb_adapter_items",
			Help: "Items persisted by the most recent run of each venue",
		}, []string{"venue"}),
		PoolScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skinarb_proxy_pool_score",
			Help: "Current health score per proxy pool",
		}, []string{"pool"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinarb_cache_hits_total",
			Help: "Cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skinarb_cache_misses_total",
			Help: "Cache misses by tier",
		}, []string{"tier"}),
	}

	m.registry.MustRegister(
		m.RequestDuration, m.AdapterRuns, m.AdapterItems,
		m.PoolScore, m.CacheHits, m.CacheMisses,
	)
	return m
}

// ObserveRequest records one outbound request's latency and outcome.
func (m *Metrics) ObserveRequest(venue string, d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.RequestDuration.WithLabelValues(venue, result).Observe(d.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.sessions[venue]
	if !found {
		s = &VenueSession{}
		m.sessions[venue] = s
	}
	s.Requests++
	if !ok {
		s.Failures++
	}
	s.Latencies = append(s.Latencies, d.Seconds())
	if len(s.Latencies) > 100 {
		s.Latencies = s.Latencies[len(s.Latencies)-100:]
	}
}

// RecordRun records an adapter run result.
func (m *Metrics) RecordRun(venue, status string, items int) {
	m.AdapterRuns.WithLabelValues(venue, status).Inc()
	m.AdapterItems.WithLabelValues(venue).Set(float64(items))
}

// SetPoolScore publishes a proxy pool's current score.
func (m *Metrics) SetPoolScore(pool string, score float64) {
	m.PoolScore.WithLabelValues(pool).Set(score)
}

// RecordCache counts a hit or miss against a cache tier.
func (m *Metrics) RecordCache(tier string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(tier).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(tier).Inc()
}

// SessionReport returns per-venue request counts and average latency for
// the time since Metrics was built.
func (m *Metrics) SessionReport() map[string]SessionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SessionEntry, len(m.sessions))
	for venue, s := range m.sessions {
		var avg float64
		if len(s.Latencies) > 0 {
			var sum float64
			for _, v := range s.Latencies {
				sum += v
			}
			avg = sum / float64(len(s.Latencies))
		}
		rate := 1.0
		if s.Requests > 0 {
			rate = float64(s.Requests-s.Failures) / float64(s.Requests)
		}
		out[venue] = SessionEntry{
			Requests:      s.Requests,
			Failures:      s.Failures,
			SuccessRate:   rate,
			AvgLatencySec: avg,
		}
	}
	return out
}

// SessionEntry is one venue's row in the session report.
type SessionEntry struct {
	Requests      int64   `json:"requests"`
	Failures      int64   `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencySec float64 `json:"avg_latency_sec"`
}

// Uptime is the elapsed time since the registry was built.
func (m *Metrics) Uptime() time.Duration { return time.Since(m.started) }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot gathers the current metric families, for inclusion in run
// summaries and debugging endpoints.
func (m *Metrics) Snapshot() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
