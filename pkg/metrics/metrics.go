// Package metrics defines the Prometheus metric collectors used by the index
// engine and its service surfaces, and serves them for scraping.
// Every recording method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the indexing service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	UpdatesTotal         *prometheus.CounterVec
	CommitDuration       *prometheus.HistogramVec
	KeyMutationsTotal    *prometheus.CounterVec
	RebuildRequestsTotal *prometheus.CounterVec
	RebuildStatus        *prometheus.GaugeVec
	BufferedKeys         *prometheus.GaugeVec
	CacheEvictionsTotal  *prometheus.CounterVec
	IntegrityViolations  *prometheus.CounterVec
	IndexFlushesTotal    *prometheus.CounterVec
	QueryCacheTotal      *prometheus.CounterVec
	CircuitState         *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_updates_total",
				Help: "Index update commits by result (ok, unchanged, failed, canceled).",
			},
			[]string{"index", "result"},
		),
		CommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_commit_duration_seconds",
				Help:    "Time spent holding the index write lock during a commit.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"index"},
		),
		KeyMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_key_mutations_total",
				Help: "Per-key storage mutations applied by commits (add, remove).",
			},
			[]string{"index", "op"},
		),
		RebuildRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuild_requests_total",
				Help: "Rebuild requests by reason (storage, canceled, other).",
			},
			[]string{"index", "reason"},
		),
		RebuildStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_rebuild_status",
				Help: "Rebuild status (0=ok, 1=requires rebuild, 2=rebuild in progress).",
			},
			[]string{"index"},
		),
		BufferedKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_buffered_keys",
				Help: "Keys with mutations buffered in memory and not yet flushed.",
			},
			[]string{"index"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_cache_evictions_total",
				Help: "Low-memory cache eviction attempts by result (evicted, skipped).",
			},
			[]string{"index", "result"},
		),
		IntegrityViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_value_contract_violations_total",
				Help: "Values failing the equality or serialization round-trip contract.",
			},
			[]string{"index"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"index", "status"},
		),
		QueryCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_query_cache_total",
				Help: "Query result cache lookups by outcome (hit, miss).",
			},
			[]string{"index", "outcome"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.UpdatesTotal,
		m.CommitDuration,
		m.KeyMutationsTotal,
		m.RebuildRequestsTotal,
		m.RebuildStatus,
		m.BufferedKeys,
		m.CacheEvictionsTotal,
		m.IntegrityViolations,
		m.IndexFlushesTotal,
		m.QueryCacheTotal,
		m.CircuitState,
	)

	return m
}

func (m *Metrics) ObserveCommit(index, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(index, result).Inc()
	m.CommitDuration.WithLabelValues(index).Observe(took.Seconds())
}

func (m *Metrics) AddKeyMutations(index string, added, removed int) {
	if m == nil {
		return
	}
	if added > 0 {
		m.KeyMutationsTotal.WithLabelValues(index, "add").Add(float64(added))
	}
	if removed > 0 {
		m.KeyMutationsTotal.WithLabelValues(index, "remove").Add(float64(removed))
	}
}

func (m *Metrics) RebuildRequested(index, reason string) {
	if m == nil {
		return
	}
	m.RebuildRequestsTotal.WithLabelValues(index, reason).Inc()
}

func (m *Metrics) SetRebuildStatus(index string, status int32) {
	if m == nil {
		return
	}
	m.RebuildStatus.WithLabelValues(index).Set(float64(status))
}

func (m *Metrics) SetBufferedKeys(index string, n int) {
	if m == nil {
		return
	}
	m.BufferedKeys.WithLabelValues(index).Set(float64(n))
}

func (m *Metrics) CacheEviction(index string, evicted bool) {
	if m == nil {
		return
	}
	result := "skipped"
	if evicted {
		result = "evicted"
	}
	m.CacheEvictionsTotal.WithLabelValues(index, result).Inc()
}

func (m *Metrics) IntegrityViolation(index string) {
	if m == nil {
		return
	}
	m.IntegrityViolations.WithLabelValues(index).Inc()
}

func (m *Metrics) Flushed(index string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexFlushesTotal.WithLabelValues(index, status).Inc()
}

func (m *Metrics) QueryCache(index string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.QueryCacheTotal.WithLabelValues(index, outcome).Inc()
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(float64(state))
}
