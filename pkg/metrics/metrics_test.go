package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCommit("words", "ok", time.Millisecond)
		m.AddKeyMutations("words", 1, 2)
		m.RebuildRequested("words", "storage")
		m.SetRebuildStatus("words", 1)
		m.SetBufferedKeys("words", 3)
		m.CacheEviction("words", true)
		m.IntegrityViolation("words")
		m.Flushed("words", nil)
		m.QueryCache("words", false)
		m.SetCircuitState("query-cache", 1)
	})
}

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.ObserveCommit("words", "ok", time.Millisecond)
	m.ObserveCommit("words", "ok", time.Millisecond)
	m.AddKeyMutations("words", 3, 0)
	m.CacheEviction("words", false)
	m.Flushed("words", errors.New("disk"))
	m.SetRebuildStatus("trigrams", 2)
	m.SetCircuitState("query-cache", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("words", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.KeyMutationsTotal.WithLabelValues("words", "add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvictionsTotal.WithLabelValues("words", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("words", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RebuildStatus.WithLabelValues("trigrams")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitState.WithLabelValues("query-cache")))
}

func TestServerExposesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.SetCircuitState("query-cache", 1)
	h := NewServer(0, reg).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `circuit_breaker_state{name="query-cache"} 1`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Incremental index engine")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
