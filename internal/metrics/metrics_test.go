package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/schedule", 200, 15*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/schedule", 200, 5*time.Millisecond)
	m.ObserveCandidates("regular", 3)
	m.ObserveCandidates("regular", 0)
	m.ObserveSchedule(OutcomeFound)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("POST", "/api/v1/schedule", "200")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.candidates.WithLabelValues("regular")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.schedules.WithLabelValues(OutcomeFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSchedule(OutcomeNotFound)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `schedule_requests_total{outcome="not_found"} 1`)
	assert.Contains(t, string(body), "goroutines_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)
	m.ObserveSchedule(OutcomeError)
	m.RecordCacheLookup(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
