package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobSubmitted("remix")
		m.DispatchFailed("remix")
		m.CallbackApplied("completed")
		m.CallbackIgnored("processing")
		m.JobTimedOut()
		m.TrendingFetch("youtube", "ok", time.Second)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.JobSubmitted("remix")
	m.JobSubmitted("remix")
	m.CallbackApplied("completed")
	m.CallbackIgnored("processing")
	m.TrendingFetch("youtube", "ok", 50*time.Millisecond)
	m.TrendingFetch("youtube", "cached", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted.WithLabelValues("remix")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues("completed", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues("processing", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trendingFetches.WithLabelValues("youtube", "cached")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.JobSubmitted("export")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trending_pipeline_jobs_submitted_total{kind="export"} 1`)
}
