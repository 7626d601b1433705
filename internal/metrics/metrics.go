// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trending_pipeline"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted    *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	callbacks        *prometheus.CounterVec
	jobsTimedOut     prometheus.Counter
	trendingFetches  *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Production jobs accepted for dispatch, by kind.",
		}, []string{"kind"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Jobs failed immediately because the executor rejected dispatch, by kind.",
		}, []string{"kind"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Executor callbacks by reported status and outcome (applied, ignored).",
		}, []string{"status", "outcome"}),
		jobsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_timed_out_total",
			Help:      "Jobs failed by the staleness sweeper.",
		}),
		trendingFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trending_fetches_total",
			Help:      "Trending catalog fetches by platform and outcome (ok, cached, error).",
		}, []string{"platform", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trending_fetch_duration_seconds",
			Help:      "Latency of upstream trending fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
	}

	m.registry.MustRegister(
		m.jobsSubmitted,
		m.dispatchFailures,
		m.callbacks,
		m.jobsTimedOut,
		m.trendingFetches,
		m.fetchDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) JobSubmitted(kind string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) DispatchFailed(kind string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) CallbackApplied(status string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(status, "applied").Inc()
}

func (m *Metrics) CallbackIgnored(status string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(status, "ignored").Inc()
}

func (m *Metrics) JobTimedOut() {
	if m == nil {
		return
	}
	m.jobsTimedOut.Inc()
}

// TrendingFetch records one fetch. outcome is ok, cached or error.
func (m *Metrics) TrendingFetch(platform, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.trendingFetches.WithLabelValues(platform, outcome).Inc()
	if outcome != "cached" {
		m.fetchDuration.WithLabelValues(platform).Observe(elapsed.Seconds())
	}
}
