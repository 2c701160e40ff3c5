// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Title outcome labels recorded by ObserveTitle.
const (
	OutcomeFetched = "fetched"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

var (
	titlesTotal               *prometheus.CounterVec
	fetchRetriesTotal         prometheus.Counter
	fetchDurationSeconds      *prometheus.HistogramVec
	rateLimitWaitSeconds      prometheus.Histogram
	snapshotAgencies          prometheus.Gauge
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		titlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecfr_titles_total",
				Help: "Total number of titles processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ecfr_fetch_retries_total",
				Help: "Total number of fetch retries across all titles.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ecfr_fetch_duration_seconds",
				Help:    "Histogram of document fetch latencies, labeled by status class.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ecfr_rate_limit_wait_seconds",
				Help:    "Histogram of time spent waiting on the fetch rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		snapshotAgencies = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ecfr_snapshot_agencies",
				Help: "Number of agencies in the most recently written snapshot.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of serving-layer request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveTitle increments the per-title outcome counter.
func ObserveTitle(outcome string) {
	Init()
	titlesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry increments the fetch retry counter.
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveFetch records a completed fetch attempt.
func ObserveFetch(statusCode int, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(statusClass(statusCode)).Observe(duration.Seconds())
}

// ObserveRateLimitWait records the duration of a rate limiter wait.
func ObserveRateLimitWait(duration time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(duration.Seconds())
}

// SetSnapshotAgencies records the agency count of the latest snapshot.
func SetSnapshotAgencies(n int) {
	Init()
	snapshotAgencies.Set(float64(n))
}

// ObserveHTTPRequest increments the serving-layer request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
