// Package metrics exposes Prometheus collectors for the crawler service.
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

// Row outcomes.
const (
	RowIngested = "ingested"
	RowSkipped  = "skipped"
	RowFailed   = "failed"
)

var (
	crawlerRowsTotal           *prometheus.CounterVec
	crawlerPagesTotal          prometheus.Counter
	crawlerRunsTotal           *prometheus.CounterVec
	crawlerRunDurationSeconds  prometheus.Histogram
	crawlerActiveRuns          prometheus.Gauge
	crawlerPageWaitSeconds     prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_rows_total",
				Help: "Total number of result rows handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of results pages read.",
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Histogram of crawl run durations.",
				Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
			},
		)

		crawlerActiveRuns = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_runs",
				Help: "Number of crawl runs currently executing.",
			},
		)

		crawlerPageWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_page_wait_seconds",
				Help:    "Histogram of page pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRow counts one result row by outcome.
func ObserveRow(outcome string) {
	crawlerRowsTotal.WithLabelValues(outcome).Inc()
}

// ObservePage counts one results page read.
func ObservePage() {
	crawlerPagesTotal.Inc()
}

// ObserveRun records a finished run.
func ObserveRun(outcome string, duration time.Duration) {
	crawlerRunsTotal.WithLabelValues(outcome).Inc()
	crawlerRunDurationSeconds.Observe(duration.Seconds())
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() {
	crawlerActiveRuns.Inc()
}

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() {
	crawlerActiveRuns.Dec()
}

// ObservePageWait records how long page pacing held the loop.
func ObservePageWait(duration time.Duration) {
	crawlerPageWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
