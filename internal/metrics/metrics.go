// Package metrics exposes Prometheus collectors for the crossword service.
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

// Fetch outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	gridTotal                  *prometheus.CounterVec
	puzzlesTotal               *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "route"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossword_fetch_total",
				Help: "Decode attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossword_fetch_duration_seconds",
				Help:    "Histogram of upstream fetch latencies, labeled by fetcher.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"fetcher"},
		)

		gridTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossword_grid_total",
				Help: "Grid reconstructions, labeled by detection path.",
			},
			[]string{"path"},
		)

		puzzlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossword_puzzles_total",
				Help: "Pipeline runs, labeled by final status.",
			},
			[]string{"status"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossword_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch records a single decode strategy attempt.
func ObserveFetch(strategy string, ok bool) {
	Init()
	outcome := OutcomeFailure
	if ok {
		outcome = OutcomeSuccess
	}
	fetchTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveFetchDuration records how long a fetcher took to answer.
func ObserveFetchDuration(fetcher string, d time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(fetcher).Observe(d.Seconds())
}

// ObserveGrid increments the grid counter for the given detection path.
func ObserveGrid(path string) {
	Init()
	gridTotal.WithLabelValues(path).Inc()
}

// ObservePuzzle increments the puzzle counter for the given status.
func ObservePuzzle(status string) {
	Init()
	puzzlesTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records a wait imposed by the rate limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
