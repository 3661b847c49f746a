// Package metrics exposes Prometheus collectors for the intel pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	targetsTotal               *prometheus.CounterVec
	pagesTotal                 *prometheus.CounterVec
	poolAcquireWaitSeconds     prometheus.Histogram
	poolSessionsActive         prometheus.Gauge
	poolSessionsRetiredTotal   *prometheus.CounterVec
	fallbackCallsTotal         *prometheus.CounterVec
	fallbackRetriesTotal       prometheus.Counter
	contactScore               prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerintel_targets_total",
				Help: "Total number of targets processed, labeled by final status.",
			},
			[]string{"status"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerintel_pages_total",
				Help: "Total number of pages fetched, labeled by outcome.",
			},
			[]string{"status"},
		)

		poolAcquireWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealerintel_pool_acquire_wait_seconds",
				Help:    "Time spent waiting for a browser session.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 90},
			},
		)

		poolSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealerintel_pool_sessions_active",
				Help: "Number of live browser sessions, idle or leased.",
			},
		)

		poolSessionsRetiredTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerintel_pool_sessions_retired_total",
				Help: "Total number of retired browser sessions, labeled by reason.",
			},
			[]string{"reason"},
		)

		fallbackCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerintel_fallback_calls_total",
				Help: "Total fallback API calls, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fallbackRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealerintel_fallback_retries_total",
				Help: "Total fallback API retries after a transient failure.",
			},
		)

		contactScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dealerintel_contact_score",
				Help:    "Distribution of final contact confidence scores.",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealerintel_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"scope"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerintel_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealerintel_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveTarget counts a finished target.
func ObserveTarget(status string) {
	Init()
	targetsTotal.WithLabelValues(status).Inc()
}

// ObservePage counts a fetched page by outcome ("ok", "status", "challenge", ...).
func ObservePage(status string) {
	Init()
	pagesTotal.WithLabelValues(status).Inc()
}

// ObserveAcquireWait records how long a caller waited for a session.
func ObserveAcquireWait(d time.Duration) {
	Init()
	poolAcquireWaitSeconds.Observe(d.Seconds())
}

// IncActiveSessions increments the live session gauge.
func IncActiveSessions() {
	Init()
	poolSessionsActive.Inc()
}

// ObserveSessionRetired decrements the live session gauge and counts the reason.
func ObserveSessionRetired(reason string) {
	Init()
	poolSessionsActive.Dec()
	poolSessionsRetiredTotal.WithLabelValues(reason).Inc()
}

// ObserveFallbackCall counts one fallback request.
func ObserveFallbackCall(strategy, outcome string) {
	Init()
	fallbackCallsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveFallbackRetry counts one retried fallback request.
func ObserveFallbackRetry() {
	Init()
	fallbackRetriesTotal.Inc()
}

// ObserveContactScore records a final contact score.
func ObserveContactScore(score float64) {
	Init()
	contactScore.Observe(score)
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(scope string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(scope).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
