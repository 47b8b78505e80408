// Package metrics exposes Prometheus collectors for the audit service.
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
	auditScansTotal            *prometheus.CounterVec
	auditRulesTotal            *prometheus.CounterVec
	auditBatchesTotal          prometheus.Counter
	auditOracleRetriesTotal    prometheus.Counter
	auditRenderStrategyTotal   *prometheus.CounterVec
	auditRenderDurationSeconds *prometheus.HistogramVec
	auditJudgeDurationSeconds  prometheus.Histogram
	auditThrottleDelaySeconds  prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		auditScansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_scans_total",
				Help: "Total number of scans processed, labeled by final status.",
			},
			[]string{"status"},
		)

		auditRulesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_rules_total",
				Help: "Total number of rules judged, labeled by site and verdict.",
			},
			[]string{"site", "verdict"},
		)

		auditBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_batches_total",
				Help: "Total number of batches completed and checkpointed.",
			},
		)

		auditOracleRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "audit_oracle_retries_total",
				Help: "Total number of oracle calls retried after rate limiting.",
			},
		)

		auditRenderStrategyTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_render_strategy_total",
				Help: "Navigation strategies that produced the accepted render.",
			},
			[]string{"strategy"},
		)

		auditRenderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_render_duration_seconds",
				Help:    "Histogram of full page render latencies, labeled by site.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"site"},
		)

		auditJudgeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audit_judge_duration_seconds",
				Help:    "Histogram of single-rule judging latencies including retries.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		auditThrottleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audit_throttle_delay_seconds",
				Help:    "Histogram of inter-oracle-call throttle waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15},
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
	return promhttp.Handler()
}

// ObserveScan increments the scan counter for the given final status.
func ObserveScan(status string) {
	if auditScansTotal == nil {
		return
	}
	auditScansTotal.WithLabelValues(status).Inc()
}

// ObserveRule records a single rule verdict.
func ObserveRule(site string, passed bool) {
	if auditRulesTotal == nil {
		return
	}
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	auditRulesTotal.WithLabelValues(SanitizeSite(site), verdict).Inc()
}

// ObserveBatch increments the completed-batch counter.
func ObserveBatch() {
	if auditBatchesTotal == nil {
		return
	}
	auditBatchesTotal.Inc()
}

// ObserveOracleRetries adds the retry count of one judging call.
func ObserveOracleRetries(retries int) {
	if auditOracleRetriesTotal == nil || retries <= 0 {
		return
	}
	auditOracleRetriesTotal.Add(float64(retries))
}

// ObserveRenderStrategy counts which navigation strategy produced the
// accepted render.
func ObserveRenderStrategy(strategy string) {
	if auditRenderStrategyTotal == nil || strategy == "" {
		return
	}
	auditRenderStrategyTotal.WithLabelValues(strategy).Inc()
}

// ObserveRender records the duration of a full page render.
func ObserveRender(site string, duration time.Duration) {
	if auditRenderDurationSeconds == nil {
		return
	}
	auditRenderDurationSeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObserveJudge records the duration of a single-rule judging call.
func ObserveJudge(duration time.Duration) {
	if auditJudgeDurationSeconds == nil {
		return
	}
	auditJudgeDurationSeconds.Observe(duration.Seconds())
}

// ObserveThrottleDelay records an inter-call throttle wait.
func ObserveThrottleDelay(duration time.Duration) {
	if auditThrottleDelaySeconds == nil || duration <= 0 {
		return
	}
	auditThrottleDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
