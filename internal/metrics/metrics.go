// Package metrics holds the Prometheus collectors exported at /metrics.
//
// Collectors are registered on the default registry at init through promauto,
// so packages update them directly:
//
//	metrics.UpstreamRequests.WithLabelValues("/v2/cycle", "200").Inc()
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP server

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthos_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Upstream API

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_upstream_requests_total",
			Help: "Requests sent to the WHOOP API by path and status code",
		},
		[]string{"path", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthos_upstream_request_duration_seconds",
			Help:    "WHOOP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_upstream_retries_total",
			Help: "Upstream retries by reason (throttled, unauthorized)",
		},
		[]string{"reason"},
	)

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_token_refreshes_total",
			Help: "OAuth token refresh attempts by result",
		},
		[]string{"result"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthos_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Local rate limiter

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthos_rate_limit_waits_total",
			Help: "Times a request waited for the minute window to reset",
		},
	)

	RateLimitWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthos_rate_limit_wait_seconds_total",
			Help: "Total time spent waiting on the minute window",
		},
	)

	RateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthos_rate_limit_remaining",
			Help: "Tokens left in each rate limit window",
		},
		[]string{"window"},
	)

	// Sync engine

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthos_sync_duration_seconds",
			Help:    "Duration of a data type sync",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"data_type"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_sync_records_total",
			Help: "Records upserted by sync",
		},
		[]string{"data_type"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthos_sync_errors_total",
			Help: "Failed data type syncs",
		},
		[]string{"data_type"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "healthos_sync_last_success_timestamp",
			Help: "Unix time of the last completed sync",
		},
		[]string{"data_type"},
	)
)
