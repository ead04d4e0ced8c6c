// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	// Cleanup sweep metrics
	CleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicehub_cleanup_runs_total",
		Help: "Total number of stale device sweeps by result",
	}, []string{"result"})

	CleanupDevicesMarkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devicehub_cleanup_devices_marked_inactive_total",
		Help: "Total number of devices marked inactive by the stale device sweep",
	})

	CleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "devicehub_cleanup_duration_seconds",
		Help:    "Time spent in one stale device sweep in seconds",
		Buckets: prometheus.DefBuckets,
	})

	CleanupLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devicehub_cleanup_last_success_timestamp",
		Help: "Unix timestamp of the last successful stale device sweep",
	})

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicehub_http_requests_total",
		Help: "Total number of HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devicehub_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	HTTPRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devicehub_http_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	// Live update metrics
	StatusEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devicehub_status_events_published_total",
		Help: "Total number of device status events delivered by sink and result",
	}, []string{"sink", "result"})

	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devicehub_websocket_connections",
		Help: "Current number of open WebSocket connections",
	})
)
