// Package metrics defines the Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jig_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jig_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

// Authentication and backend session metrics
var (
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jig_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	BackendConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jig_backend_connects_total",
			Help: "Total number of backend IMAP connection attempts",
		},
		[]string{"result"},
	)

	SessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jig_sessions_current",
			Help: "Current number of cached backend sessions",
		},
	)
)

// Method dispatch metrics
var (
	MethodCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jig_method_calls_total",
			Help: "Total number of JMAP method calls dispatched",
		},
		[]string{"method", "status"},
	)

	MethodCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jig_method_call_duration_seconds",
			Help:    "Duration of JMAP method calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method"},
	)
)
