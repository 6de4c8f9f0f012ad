package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lopan_api_requests_total",
		Help: "Total HTTP API requests by method, endpoint and status code.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lopan_api_request_duration_seconds",
		Help:    "HTTP API request latency by method, endpoint and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lopan_api_active_connections",
		Help: "In-flight HTTP API requests.",
	})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lopan_database_query_duration_seconds",
		Help:    "GORM operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lopan_database_errors_total",
		Help: "GORM operation errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lopan_database_connections_active",
		Help: "Open database connections.",
	})
)

// Batch rule-engine metrics.
var (
	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lopan_validation_failures_total",
		Help: "Batch validation failures by rule.",
	}, []string{"rule"})

	EditDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lopan_edit_decisions_total",
		Help: "Edit permission decisions by outcome (allowed, color_only, blocked).",
	}, []string{"outcome"})

	CutoffRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lopan_cutoff_rejections_total",
		Help: "Shift selections rejected by the cutoff policy.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
