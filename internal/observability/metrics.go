package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions       prometheus.Gauge
	sessionsCreatedTotal *prometheus.CounterVec
	sessionsRemovedTotal *prometheus.CounterVec

	queryTotal    *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	gatewayRequestsTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current active session count.",
				},
			),
			sessionsCreatedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessions_created_total",
					Help: "Total sessions created by tool set.",
				},
				[]string{"tool_set"},
			),
			sessionsRemovedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sessions_removed_total",
					Help: "Total sessions removed by reason.",
				},
				[]string{"reason"},
			),
			queryTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "query_total",
					Help: "Total queries by tool set and status.",
				},
				[]string{"tool_set", "status"},
			),
			queryDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "query_duration_seconds",
					Help:    "Query execution duration in seconds by tool set.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool_set"},
			),
			gatewayRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_requests_total",
					Help: "Total gateway RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreatedTotal,
			m.sessionsRemovedTotal,
			m.queryTotal,
			m.queryDuration,
			m.gatewayRequestsTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions tracks the current registry population.
func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

// RecordSessionCreated counts one created session.
func RecordSessionCreated(toolSet string) {
	getMetrics().sessionsCreatedTotal.WithLabelValues(toolSet).Inc()
}

// RecordSessionRemoved counts one removed session by reason
// (evicted, expired, terminated).
func RecordSessionRemoved(reason string) {
	getMetrics().sessionsRemovedTotal.WithLabelValues(reason).Inc()
}

// RecordQuery counts one query with its outcome and duration.
func RecordQuery(toolSet, status string, duration time.Duration) {
	m := getMetrics()
	m.queryTotal.WithLabelValues(toolSet, status).Inc()
	m.queryDuration.WithLabelValues(toolSet).Observe(duration.Seconds())
}

// RecordGatewayRequest counts one RPC request by method and outcome.
func RecordGatewayRequest(method, status string) {
	getMetrics().gatewayRequestsTotal.WithLabelValues(method, status).Inc()
}
