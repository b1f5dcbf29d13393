// Package observability provides Prometheus metrics, an HTTP middleware, and
// optional OTLP tracing for the gateway.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for the gateway.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Chat dispatch metrics.
	ChatRepliesTotal *prometheus.CounterVec
	ChatDuration     *prometheus.HistogramVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ChatRepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joytrunk",
			Subsystem: "chat",
			Name:      "replies_total",
			Help:      "Total chat replies, labeled by reply source.",
		}, []string{"source"}),

		ChatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "joytrunk",
			Subsystem: "chat",
			Name:      "reply_duration_seconds",
			Help:      "Chat dispatch duration in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joytrunk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "joytrunk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "joytrunk",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	reg.MustRegister(
		m.ChatRepliesTotal,
		m.ChatDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// ObserveChat records one dispatched reply. Satisfies the dispatcher's
// observer interface.
func (m *MetricsCollector) ObserveChat(source string, duration time.Duration) {
	m.ChatRepliesTotal.WithLabelValues(source).Inc()
	m.ChatDuration.WithLabelValues(source).Observe(duration.Seconds())
}
