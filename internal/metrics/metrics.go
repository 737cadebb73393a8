// Package metrics provides Prometheus instrumentation for the publisher tools backend.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pubtools",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// QuotesCreatedTotal counts quote creations by outcome.
	QuotesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "quotes_created_total",
			Help:      "Total quote requests by outcome.",
		},
		[]string{"outcome"},
	)

	// GrantRequestsTotal counts grant requests against authorization servers
	// by grant type (incoming-payment, quote, outgoing-payment) and outcome.
	GrantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "grant_requests_total",
			Help:      "Total grant requests by access type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// InteractionsTotal counts user interaction outcomes
	// (accepted, rejected, cancelled, errored).
	InteractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "interactions_total",
			Help:      "Total grant interactions by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// OutgoingPaymentsTotal counts outgoing payment creations by outcome
	// (created, failed, unknown — unknown means verification was indeterminate).
	OutgoingPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "outgoing_payments_total",
			Help:      "Total outgoing payment finalizations by outcome.",
		},
		[]string{"outcome"},
	)

	// PaymentFlowDuration observes end-to-end flow stage latency.
	PaymentFlowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pubtools",
			Name:      "payment_flow_duration_seconds",
			Help:      "Duration of payment flow stages in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// ActiveWebSocketClients tracks connected interaction waiters.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pubtools",
			Name:      "websocket_clients",
			Help:      "Currently connected WebSocket clients awaiting interaction results.",
		},
	)

	// ConfigDocumentsTotal counts widget config store operations.
	ConfigDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pubtools",
			Name:      "config_documents_total",
			Help:      "Total widget config store operations by kind.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotesCreatedTotal,
		GrantRequestsTotal,
		InteractionsTotal,
		OutgoingPaymentsTotal,
		PaymentFlowDuration,
		ActiveWebSocketClients,
		ConfigDocumentsTotal,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns a gin handler serving the Prometheus exposition endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
