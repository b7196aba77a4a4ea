package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "studyspot",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Action queue metrics
	ActionsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "actions_enqueued_total",
		Help:      "Total actions accepted into the offline queue",
	}, []string{"kind"})

	ActionsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "actions_delivered_total",
		Help:      "Total queued actions confirmed by the backend",
	}, []string{"kind"})

	ActionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "actions_failed_total",
		Help:      "Total failed deliveries by failure class",
	}, []string{"kind", "class"})

	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "pending_actions",
		Help:      "Actions currently waiting for delivery",
	})

	QueueOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "online",
		Help:      "1 when the connectivity signal reports online",
	})

	DrainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "studyspot",
		Subsystem: "queue",
		Name:      "drain_duration_seconds",
		Help:      "Duration of a queue drain pass",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// Location metrics
	ProximityEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "location",
		Name:      "evaluations_total",
		Help:      "Total geofence evaluations by resulting status",
	}, []string{"status"})

	SampleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "location",
		Name:      "sample_errors_total",
		Help:      "Total failed location samples",
	}, []string{"reason"})

	ActiveWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyspot",
		Subsystem: "location",
		Name:      "active_watches",
		Help:      "Live location watch subscriptions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "studyspot",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "studyspot",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
