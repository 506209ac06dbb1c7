// Package metrics exposes the Prometheus collectors of the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "goodcord",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goodcord",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "goodcord",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goodcord",
			Name:      "events_emitted_total",
			Help:      "Total number of real-time events emitted.",
		},
		[]string{"event"},
	)

	eventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goodcord",
			Name:      "event_publish_failures_total",
			Help:      "Total number of events that could not be published.",
		},
		[]string{"event"},
	)

	domainOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goodcord",
			Subsystem: "social",
			Name:      "operations_total",
			Help:      "Domain operations by name and result code.",
		},
		[]string{"op", "result"},
	)

	observers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "goodcord",
			Subsystem: "realtime",
			Name:      "observers",
			Help:      "Connected real-time observers by transport.",
		},
		[]string{"transport"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		eventsEmitted,
		eventPublishFailures,
		domainOutcomes,
		observers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request count, latency and in-flight gauge. Paths are
// labelled by route template so /groups/1 and /groups/2 share a series.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordEvent counts one emitted event.
func RecordEvent(event string) {
	eventsEmitted.WithLabelValues(event).Inc()
}

// RecordPublishFailure counts one event whose publish failed.
func RecordPublishFailure(event string) {
	eventPublishFailures.WithLabelValues(event).Inc()
}

// RecordOutcome counts a domain operation by its result ("ok" or an error code).
func RecordOutcome(op, result string) {
	domainOutcomes.WithLabelValues(op, result).Inc()
}

// ObserverConnected adjusts the observer gauge for transport by delta.
func ObserverConnected(transport string, delta float64) {
	observers.WithLabelValues(transport).Add(delta)
}
