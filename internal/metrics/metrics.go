// Package metrics provides Prometheus metrics for the database server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Collection metrics
	CollectionsCreated prometheus.Counter
	CollectionsDeleted prometheus.Counter

	// Record metrics
	RecordMutations *prometheus.CounterVec

	// Event bus metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	Subscribers     prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quipubase_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quipubase_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quipubase_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.CollectionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quipubase_collections_created_total",
			Help: "Total number of collections created",
		},
	)

	m.CollectionsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quipubase_collections_deleted_total",
			Help: "Total number of collections deleted",
		},
	)

	m.RecordMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quipubase_record_mutations_total",
			Help: "Total number of record mutations",
		},
		[]string{"op"},
	)

	m.EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quipubase_events_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"kind"},
	)

	m.EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quipubase_events_dropped_total",
			Help: "Total number of events dropped on full subscriber buffers",
		},
	)

	m.Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quipubase_subscribers",
			Help: "Number of live stream subscriptions",
		},
	)

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.CollectionsCreated,
		m.CollectionsDeleted,
		m.RecordMutations,
		m.EventsPublished,
		m.EventsDropped,
		m.Subscribers,
	)

	// Also register the default collectors (go runtime, process info)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry for gathering in tests and tools.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.RequestsInFlight.Inc()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so event streams work behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath normalizes a URL path to reduce cardinality.
func normalizePath(path string) string {
	switch {
	case startsWith(path, "/v1/collections/objects/"):
		return "/v1/collections/objects/{collection}"
	case startsWith(path, "/v1/collections/") && endsWith(path, "/tool"):
		return "/v1/collections/{collection}/tool"
	case startsWith(path, "/v1/collections/") && len(path) > len("/v1/collections/"):
		return "/v1/collections/{collection}"
	}
	return path
}

// String helper functions to avoid importing strings package
func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func endsWith(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// RecordMutation records a successful record mutation.
func (m *Metrics) RecordMutation(op string) {
	m.RecordMutations.WithLabelValues(op).Inc()
}

// RecordEventPublished records an event published to the bus.
func (m *Metrics) RecordEventPublished(kind string) {
	m.EventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped records an event dropped on a full subscriber buffer.
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Inc()
}

// RecordCollectionCreated records a new collection registration.
func (m *Metrics) RecordCollectionCreated() {
	m.CollectionsCreated.Inc()
}

// RecordCollectionDeleted records a collection deletion.
func (m *Metrics) RecordCollectionDeleted() {
	m.CollectionsDeleted.Inc()
}

// SubscriberOpened tracks a new stream subscription.
func (m *Metrics) SubscriberOpened() {
	m.Subscribers.Inc()
}

// SubscriberClosed tracks closed stream subscriptions.
func (m *Metrics) SubscriberClosed(n int) {
	m.Subscribers.Sub(float64(n))
}
