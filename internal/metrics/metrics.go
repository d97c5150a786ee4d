// Package metrics exposes Prometheus instrumentation for the explanation pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medreport-explainer/internal/safety"
)

const namespace = "medreport"

var latencyBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60}

// Metrics owns a private registry and every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	modelAttempts  *prometheus.CounterVec
	modelLatency   *prometheus.HistogramVec
	fallbacks      *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	safetyRemovals *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// New creates and registers all collectors, including Go runtime and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		modelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Remote model attempts by call site, model and outcome.",
		}, []string{"call_site", "model", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_attempt_duration_seconds",
			Help:      "Duration of remote model attempts.",
			Buckets:   latencyBuckets,
		}, []string{"call_site", "model"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Degraded or local results served after a model chain failed.",
		}, []string{"call_site", "reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "definition_cache_lookups_total",
			Help:      "Term definition cache lookups by result.",
		}, []string{"result"}),
		safetyRemovals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_removals_total",
			Help:      "Text units removed by the safety filter by category.",
		}, []string{"category"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   latencyBuckets,
		}, []string{"route", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		m.modelAttempts,
		m.modelLatency,
		m.fallbacks,
		m.cacheLookups,
		m.safetyRemovals,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ModelAttempt records one attempt against a model.
func (m *Metrics) ModelAttempt(callSite, model, outcome string, elapsed time.Duration) {
	m.modelAttempts.WithLabelValues(callSite, model, outcome).Inc()
	m.modelLatency.WithLabelValues(callSite, model).Observe(elapsed.Seconds())
}

// Fallback records a degraded or local result.
func (m *Metrics) Fallback(callSite, reason string) {
	m.fallbacks.WithLabelValues(callSite, reason).Inc()
}

// CacheLookup records a definition cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// SafetyRemoval records a unit removed by the safety filter. It matches the
// safety.WithObserver callback signature.
func (m *Metrics) SafetyRemoval(category safety.Category) {
	m.safetyRemovals.WithLabelValues(string(category)).Inc()
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
