package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the analytics API. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	BeaconsTotal        *prometheus.CounterVec
	MirrorFailuresTotal prometheus.Counter

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	CacheTotal    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_analytics_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cms_analytics_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		BeaconsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_analytics_beacons_total",
				Help: "Tracking beacons received, by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		MirrorFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cms_analytics_mirror_failures_total",
				Help: "Beacons that could not be copied to ClickHouse",
			},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cms_analytics_query_duration_seconds",
				Help:    "Duration of report queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"report"},
		),
		CacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cms_analytics_cache_lookups_total",
				Help: "Report cache lookups, by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BeaconsTotal,
		m.MirrorFailuresTotal,
		m.QueryDuration,
		m.CacheTotal,
	)
	return m
}

func (m *Metrics) RecordBeacon(kind, status string) {
	if m == nil {
		return
	}
	m.BeaconsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordMirrorFailure() {
	if m == nil {
		return
	}
	m.MirrorFailuresTotal.Inc()
}

func (m *Metrics) ObserveQuery(report string, started time.Time) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(report).Observe(time.Since(started).Seconds())
}

// RecordCache counts a lookup as "hit", "miss" or "error".
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// GinMiddleware records request counts and latencies per route template.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
