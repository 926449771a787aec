package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for restcore
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Query compilation metrics
	compilesTotal      *prometheus.CounterVec
	compileErrorsTotal *prometheus.CounterVec

	// Database metrics
	dbQueriesTotal    *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec
	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsMax  prometheus.Gauge

	// Cache metrics
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
	cacheErrorsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the Prometheus default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	factory := promauto.With(registerer)

	m := &Metrics{
		gatherer: gatherer,

		// HTTP metrics
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restcore_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "restcore_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Query compilation metrics
		compilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_query_compiles_total",
				Help: "Total number of request filters compiled into query plans",
			},
			[]string{"entity", "mode"},
		),
		compileErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_query_compile_errors_total",
				Help: "Total number of request filters rejected during compilation",
			},
			[]string{"entity", "code"},
		),

		// Database metrics
		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restcore_db_query_duration_seconds",
				Help:    "Database query latency in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "restcore_db_connections",
				Help: "Number of acquired database connections",
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "restcore_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		dbConnectionsMax: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "restcore_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),

		// Cache metrics
		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_cache_hits_total",
				Help: "Total number of list responses served from cache",
			},
			[]string{"entity"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_cache_misses_total",
				Help: "Total number of list responses not found in cache",
			},
			[]string{"entity"},
		),
		cacheErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restcore_cache_errors_total",
				Help: "Total number of failed cache operations",
			},
			[]string{"operation"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "restcore_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		status := statusClass(c.Response().StatusCode())
		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())

		return err
	}
}

// RecordCompile records a successfully compiled plan
func (m *Metrics) RecordCompile(entity, mode string) {
	m.compilesTotal.WithLabelValues(entity, mode).Inc()
}

// RecordCompileError records a rejected request filter by error code
func (m *Metrics) RecordCompileError(entity, code string) {
	m.compileErrorsTotal.WithLabelValues(entity, code).Inc()
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueriesTotal.WithLabelValues(operation, table, status).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordCacheHit records a list response served from cache
func (m *Metrics) RecordCacheHit(entity string) {
	m.cacheHitsTotal.WithLabelValues(entity).Inc()
}

// RecordCacheMiss records a cache lookup that found nothing
func (m *Metrics) RecordCacheMiss(entity string) {
	m.cacheMissesTotal.WithLabelValues(entity).Inc()
}

// RecordCacheError records a failed cache get or set
func (m *Metrics) RecordCacheError(operation string) {
	m.cacheErrorsTotal.WithLabelValues(operation).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
