package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds all Quiver counters for Prometheus export
type Metrics struct {
	startTime time.Time

	// HTTP request metrics
	httpRequestsTotal   atomic.Int64
	httpRequestsSuccess atomic.Int64
	httpRequestsError   atomic.Int64
	httpLatencySum      atomic.Int64 // microseconds
	httpLatencyCount    atomic.Int64

	// Query execution metrics
	queryRequestsTotal atomic.Int64
	querySuccessTotal  atomic.Int64
	queryErrorsTotal   atomic.Int64
	queryRowsTotal     atomic.Int64
	queryLatencySum    atomic.Int64 // microseconds
	queryLatencyCount  atomic.Int64

	// Cursor lifecycle metrics
	cursorsReserved  atomic.Int64
	cursorsResumed   atomic.Int64
	cursorsExhausted atomic.Int64
	cursorsDeleted   atomic.Int64
	cursorsReaped    atomic.Int64
	cursorsNotFound  atomic.Int64
	cursorsActive    atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{startTime: time.Now()}
	})
	return instance
}

// Init initializes the metrics with a logger
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// HTTP metrics
func (m *Metrics) IncHTTPRequests() { m.httpRequestsTotal.Add(1) }
func (m *Metrics) IncHTTPSuccess()  { m.httpRequestsSuccess.Add(1) }
func (m *Metrics) IncHTTPError()    { m.httpRequestsError.Add(1) }

// RecordHTTPLatency records HTTP request latency in microseconds
func (m *Metrics) RecordHTTPLatency(durationMicros int64) {
	m.httpLatencySum.Add(durationMicros)
	m.httpLatencyCount.Add(1)
}

// Query metrics
func (m *Metrics) IncQueryRequests()        { m.queryRequestsTotal.Add(1) }
func (m *Metrics) IncQuerySuccess()         { m.querySuccessTotal.Add(1) }
func (m *Metrics) IncQueryErrors()          { m.queryErrorsTotal.Add(1) }
func (m *Metrics) IncQueryRows(count int64) { m.queryRowsTotal.Add(count) }

// RecordQueryLatency records query latency in microseconds
func (m *Metrics) RecordQueryLatency(durationMicros int64) {
	m.queryLatencySum.Add(durationMicros)
	m.queryLatencyCount.Add(1)
}

// Cursor metrics
func (m *Metrics) IncCursorsReserved() {
	m.cursorsReserved.Add(1)
	m.cursorsActive.Add(1)
}
func (m *Metrics) IncCursorsResumed()  { m.cursorsResumed.Add(1) }
func (m *Metrics) IncCursorsNotFound() { m.cursorsNotFound.Add(1) }

func (m *Metrics) IncCursorsExhausted() {
	m.cursorsExhausted.Add(1)
	m.cursorsActive.Add(-1)
}
func (m *Metrics) IncCursorsDeleted() {
	m.cursorsDeleted.Add(1)
	m.cursorsActive.Add(-1)
}
func (m *Metrics) AddCursorsReaped(count int64) {
	m.cursorsReaped.Add(count)
	m.cursorsActive.Add(-count)
}

// Snapshot returns all metrics as a map (for JSON endpoint)
func (m *Metrics) Snapshot() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		// Process info
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
		"num_cpu":        runtime.NumCPU(),
		"gomaxprocs":     runtime.GOMAXPROCS(0),

		// Memory (Go runtime)
		"memory_alloc_bytes":      memStats.Alloc,
		"memory_sys_bytes":        memStats.Sys,
		"memory_heap_alloc_bytes": memStats.HeapAlloc,
		"gc_cycles":               memStats.NumGC,
		"gc_pause_total_ns":       memStats.PauseTotalNs,

		// HTTP
		"http_requests_total":   m.httpRequestsTotal.Load(),
		"http_requests_success": m.httpRequestsSuccess.Load(),
		"http_requests_error":   m.httpRequestsError.Load(),
		"http_latency_sum_us":   m.httpLatencySum.Load(),
		"http_latency_count":    m.httpLatencyCount.Load(),

		// Query
		"query_requests_total": m.queryRequestsTotal.Load(),
		"query_success_total":  m.querySuccessTotal.Load(),
		"query_errors_total":   m.queryErrorsTotal.Load(),
		"query_rows_total":     m.queryRowsTotal.Load(),
		"query_latency_sum_us": m.queryLatencySum.Load(),
		"query_latency_count":  m.queryLatencyCount.Load(),

		// Cursors
		"cursors_reserved_total":  m.cursorsReserved.Load(),
		"cursors_resumed_total":   m.cursorsResumed.Load(),
		"cursors_exhausted_total": m.cursorsExhausted.Load(),
		"cursors_deleted_total":   m.cursorsDeleted.Load(),
		"cursors_reaped_total":    m.cursorsReaped.Load(),
		"cursors_not_found_total": m.cursorsNotFound.Load(),
		"cursors_active":          m.cursorsActive.Load(),
	}
}

// PrometheusFormat returns metrics in Prometheus text exposition format
func (m *Metrics) PrometheusFormat() string {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var b []byte
	b = append(b, "# HELP quiver_uptime_seconds Time since Quiver started\n"...)
	b = append(b, "# TYPE quiver_uptime_seconds gauge\n"...)
	b = appendMetric(b, "quiver_uptime_seconds", time.Since(m.startTime).Seconds())

	b = append(b, "# HELP quiver_goroutines Number of goroutines\n"...)
	b = append(b, "# TYPE quiver_goroutines gauge\n"...)
	b = appendMetric(b, "quiver_goroutines", float64(runtime.NumGoroutine()))

	b = append(b, "# HELP quiver_memory_alloc_bytes Current allocated memory\n"...)
	b = append(b, "# TYPE quiver_memory_alloc_bytes gauge\n"...)
	b = appendMetric(b, "quiver_memory_alloc_bytes", float64(memStats.Alloc))

	b = append(b, "# HELP quiver_http_requests_total Total HTTP requests\n"...)
	b = append(b, "# TYPE quiver_http_requests_total counter\n"...)
	b = appendMetric(b, "quiver_http_requests_total", float64(m.httpRequestsTotal.Load()))

	b = append(b, "# HELP quiver_query_requests_total Total query executions\n"...)
	b = append(b, "# TYPE quiver_query_requests_total counter\n"...)
	b = appendMetric(b, "quiver_query_requests_total", float64(m.queryRequestsTotal.Load()))

	b = append(b, "# HELP quiver_query_errors_total Total failed query executions\n"...)
	b = append(b, "# TYPE quiver_query_errors_total counter\n"...)
	b = appendMetric(b, "quiver_query_errors_total", float64(m.queryErrorsTotal.Load()))

	b = append(b, "# HELP quiver_query_rows_total Total rows emitted\n"...)
	b = append(b, "# TYPE quiver_query_rows_total counter\n"...)
	b = appendMetric(b, "quiver_query_rows_total", float64(m.queryRowsTotal.Load()))

	b = append(b, "# HELP quiver_cursors_active Cursors currently live\n"...)
	b = append(b, "# TYPE quiver_cursors_active gauge\n"...)
	b = appendMetric(b, "quiver_cursors_active", float64(m.cursorsActive.Load()))

	b = append(b, "# HELP quiver_cursors_reserved_total Cursors ever reserved\n"...)
	b = append(b, "# TYPE quiver_cursors_reserved_total counter\n"...)
	b = appendMetric(b, "quiver_cursors_reserved_total", float64(m.cursorsReserved.Load()))

	b = append(b, "# HELP quiver_cursors_resumed_total Cursor resume operations\n"...)
	b = append(b, "# TYPE quiver_cursors_resumed_total counter\n"...)
	b = appendMetric(b, "quiver_cursors_resumed_total", float64(m.cursorsResumed.Load()))

	b = append(b, "# HELP quiver_cursors_reaped_total Cursors destroyed by the idle sweep\n"...)
	b = append(b, "# TYPE quiver_cursors_reaped_total counter\n"...)
	b = appendMetric(b, "quiver_cursors_reaped_total", float64(m.cursorsReaped.Load()))

	return string(b)
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	b = append(b, '\n')
	return b
}
