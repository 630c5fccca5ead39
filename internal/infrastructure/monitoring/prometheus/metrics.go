package prometheus

import (
	"fmt"
	"time"
)

// AppMetrics holds the process-wide simulation metrics.
type AppMetrics struct {
	// HTTP Layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPRequestSize     HistogramVec
	HTTPResponseSize    HistogramVec
	HTTPActiveRequests  GaugeVec

	// Simulation kernel
	TotalActivity      GaugeVec
	EventTotal          CounterVec
	SpeciesCount        GaugeVec
	HeapOccupancyRatio  GaugeVec
	SimTimeSeconds      GaugeVec
	RunDuration         HistogramVec
	RunsTotal           CounterVec
	RunErrorsTotal      CounterVec

	// Messaging (kafka event publication)
	EventsPublishedTotal CounterVec
	EventPublishDuration HistogramVec
	EventPublishErrors   CounterVec

	// Persistence (postgres runs/snapshots)
	DBConnectionPoolSize   GaugeVec
	DBConnectionPoolActive GaugeVec
	DBQueryDuration        HistogramVec
	SnapshotsWrittenTotal  CounterVec

	// Caching (redis run summaries + locks)
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec
	LockContention   CounterVec

	// System health
	ServiceUptime     GaugeVec
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

// Default buckets.
var (
	DefaultHTTPDurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultRunDurationBuckets  = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}
	DefaultGRPCDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultSizeBuckets         = []float64{100, 1000, 10000, 100000, 1000000}
	DefaultDBDurationBuckets   = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
)

// DefaultLLMDurationBuckets is retained for collectors that still bucket
// long-running external calls on the same envelope the run buckets use.
var DefaultLLMDurationBuckets = DefaultRunDurationBuckets

// NewAppMetrics registers every simulation metric and returns the handle
// used by the HTTP/worker/persistence layers to record observations.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPRequestSize = collector.RegisterHistogram("http_request_size_bytes", "HTTP request size", DefaultSizeBuckets, "method", "path")
	m.HTTPResponseSize = collector.RegisterHistogram("http_response_size_bytes", "HTTP response size", DefaultSizeBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Simulation kernel
	m.TotalActivity = collector.RegisterGauge("total_activity", "Current sum of rule propensities for a run", "run_id")
	m.EventTotal = collector.RegisterCounter("event_total", "Reaction events executed", "run_id", "channel")
	m.SpeciesCount = collector.RegisterGauge("species_count", "Distinct molecular species currently in the mixture", "run_id")
	m.HeapOccupancyRatio = collector.RegisterGauge("heap_occupancy_ratio", "Propensity heap live/capacity ratio", "run_id")
	m.SimTimeSeconds = collector.RegisterGauge("sim_time_seconds", "Simulated (not wall-clock) time elapsed for a run", "run_id")
	m.RunDuration = collector.RegisterHistogram("run_duration_seconds", "Wall-clock duration of completed runs", DefaultRunDurationBuckets, "status")
	m.RunsTotal = collector.RegisterCounter("runs_total", "Runs started", "status")
	m.RunErrorsTotal = collector.RegisterCounter("run_errors_total", "Runs that ended in an error", "reason")

	// Messaging
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "ReactionExecutedEvents published to the event topic", "topic")
	m.EventPublishDuration = collector.RegisterHistogram("event_publish_duration_seconds", "Event publish latency", DefaultHTTPDurationBuckets, "topic")
	m.EventPublishErrors = collector.RegisterCounter("event_publish_errors_total", "Event publish failures", "topic")

	// Persistence
	m.DBConnectionPoolSize = collector.RegisterGauge("db_pool_size", "Database connection pool size", "db")
	m.DBConnectionPoolActive = collector.RegisterGauge("db_pool_active", "Database active connections", "db")
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.SnapshotsWrittenTotal = collector.RegisterCounter("snapshots_written_total", "Mixture snapshots persisted", "run_id")

	// Caching
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.LockContention = collector.RegisterCounter("lock_contention_total", "Distributed run-lock acquisition failures", "run_id")

	// System health
	m.ServiceUptime = collector.RegisterGauge("service_uptime_seconds", "Service uptime", "service")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type", "severity")

	return m
}

// RegisterAppMetrics is an alias for NewAppMetrics.
func RegisterAppMetrics(collector MetricsCollector) *AppMetrics {
	return NewAppMetrics(collector)
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration, reqSize, respSize int64) {
	status := fmt.Sprintf("%d", statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRunStarted increments the run counter for the given initial status
// (normally "started").
func RecordRunStarted(metrics *AppMetrics, status string) {
	metrics.RunsTotal.WithLabelValues(status).Inc()
}

// RecordRunFinished records the terminal duration/status of a run, and
// attributes an error reason when the run did not finish cleanly.
func RecordRunFinished(metrics *AppMetrics, status string, duration time.Duration, errReason string) {
	metrics.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
	if errReason != "" {
		metrics.RunErrorsTotal.WithLabelValues(errReason).Inc()
	}
}

// RecordEvent updates the live gauges/counters a simulator emits on every
// executed reaction event.
func RecordEvent(metrics *AppMetrics, runID, channel string, totalActivity float64, speciesCount int, heapOccupancy, simTime float64) {
	metrics.EventTotal.WithLabelValues(runID, channel).Inc()
	metrics.TotalActivity.WithLabelValues(runID).Set(totalActivity)
	metrics.SpeciesCount.WithLabelValues(runID).Set(float64(speciesCount))
	metrics.HeapOccupancyRatio.WithLabelValues(runID).Set(heapOccupancy)
	metrics.SimTimeSeconds.WithLabelValues(runID).Set(simTime)
}

func RecordEventPublish(metrics *AppMetrics, topic string, duration time.Duration, err error) {
	metrics.EventPublishDuration.WithLabelValues(topic).Observe(duration.Seconds())
	if err != nil {
		metrics.EventPublishErrors.WithLabelValues(topic).Inc()
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic).Inc()
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error", "error").Inc()
	}
}

func RecordSnapshotWritten(metrics *AppMetrics, runID string) {
	metrics.SnapshotsWrittenTotal.WithLabelValues(runID).Inc()
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordLockContention(metrics *AppMetrics, runID string) {
	metrics.LockContention.WithLabelValues(runID).Inc()
}

func RecordError(metrics *AppMetrics, component, errorType, severity string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType, severity).Inc()
}

// GRPCMetrics holds the metrics recorded by the gRPC interceptor chain.
type GRPCMetrics struct {
	UnaryRequestsTotal    CounterVec
	UnaryRequestDuration  HistogramVec
	StreamRequestsTotal   CounterVec
	StreamRequestDuration HistogramVec
}

// NewGRPCMetrics registers the gRPC request/stream metrics.
func NewGRPCMetrics(collector MetricsCollector) *GRPCMetrics {
	return &GRPCMetrics{
		UnaryRequestsTotal:    collector.RegisterCounter("grpc_unary_requests_total", "Unary gRPC requests", "service", "method", "code"),
		UnaryRequestDuration:  collector.RegisterHistogram("grpc_unary_request_duration_seconds", "Unary gRPC request duration", DefaultGRPCDurationBuckets, "service", "method"),
		StreamRequestsTotal:   collector.RegisterCounter("grpc_stream_requests_total", "Stream gRPC requests", "service", "method", "code"),
		StreamRequestDuration: collector.RegisterHistogram("grpc_stream_request_duration_seconds", "Stream gRPC request duration", DefaultGRPCDurationBuckets, "service", "method"),
	}
}

// RecordUnaryRequest records the outcome of a single unary RPC.
func (m *GRPCMetrics) RecordUnaryRequest(service, method, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.UnaryRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.UnaryRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// RecordStreamRequest records the outcome of a completed streaming RPC.
func (m *GRPCMetrics) RecordStreamRequest(service, method, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StreamRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.StreamRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}
