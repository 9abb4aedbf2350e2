// Package metrics provides Prometheus metrics for the medrank evaluation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	jobBuckets       []float64
	registry         prometheus.Registerer

	// Engine
	doctorsScored     prometheus.Counter
	scoringLatency    prometheus.Histogram
	subIndexFallbacks *prometheus.CounterVec
	recordsDropped    prometheus.Counter

	// Recalculation and reports
	recalculations       *prometheus.CounterVec
	recalculationLatency prometheus.Histogram
	reports              *prometheus.CounterVec
	reportLatency        *prometheus.HistogramVec

	// Catalog and profiles
	catalogSize        prometheus.Gauge
	profileCount       prometheus.Gauge
	profileActivations prometheus.Counter
	importRows         *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerActiveCount  prometheus.Gauge
	workerLatency      prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	idempotentReplays   prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "medrank",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		jobBuckets:       []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.doctorsScored = m.counter("doctors_scored_total", "Doctors passed through the scoring pipeline")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Per-batch scoring latency in milliseconds")
	m.subIndexFallbacks = m.counterVec("subindex_fallbacks_total", "Sub-index values replaced by 0 because they were not finite", "kind")
	m.recordsDropped = m.counter("records_dropped_total", "Scoring records dropped because the composite was not finite")

	m.recalculations = m.counterVec("recalculations_total", "Recalculate-all batches by outcome", "outcome")
	m.recalculationLatency = m.histogram("recalculation_duration_milliseconds", "Recalculate-all duration in milliseconds")
	m.reports = m.counterVec("reports_total", "Reports generated by kind and outcome", "kind", "outcome")
	m.reportLatency = m.histogramVec("report_duration_milliseconds", "Report generation duration in milliseconds", "kind")

	m.catalogSize = m.gauge("catalog_doctors", "Doctors currently in the catalog")
	m.profileCount = m.gauge("weight_profiles", "Weight profiles currently stored")
	m.profileActivations = m.counter("profile_activations_total", "Successful default-profile activations")
	m.importRows = m.counterVec("import_rows_total", "Imported rows by format and outcome", "format", "outcome")

	m.storeLatency = m.histogramVec("store_operation_milliseconds", "Store operation latency in milliseconds", "op")

	m.queueSize = m.gauge("queue_size", "Scoring jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum scoring jobs the queue accepts")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Scoring jobs rejected by the queue")
	m.workerActiveCount = m.gauge("worker_active_count", "Scoring workers running")
	m.workerLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_milliseconds",
		Help:      "Per-job worker processing latency in milliseconds",
		Buckets:   m.jobBuckets,
	})

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.rateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the rate limiter", "endpoint")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Mutating requests rejected as idempotent replays")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "Average GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordDoctorsScored adds n to the scored-doctors counter.
func RecordDoctorsScored(n int) {
	globalManager.doctorsScored.Add(float64(n))
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordSubIndexFallback counts a non-finite sub-index replaced by 0.
func RecordSubIndexFallback(kind string) {
	globalManager.subIndexFallbacks.WithLabelValues(kind).Inc()
}

// RecordRecordDropped counts a record dropped for a non-finite composite.
func RecordRecordDropped() {
	globalManager.recordsDropped.Inc()
}

// RecordRecalculation records a recalculate-all outcome and its duration.
func RecordRecalculation(outcome string, durationMs float64) {
	globalManager.recalculations.WithLabelValues(outcome).Inc()
	globalManager.recalculationLatency.Observe(durationMs)
}

// RecordReport records a generated report.
func RecordReport(kind, outcome string, durationMs float64) {
	globalManager.reports.WithLabelValues(kind, outcome).Inc()
	globalManager.reportLatency.WithLabelValues(kind).Observe(durationMs)
}

// UpdateCatalogSize sets the number of doctors in the catalog.
func UpdateCatalogSize(n int) {
	globalManager.catalogSize.Set(float64(n))
}

// UpdateProfileCount sets the number of stored weight profiles.
func UpdateProfileCount(n int) {
	globalManager.profileCount.Set(float64(n))
}

// RecordProfileActivation counts a default-profile switch.
func RecordProfileActivation() {
	globalManager.profileActivations.Inc()
}

// RecordImportRows counts imported rows.
func RecordImportRows(format, outcome string, n int) {
	globalManager.importRows.WithLabelValues(format, outcome).Add(float64(n))
}

// RecordStoreLatency records the latency of a store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-job processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// RecordIdempotentReplay counts a duplicate Idempotency-Key.
func RecordIdempotentReplay() {
	globalManager.idempotentReplays.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
