// Package metrics provides Prometheus metrics for the movers assignment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Claim modes used as label values.
const (
	ModeAutoMatch = "auto_match"
	ModeSelfClaim = "self_claim"
)

// Manager manages all Prometheus metrics for the movers service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Assignment metrics - the part with a correctness requirement
	claims                *prometheus.CounterVec
	claimLatency          *prometheus.HistogramVec
	autoMatchAttempts     prometheus.Histogram
	transitions           *prometheus.CounterVec
	ratings               *prometheus.CounterVec
	scoreUpdates          prometheus.Counter
	availabilityDrift     *prometheus.CounterVec
	storeRetries          *prometheus.CounterVec
	storeOperationLatency *prometheus.HistogramVec

	// Inventory gauges
	jobsTotal    prometheus.Gauge
	workersTotal prometheus.Gauge

	// Reconcile queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Reconcile worker metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	reconcileResults        *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "movers",
		subsystem:        "assignment",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.claims = m.counterVec("claims_total",
		"Claim attempts by mode and outcome (granted, conflict, not_found, no_eligible_worker, error)",
		"mode", "outcome")
	m.claimLatency = m.histogramVec("claim_latency_milliseconds",
		"End-to-end claim request latency in milliseconds", "mode")
	m.autoMatchAttempts = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "auto_match_attempts",
		Help:    "Number of conditional claim attempts issued per auto-match request",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
	})
	m.transitions = m.counterVec("transitions_total",
		"Lifecycle transitions by source and target status and result", "from", "to", "result")
	m.ratings = m.counterVec("ratings_total", "Rating submissions by result", "result")
	m.scoreUpdates = m.counter("performance_score_updates_total", "Performance score recomputations written to the registry")
	m.availabilityDrift = m.counterVec("availability_inconsistencies_total",
		"Availability updates that failed after a committed job transition", "stage")
	m.storeRetries = m.counterVec("store_retries_total", "Boundary retries after the store reported unavailable", "op")
	m.storeOperationLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Store operation latency in milliseconds", "backend", "op")

	m.jobsTotal = m.gauge("jobs_total", "Number of job records in the job store")
	m.workersTotal = m.gauge("workers_total", "Number of workers in the registry")

	m.queueSize = m.gauge("reconcile_queue_size", "Current number of pending reconcile tasks")
	m.queueCapacity = m.gauge("reconcile_queue_capacity", "Maximum capacity of the reconcile queue")
	m.queueUtilization = m.gauge("reconcile_queue_utilization_ratio", "Reconcile queue utilization ratio (size / capacity)")
	m.queueEnqueues = m.counter("reconcile_queue_enqueue_total", "Reconcile tasks enqueued")
	m.queueDequeues = m.counter("reconcile_queue_dequeue_total", "Reconcile tasks dequeued")
	m.queueEnqueueErrors = m.counter("reconcile_queue_enqueue_errors_total", "Reconcile tasks rejected by the queue")

	m.workerCount = m.gauge("reconcile_worker_count", "Number of reconcile workers")
	m.workerProcessingLatency = m.histogram("reconcile_processing_latency_milliseconds", "Reconcile task processing latency in milliseconds")
	m.reconcileResults = m.counterVec("reconcile_results_total", "Reconcile task results (repaired, retried, abandoned)", "result")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// Assignment Metrics Functions.

// RecordClaim records a claim request outcome for the given mode.
func RecordClaim(mode, outcome string) {
	globalManager.claims.WithLabelValues(mode, outcome).Inc()
}

// RecordClaimLatency records a claim request latency in milliseconds.
func RecordClaimLatency(mode string, latencyMs float64) {
	globalManager.claimLatency.WithLabelValues(mode).Observe(latencyMs)
}

// RecordAutoMatchAttempts records how many conditional claims one auto-match issued.
func RecordAutoMatchAttempts(n int) {
	globalManager.autoMatchAttempts.Observe(float64(n))
}

// RecordTransition records a lifecycle transition attempt.
func RecordTransition(from, to, result string) {
	globalManager.transitions.WithLabelValues(from, to, result).Inc()
}

// RecordRating records a rating submission result.
func RecordRating(result string) {
	globalManager.ratings.WithLabelValues(result).Inc()
}

// RecordScoreUpdate increments the performance score update counter.
func RecordScoreUpdate() {
	globalManager.scoreUpdates.Inc()
}

// RecordAvailabilityInconsistency counts an availability write that failed after a committed transition.
func RecordAvailabilityInconsistency(stage string) {
	globalManager.availabilityDrift.WithLabelValues(stage).Inc()
}

// RecordStoreRetry counts a boundary retry of a store operation.
func RecordStoreRetry(op string) {
	globalManager.storeRetries.WithLabelValues(op).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeOperationLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// UpdateJobsTotal sets the number of job records.
func UpdateJobsTotal(count int) {
	globalManager.jobsTotal.Set(float64(count))
}

// UpdateWorkersTotal sets the number of registered workers.
func UpdateWorkersTotal(count int) {
	globalManager.workersTotal.Set(float64(count))
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current reconcile queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the reconcile queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the reconcile queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the number of reconcile workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records reconcile task processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordReconcileResult records the result of one reconcile task attempt.
func RecordReconcileResult(result string) {
	globalManager.reconcileResults.WithLabelValues(result).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
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
