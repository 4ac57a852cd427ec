// Package metrics provides Prometheus metrics for the detflow service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Conversation flow
	messages          *prometheus.CounterVec
	messagesDuplicate prometheus.Counter
	workflowDuration  *prometheus.HistogramVec
	workflowErrors    *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	plansCreated      prometheus.Counter

	// Model selection and providers
	modelSelections  *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerErrors   *prometheus.CounterVec

	// Storage and locking
	repositoryDuration *prometheus.HistogramVec
	repositoryErrors   *prometheus.CounterVec
	lockWait           prometheus.Histogram
	lockContention     prometheus.Counter

	// Dispatch
	queueDepth        *prometheus.GaugeVec
	queueCapacity     prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueBackpressure prometheus.Counter
	workerCount       prometheus.Gauge
	workerProcessed   prometheus.Counter
	workerLatency     prometheus.Histogram
	workerErrors      prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "detflow",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	providerBuckets := []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60}
	fastBuckets := []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

	m.messages = auto.NewCounterVec(m.counter("messages_total",
		"Inbound messages processed, by classified intent"), []string{"intent"})
	m.messagesDuplicate = auto.NewCounter(m.counter("messages_duplicate_total",
		"Inbound messages suppressed as redeliveries"))
	m.workflowDuration = auto.NewHistogramVec(m.histogram("workflow_duration_seconds",
		"Workflow duration in seconds", providerBuckets), []string{"workflow"})
	m.workflowErrors = auto.NewCounterVec(m.counter("workflow_errors_total",
		"Workflows that ended in an apology"), []string{"workflow"})
	m.submissions = auto.NewCounterVec(m.counter("submissions_total",
		"Submission status transitions"), []string{"status"})
	m.plansCreated = auto.NewCounter(m.counter("study_plans_created_total",
		"Study plans persisted"))

	m.modelSelections = auto.NewCounterVec(m.counter("model_selections_total",
		"Model recommendations, by activity, model and outcome"), []string{"activity", "model", "outcome"})
	m.providerDuration = auto.NewHistogramVec(m.histogram("provider_call_duration_seconds",
		"Language-model call duration in seconds", providerBuckets), []string{"activity", "provider"})
	m.providerErrors = auto.NewCounterVec(m.counter("provider_errors_total",
		"Failed language-model calls"), []string{"activity", "provider"})

	m.repositoryDuration = auto.NewHistogramVec(m.histogram("repository_operation_duration_seconds",
		"Store operation duration in seconds", fastBuckets), []string{"backend", "operation"})
	m.repositoryErrors = auto.NewCounterVec(m.counter("repository_errors_total",
		"Failed store operations"), []string{"backend", "operation"})
	m.lockWait = auto.NewHistogram(m.histogram("lock_wait_seconds",
		"Time spent acquiring a caller lock", fastBuckets))
	m.lockContention = auto.NewCounter(m.counter("lock_contention_total",
		"Caller lock attempts that found the lock held"))

	m.queueDepth = auto.NewGaugeVec(m.gauge("queue_depth",
		"Messages waiting per dispatch shard"), []string{"shard"})
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity",
		"Total dispatch queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total",
		"Messages accepted for dispatch"))
	m.queueBackpressure = auto.NewCounter(m.counter("queue_backpressure_total",
		"Messages rejected because a shard queue was full"))
	m.workerCount = auto.NewGauge(m.gauge("worker_count",
		"Running dispatch workers"))
	m.workerProcessed = auto.NewCounter(m.counter("worker_processed_total",
		"Messages processed by dispatch workers"))
	m.workerLatency = auto.NewHistogram(m.histogram("worker_processing_seconds",
		"Per-message processing time in seconds", providerBuckets))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total",
		"Messages whose handler returned an error"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total",
		"HTTP requests"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_seconds",
		"HTTP request duration in seconds", nil), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes",
		"Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count",
		"Number of goroutines"))
}

// RecordMessage counts a processed inbound message.
func RecordMessage(intent string) {
	globalManager.messages.WithLabelValues(intent).Inc()
}

// RecordMessageDuplicate counts a suppressed redelivery.
func RecordMessageDuplicate() {
	globalManager.messagesDuplicate.Inc()
}

// RecordWorkflow records one workflow run.
func RecordWorkflow(workflow string, seconds float64, failed bool) {
	globalManager.workflowDuration.WithLabelValues(workflow).Observe(seconds)
	if failed {
		globalManager.workflowErrors.WithLabelValues(workflow).Inc()
	}
}

// RecordSubmission counts a submission entering status.
func RecordSubmission(status string) {
	globalManager.submissions.WithLabelValues(status).Inc()
}

// RecordPlanCreated counts a persisted study plan.
func RecordPlanCreated() {
	globalManager.plansCreated.Inc()
}

// RecordModelSelection counts a recommendation.
func RecordModelSelection(activity, model, outcome string) {
	globalManager.modelSelections.WithLabelValues(activity, model, outcome).Inc()
}

// RecordProviderCall records a language-model call.
func RecordProviderCall(activity, provider string, seconds float64, failed bool) {
	globalManager.providerDuration.WithLabelValues(activity, provider).Observe(seconds)
	if failed {
		globalManager.providerErrors.WithLabelValues(activity, provider).Inc()
	}
}

// RecordRepositoryOp records a store operation.
func RecordRepositoryOp(backend, operation string, seconds float64, failed bool) {
	globalManager.repositoryDuration.WithLabelValues(backend, operation).Observe(seconds)
	if failed {
		globalManager.repositoryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordLockWait records time spent acquiring a caller lock.
func RecordLockWait(seconds float64) {
	globalManager.lockWait.Observe(seconds)
}

// RecordLockContention counts an acquire attempt that found the lock held.
func RecordLockContention() {
	globalManager.lockContention.Inc()
}

// UpdateQueueDepth sets the backlog of one shard.
func UpdateQueueDepth(shard string, depth int) {
	globalManager.queueDepth.WithLabelValues(shard).Set(float64(depth))
}

// UpdateQueueCapacity sets the total queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted message.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueBackpressure counts a rejected message.
func RecordQueueBackpressure() {
	globalManager.queueBackpressure.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessed records one handled message.
func RecordWorkerProcessed(seconds float64, failed bool) {
	globalManager.workerProcessed.Inc()
	globalManager.workerLatency.Observe(seconds)
	if failed {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent counts an error.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap bytes in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
