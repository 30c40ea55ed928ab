// Package metrics provides Prometheus metrics for the showcase personalization service.
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
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Personalization core
	interactionsRecorded  *prometheus.CounterVec
	interactionsRejected  *prometheus.CounterVec
	interactionsEvicted   prometheus.Counter
	historyEvicted        prometheus.Counter
	sessionsStarted       prometheus.Counter
	scoringLatency        prometheus.Histogram
	recommendationsServed prometheus.Counter
	eventsDuplicate       prometheus.Counter

	// Profile store
	profileLoads         prometheus.Counter
	profileLoadFallbacks *prometheus.CounterVec
	profileSaves         prometheus.Counter
	profileSaveErrors    *prometheus.CounterVec
	profileSaveLatency   prometheus.Histogram
	breakerState         *prometheus.GaugeVec

	// Change notification
	broadcasts        *prometheus.CounterVec
	listenerCount     prometheus.Gauge
	listenerPanics    prometheus.Counter
	bridgePublishFail prometheus.Counter

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "showcase",
		subsystem:        "personalization",
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

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.interactionsRecorded = m.counterVec("interactions_recorded_total", "Interactions appended to a profile, by action", "action")
	m.interactionsRejected = m.counterVec("interactions_rejected_total", "Interactions rejected as caller contract violations", "reason")
	m.interactionsEvicted = m.counter("interactions_evicted_total", "Interactions dropped from the front of a profile on overflow")
	m.historyEvicted = m.counter("history_evicted_total", "Browsing history entries dropped on overflow")
	m.sessionsStarted = m.counter("sessions_started_total", "Sessions started")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Time to score a catalog against a profile", m.histogramBuckets)
	m.recommendationsServed = m.counter("recommendations_served_total", "Recommendation lists returned to callers")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Interaction events dropped as duplicates")

	m.profileLoads = m.counter("profile_loads_total", "Profile loads")
	m.profileLoadFallbacks = m.counterVec("profile_load_fallbacks_total", "Profile loads that substituted the empty default", "reason")
	m.profileSaves = m.counter("profile_saves_total", "Profile saves attempted")
	m.profileSaveErrors = m.counterVec("profile_save_errors_total", "Profile saves that failed and were ignored", "reason")
	m.profileSaveLatency = m.histogram("profile_save_latency_milliseconds", "Backend write latency", m.histogramBuckets)
	m.breakerState = m.gaugeVec("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)", "name")

	m.broadcasts = m.counterVec("profile_changed_broadcasts_total", "ProfileChanged notifications published, by reason", "reason")
	m.listenerCount = m.gauge("profile_changed_listeners", "Registered ProfileChanged listeners")
	m.listenerPanics = m.counter("profile_changed_listener_panics_total", "Listener panics recovered during broadcast")
	m.bridgePublishFail = m.counter("bridge_publish_errors_total", "ProfileChanged events the pub/sub bridge failed to publish")

	m.queueSize = m.gauge("queue_size", "Events waiting in the ingestion queue")
	m.queueCapacity = m.gauge("queue_capacity", "Ingestion queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Ingestion queue fill ratio")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events dequeued")
	m.queueRejected = m.counterVec("queue_rejected_total", "Events the queue refused", "reason")

	m.workerCount = m.gauge("worker_count", "Running ingestion workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one event", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Events a worker failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

// Personalization core.

// RecordInteraction counts an interaction appended to a profile.
func RecordInteraction(action string) {
	globalManager.interactionsRecorded.WithLabelValues(action).Inc()
}

// RecordInteractionRejected counts a record call refused for reason.
func RecordInteractionRejected(reason string) {
	globalManager.interactionsRejected.WithLabelValues(reason).Inc()
}

// RecordInteractionsEvicted adds n evicted interactions.
func RecordInteractionsEvicted(n int) {
	if n > 0 {
		globalManager.interactionsEvicted.Add(float64(n))
	}
}

// RecordHistoryEvicted adds n evicted browsing history entries.
func RecordHistoryEvicted(n int) {
	if n > 0 {
		globalManager.historyEvicted.Add(float64(n))
	}
}

// RecordSessionStarted counts a started session.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordRecommendationsServed counts a served recommendation list.
func RecordRecommendationsServed() {
	globalManager.recommendationsServed.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// Profile store.

// RecordProfileLoad counts a profile load.
func RecordProfileLoad() {
	globalManager.profileLoads.Inc()
}

// RecordProfileLoadFallback counts a load that fell back to defaults.
func RecordProfileLoadFallback(reason string) {
	globalManager.profileLoadFallbacks.WithLabelValues(reason).Inc()
}

// RecordProfileSave counts a save attempt.
func RecordProfileSave() {
	globalManager.profileSaves.Inc()
}

// RecordProfileSaveError counts a failed, ignored save.
func RecordProfileSaveError(reason string) {
	globalManager.profileSaveErrors.WithLabelValues(reason).Inc()
}

// RecordProfileSaveLatency records backend write latency in milliseconds.
func RecordProfileSaveLatency(latencyMs float64) {
	globalManager.profileSaveLatency.Observe(latencyMs)
}

// UpdateBreakerState publishes the numeric state of a circuit breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// Change notification.

// RecordBroadcast counts a published ProfileChanged notification.
func RecordBroadcast(reason string) {
	globalManager.broadcasts.WithLabelValues(reason).Inc()
}

// UpdateListenerCount sets the number of registered listeners.
func UpdateListenerCount(n int) {
	globalManager.listenerCount.Set(float64(n))
}

// RecordListenerPanic counts a recovered listener panic.
func RecordListenerPanic() {
	globalManager.listenerPanics.Inc()
}

// RecordBridgePublishError counts a failed bridge publish.
func RecordBridgePublishError() {
	globalManager.bridgePublishFail.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts an event the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

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
