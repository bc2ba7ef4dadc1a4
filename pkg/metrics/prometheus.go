// Package metrics provides Prometheus metrics for the starboard engine.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         *prometheus.Registry

	// Star mutation metrics
	deltas            *prometheus.CounterVec
	starsRealized     *prometheus.CounterVec
	clamps            prometheus.Counter
	shares            *prometheus.CounterVec
	conflictRetries   prometheus.Counter
	duplicateRequests prometheus.Counter
	mutationLatency   prometheus.Histogram

	// Ranking metrics
	recomputes       prometheus.Counter
	recomputeLatency prometheus.Histogram

	// Effect lifecycle metrics
	effectsActivated *prometheus.CounterVec
	effectsClosed    *prometheus.CounterVec
	activations      *prometheus.CounterVec
	activeEffects    prometheus.Gauge

	// Repository metrics
	repositoryShardCount    prometheus.Gauge
	repositoryCellsTotal    prometheus.Gauge
	repositoryCellsPerShard *prometheus.GaugeVec
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Change feed queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Change feed worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	feedEntries             *prometheus.CounterVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance. It starts with defaults so packages can
// record before the process calls Init.
var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // intentional global for singleton metrics manager

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager.Store(NewManager())
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before the registry is served.
func Init(opts ...Option) {
	globalManager.Store(NewManager(opts...))
}

// NewManager creates a new metrics manager. Without WithPrometheusRegistry
// it registers on a registry of its own, so Go runtime collectors stay out.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "starboard",
		subsystem:        "engine",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()

	return m
}

// recorder returns the global manager while collection is enabled.
func recorder() (*Manager, bool) {
	m := globalManager.Load()
	return m, m.enabled
}

// Enabled reports whether the global manager records anything.
func Enabled() bool {
	return globalManager.Load().enabled
}

// RefreshInterval is how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.Load().refreshInterval
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.deltas = auto.NewCounterVec(m.counterOpts("deltas_total", "Star delta requests by outcome"), []string{"outcome"})
	m.starsRealized = auto.NewCounterVec(m.counterOpts("stars_realized_total", "Absolute realized star change by direction"), []string{"direction"})
	m.clamps = auto.NewCounter(m.counterOpts("zero_floor_clamps_total", "Mutations clamped at zero stars"))
	m.shares = auto.NewCounterVec(m.counterOpts("shares_total", "Partner shares applied by kind and outcome"), []string{"kind", "outcome"})
	m.conflictRetries = auto.NewCounter(m.counterOpts("conflict_retries_total", "Compare-and-set retries on star commits"))
	m.duplicateRequests = auto.NewCounter(m.counterOpts("duplicate_requests_total", "Delta requests answered from the request id cache"))
	m.mutationLatency = auto.NewHistogram(m.histogramOpts("mutation_latency_milliseconds", "Star mutation latency in milliseconds", m.histogramBuckets))

	m.recomputes = auto.NewCounter(m.counterOpts("recomputes_total", "Location point recomputations"))
	m.recomputeLatency = auto.NewHistogram(m.histogramOpts("recompute_latency_milliseconds", "Location point recomputation latency in milliseconds", m.histogramBuckets))

	m.effectsActivated = auto.NewCounterVec(m.counterOpts("effects_activated_total", "Effects activated by kind"), []string{"kind"})
	m.effectsClosed = auto.NewCounterVec(m.counterOpts("effects_closed_total", "Effects closed by reason"), []string{"reason"})
	m.activations = auto.NewCounterVec(m.counterOpts("activations_total", "Card plays and random events by category and type"), []string{"category", "type"})
	m.activeEffects = auto.NewGauge(m.gaugeOpts("active_effects", "Effects currently in force"))

	m.repositoryShardCount = auto.NewGauge(m.gaugeOpts("repository_shard_count", "Number of in-memory repository shards"))
	m.repositoryCellsTotal = auto.NewGauge(m.gaugeOpts("repository_cells_total", "Number of star cells stored"))
	m.repositoryCellsPerShard = auto.NewGaugeVec(m.gaugeOpts("repository_cells_per_shard", "Number of star cells per shard"), []string{"shard_id"})
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency in milliseconds", m.histogramBuckets))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Repository read latency in milliseconds", m.histogramBuckets))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("feed_queue_size", "Change log entries waiting in the feed queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("feed_queue_capacity", "Feed queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("feed_queue_utilization_ratio", "Feed queue utilization ratio"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("feed_queue_enqueued_total", "Entries published to the feed"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("feed_queue_dequeued_total", "Entries taken from the feed"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("feed_queue_dropped_total", "Entries dropped because the feed was full or closed"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("feed_worker_count", "Feed workers running"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("feed_worker_active_count", "Feed workers handling an entry"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("feed_worker_idle_count", "Feed workers waiting for an entry"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("feed_worker_processing_latency_milliseconds", "Time spent delivering one entry to all sinks", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("feed_worker_errors_total", "Sink delivery failures"))
	m.feedEntries = auto.NewCounterVec(m.counterOpts("feed_entries_total", "Change log entries seen by the metrics sink by source"), []string{"source"})

	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and type"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Star mutation metrics.

// RecordDelta counts a delta request by outcome (applied, not_found, conflict, error).
func RecordDelta(outcome string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.deltas.WithLabelValues(outcome).Inc()
}

// RecordRealizedChange adds the absolute realized change under its direction.
func RecordRealizedChange(change float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	switch {
	case change > 0:
		m.starsRealized.WithLabelValues("gain").Add(change)
	case change < 0:
		m.starsRealized.WithLabelValues("loss").Add(-change)
	}
}

// RecordClamp counts a mutation that hit the zero floor.
func RecordClamp() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.clamps.Inc()
}

// RecordShare counts a partner share by effect kind and outcome.
func RecordShare(kind, outcome string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.shares.WithLabelValues(kind, outcome).Inc()
}

// RecordConflictRetry counts a compare-and-set retry.
func RecordConflictRetry() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.conflictRetries.Inc()
}

// RecordDuplicateRequest counts a request served from the request id cache.
func RecordDuplicateRequest() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.duplicateRequests.Inc()
}

// RecordMutationLatency records star mutation latency in milliseconds.
func RecordMutationLatency(latencyMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.mutationLatency.Observe(latencyMs)
}

// Ranking metrics.

// RecordRecompute counts a location recompute and its latency in milliseconds.
func RecordRecompute(latencyMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.recomputes.Inc()
	m.recomputeLatency.Observe(latencyMs)
}

// Effect lifecycle metrics.

// RecordEffectActivated counts an activated effect.
func RecordEffectActivated(kind string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.effectsActivated.WithLabelValues(kind).Inc()
}

// RecordEffectsClosed counts closed effects by reason (manual, swept, activation, purify).
func RecordEffectsClosed(reason string, n int) {
	m, ok := recorder()
	if !ok {
		return
	}
	if n <= 0 {
		return
	}
	m.effectsClosed.WithLabelValues(reason).Add(float64(n))
}

// RecordActivation counts a card play or random event.
func RecordActivation(category, typ string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.activations.WithLabelValues(category, typ).Inc()
}

// UpdateActiveEffects sets the number of effects in force.
func UpdateActiveEffects(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.activeEffects.Set(float64(count))
}

// Repository metrics.

// UpdateRepositoryShardCount sets the number of repository shards.
func UpdateRepositoryShardCount(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.repositoryShardCount.Set(float64(count))
}

// UpdateRepositoryCellsTotal sets the number of stored cells.
func UpdateRepositoryCellsTotal(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.repositoryCellsTotal.Set(float64(count))
}

// UpdateRepositoryCellsPerShard sets the number of cells held by one shard.
func UpdateRepositoryCellsPerShard(shardID string, count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.repositoryCellsPerShard.WithLabelValues(shardID).Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.repositoryQueryLatency.Observe(latencyMs)
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Change feed metrics.

// UpdateQueueSize sets the current feed queue size.
func UpdateQueueSize(size int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the feed queue capacity.
func UpdateQueueCapacity(capacity int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the feed queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts an entry the feed could not accept.
func RecordQueueEnqueueError() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of feed workers.
func UpdateWorkerCount(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy feed workers.
func UpdateWorkerActiveCount(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle feed workers.
func UpdateWorkerIdleCount(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records the time to deliver one entry.
func RecordWorkerProcessingLatency(latencyMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a sink delivery failure.
func RecordWorkerError() {
	m, ok := recorder()
	if !ok {
		return
	}
	m.workerErrors.Inc()
}

// RecordFeedEntry counts a change log entry by source.
func RecordFeedEntry(source string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.feedEntries.WithLabelValues(source).Inc()
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	m, ok := recorder()
	if !ok {
		return
	}
	m.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the Prometheus registry of the global manager.
func GetRegistry() *prometheus.Registry {
	return globalManager.Load().registry
}
