// Package metrics provides Prometheus metrics for the reconciliation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the reconciliation service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Scan metrics
	recordsScanned   *prometheus.CounterVec
	pageFetches      *prometheus.CounterVec
	pageFetchLatency *prometheus.HistogramVec
	scanErrors       *prometheus.CounterVec

	// Mutation metrics
	mutations       *prometheus.CounterVec
	mutationRetries *prometheus.CounterVec
	throttles       *prometheus.CounterVec
	mutationLatency *prometheus.HistogramVec

	// Job metrics
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	activeRuns   prometheus.Gauge
	indexEntries *prometheus.GaugeVec
	indexDupes   *prometheus.CounterVec

	// Async execution metrics
	queueSize    prometheus.Gauge
	queueRejects prometheus.Counter
	workerCount  prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
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
		namespace:        "reconcile",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.recordsScanned = m.counterVec("records_scanned_total",
		"Records yielded by the paged scanner", "entity")
	m.pageFetches = m.counterVec("page_fetches_total",
		"List calls issued against the store", "entity")
	m.pageFetchLatency = m.histogramVec("page_fetch_duration_seconds",
		"Latency of a single page fetch", "entity")
	m.scanErrors = m.counterVec("scan_errors_total",
		"Scans aborted by a store read failure", "entity")

	m.mutations = m.counterVec("mutations_total",
		"Per-record mutation outcomes", "job", "outcome")
	m.mutationRetries = m.counterVec("mutation_retries_total",
		"Store calls retried after a throttling signal", "op")
	m.throttles = m.counterVec("throttled_total",
		"Throttling signals received from the store", "op")
	m.mutationLatency = m.histogramVec("mutation_duration_seconds",
		"Latency of a mutation including retries", "op")

	m.jobRuns = m.counterVec("job_runs_total",
		"Job runs by final status", "job", "status")
	m.jobDuration = m.histogramVec("job_duration_seconds",
		"Wall time of a job run", "job")
	m.activeRuns = m.gauge("active_runs", "Job runs currently executing")
	m.indexEntries = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "index_entries",
		Help:        "Entries in the last relationship index built per job",
		ConstLabels: m.constLabels,
	}, []string{"job"})
	m.indexDupes = m.counterVec("index_conflicts_total",
		"Duplicate keys with a differing value dropped by the tie-break policy", "job")

	m.queueSize = m.gauge("queue_size", "Job requests waiting for a worker")
	m.queueRejects = promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_rejections_total",
		Help:        "Job requests rejected because the queue was full or closed",
		ConstLabels: m.constLabels,
	})
	m.workerCount = m.gauge("worker_count", "Workers executing asynchronous job runs")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_seconds",
		"HTTP request latency", "endpoint", "method", "status_code")
	m.httpErrors = m.counterVec("http_errors_total",
		"HTTP responses with status >= 400", "endpoint", "error_type")
}

// Scan metrics.

// RecordRecordsScanned adds n scanned records for entity.
func RecordRecordsScanned(entity string, n int) {
	globalManager.recordsScanned.WithLabelValues(entity).Add(float64(n))
}

// RecordPageFetch records one List call and its latency in seconds.
func RecordPageFetch(entity string, seconds float64) {
	globalManager.pageFetches.WithLabelValues(entity).Inc()
	globalManager.pageFetchLatency.WithLabelValues(entity).Observe(seconds)
}

// RecordScanError records an aborted scan.
func RecordScanError(entity string) {
	globalManager.scanErrors.WithLabelValues(entity).Inc()
}

// Mutation metrics.

// RecordMutation records a per-record outcome (updated, deleted, skipped, failed).
func RecordMutation(job, outcome string) {
	globalManager.mutations.WithLabelValues(job, outcome).Inc()
}

// RecordRetry records a retried store call.
func RecordRetry(op string) {
	globalManager.mutationRetries.WithLabelValues(op).Inc()
}

// RecordThrottle records a throttling signal from the store.
func RecordThrottle(op string) {
	globalManager.throttles.WithLabelValues(op).Inc()
}

// RecordMutationLatency observes the latency of one mutation.
func RecordMutationLatency(op string, seconds float64) {
	globalManager.mutationLatency.WithLabelValues(op).Observe(seconds)
}

// Job metrics.

// RecordJobRun records a finished run.
func RecordJobRun(job, status string, seconds float64) {
	globalManager.jobRuns.WithLabelValues(job, status).Inc()
	globalManager.jobDuration.WithLabelValues(job).Observe(seconds)
}

// IncActiveRuns increments the active runs gauge.
func IncActiveRuns() { globalManager.activeRuns.Inc() }

// DecActiveRuns decrements the active runs gauge.
func DecActiveRuns() { globalManager.activeRuns.Dec() }

// UpdateIndexEntries sets the size of the last index built for job.
func UpdateIndexEntries(job string, n int) {
	globalManager.indexEntries.WithLabelValues(job).Set(float64(n))
}

// RecordIndexConflicts adds n tie-break conflicts for job.
func RecordIndexConflicts(job string, n int) {
	if n > 0 {
		globalManager.indexDupes.WithLabelValues(job).Add(float64(n))
	}
}

// Async execution metrics.

// UpdateQueueSize sets the job queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// RecordQueueReject records a rejected job request.
func RecordQueueReject() { globalManager.queueRejects.Inc() }

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(n int) { globalManager.workerCount.Set(float64(n)) }

// HTTP metrics.

// RecordHTTPRequest records a request and its latency in seconds.
func RecordHTTPRequest(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordHTTPError records an error response.
func RecordHTTPError(endpoint, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, errorType).Inc()
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
