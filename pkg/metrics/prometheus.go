package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by callers.
const (
	ResultInserted  = "inserted"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
	ResultExcluded  = "excluded"

	OutcomeOK       = "ok"
	OutcomeRetry    = "retry"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Manager manages all Prometheus metrics for the ghpulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline runs
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Bronze layer
	rawWrites  *prometheus.CounterVec
	rawRecords *prometheus.GaugeVec

	// Platform API
	apiCalls      *prometheus.CounterVec
	apiRetryDelay prometheus.Histogram

	// Discovery and per-repo ingestion
	discoveryFailures *prometheus.CounterVec
	reposIngested     *prometheus.CounterVec

	// Silver and gold layers
	silverEntities  *prometheus.GaugeVec
	countersWritten prometheus.Counter

	// Repo job queue and workers
	queueSize       prometheus.Gauge
	queueEnqueued   prometheus.Counter
	queueDequeued   prometheus.Counter
	queueRejected   *prometheus.CounterVec
	workerActive    prometheus.Gauge
	workerLatency   prometheus.Histogram
	workerErrorRate prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ghpulse",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	m.runs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Pipeline runs by final status",
	}, []string{"status"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full ingest, normalize and aggregate run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	m.rawWrites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "raw_writes_total",
		Help:      "Raw event writes by kind and result",
	}, []string{"kind", "result"})

	m.apiCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "api_calls_total",
		Help:      "Platform API attempts by operation and outcome",
	}, []string{"op", "outcome"})

	m.apiRetryDelay = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "api_retry_delay_seconds",
		Help:      "Backoff waited before retrying a platform API call",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 60, 300, 900, 3600},
	})

	m.discoveryFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "discovery_failures_total",
		Help:      "Failed discovery searches by search type",
	}, []string{"search"})

	m.reposIngested = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repos_ingested_total",
		Help:      "Repositories processed by the ingestion pass by result",
	}, []string{"result"})

	m.rawRecords = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "raw_records",
		Help:      "Records held by the raw store mirror by table",
	}, []string{"table"})

	m.silverEntities = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "silver_entities",
		Help:      "Canonical entities in the last built bundle by kind",
	}, []string{"kind"})

	m.countersWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "activity_counters_written_total",
		Help:      "Activity counter rows persisted",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repo_queue_size",
		Help:      "Repository jobs waiting for a worker",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repo_queue_enqueued_total",
		Help:      "Repository jobs enqueued",
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repo_queue_dequeued_total",
		Help:      "Repository jobs dequeued",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repo_queue_rejected_total",
		Help:      "Repository jobs refused by the queue by reason",
	}, []string{"reason"})

	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "workers_active",
		Help:      "Workers currently running",
	})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repo_ingest_duration_seconds",
		Help:      "Time to run all fetch phases for one repository",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Repository jobs that returned an error",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordRun records a finished pipeline run.
func RecordRun(status string, seconds float64) {
	globalManager.runs.WithLabelValues(status).Inc()
	globalManager.runDuration.Observe(seconds)
}

// RecordRawWrite records the result of a raw event write.
func RecordRawWrite(kind, result string) {
	globalManager.rawWrites.WithLabelValues(kind, result).Inc()
}

// UpdateRawRecords sets the mirror size of table.
func UpdateRawRecords(table string, count int) {
	globalManager.rawRecords.WithLabelValues(table).Set(float64(count))
}

// RecordAPICall records one platform API attempt.
func RecordAPICall(op, outcome string) {
	globalManager.apiCalls.WithLabelValues(op, outcome).Inc()
}

// RecordRetryDelay records a backoff wait in seconds.
func RecordRetryDelay(seconds float64) {
	globalManager.apiRetryDelay.Observe(seconds)
}

// RecordDiscoveryFailure increments the failed search counter.
func RecordDiscoveryFailure(search string) {
	globalManager.discoveryFailures.WithLabelValues(search).Inc()
}

// RecordRepoIngested records a repository outcome.
func RecordRepoIngested(result string) {
	globalManager.reposIngested.WithLabelValues(result).Inc()
}

// UpdateSilverEntities sets the entity count for kind.
func UpdateSilverEntities(kind string, count int) {
	globalManager.silverEntities.WithLabelValues(kind).Set(float64(count))
}

// RecordCountersWritten adds n persisted activity counter rows.
func RecordCountersWritten(n int) {
	globalManager.countersWritten.Add(float64(n))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected records a job the queue refused.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-repo processing time in seconds.
func RecordWorkerProcessingLatency(seconds float64) {
	globalManager.workerLatency.Observe(seconds)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
