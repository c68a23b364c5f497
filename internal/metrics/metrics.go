package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_optimizer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Job pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_jobs_total",
			Help: "Total number of transcode jobs by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_optimizer_job_duration_seconds",
			Help:    "End-to-end job duration in seconds, from upload to cleanup",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_jobs_in_progress",
			Help: "Number of jobs currently between upload and cleanup",
		},
	)

	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_optimizer_transform_duration_seconds",
			Help:    "Duration of the external transform invocation in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"backend", "status"},
	)

	TransformsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_transforms_running",
			Help: "Number of external transform processes currently running",
		},
	)

	QueueWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_optimizer_queue_wait_seconds",
			Help:    "Time a job waited for a free transform worker",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_queue_depth",
			Help: "Number of jobs waiting for a transform worker",
		},
	)

	BytesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_optimizer_ingested_bytes_total",
			Help: "Total bytes written to input artifacts",
		},
	)

	BytesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_optimizer_delivered_bytes_total",
			Help: "Total bytes of output artifacts sent to callers",
		},
	)
)

// Artifact metrics
var (
	ArtifactsLive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_optimizer_artifacts_live",
			Help: "Number of allocated temporary artifacts not yet released",
		},
		[]string{"role"},
	)

	CleanupWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_optimizer_cleanup_warnings_total",
			Help: "Total number of artifact removals that failed",
		},
	)

	WorkDirFreeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_work_dir_free_bytes",
			Help: "Free space on the volume holding the work directory",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_filesystem_retry_attempts_total",
			Help: "Total number of retries after a transient filesystem error",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of GOMEMLIMIT",
		},
	)

	SystemMemoryUsedPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_system_memory_used_percent",
			Help: "Host memory in use, including transform child processes",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_optimizer_memory_throttled",
			Help: "1 while buffered delivery is disabled due to memory pressure",
		},
	)
)

// History metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_optimizer_db_queries_total",
			Help: "Total number of job history queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_optimizer_db_query_duration_seconds",
			Help:    "Job history query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	HistoryJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_optimizer_history_jobs",
			Help: "Number of jobs held in the history ledger by status",
		},
		[]string{"status"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_optimizer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version", "backend"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion, backend string) {
	AppInfo.WithLabelValues(version, commit, goVersion, backend).Set(1)
}
