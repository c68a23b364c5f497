// Package metrics provides Prometheus instrumentation for the video optimizer.
//
// All metrics are prefixed with "video_optimizer_" and registered on the
// default registry via promauto. Expose them by mounting promhttp.Handler()
// on the metrics listener.
//
// # Metric Categories
//
// ## HTTP Metrics
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests being processed
//
// ## Job Pipeline Metrics
//   - JobsTotal: Counter of jobs by outcome (success, validation, ingestion,
//     admission, transform, timeout, canceled, delivery, internal)
//   - JobDuration: Histogram of end-to-end job time by parameter mode
//   - JobsInProgress: Gauge of jobs between upload and cleanup
//   - TransformDuration: Histogram of external tool runtime by backend and status
//   - TransformsRunning: Gauge of running external processes
//   - QueueWaitDuration / QueueDepth: admission control behavior
//   - BytesIngested / BytesDelivered: traffic through the pipeline
//
// ## Artifact Metrics
//   - ArtifactsLive: Gauge of allocated, unreleased artifacts by role. A value
//     that stays above zero while the service is idle indicates a leak.
//   - CleanupWarnings: Counter of failed artifact removals
//   - WorkDirFreeBytes: Free space on the work volume
//   - FilesystemRetryAttempts / FilesystemRetrySuccess / FilesystemRetryFailures:
//     transient remove and open errors on network-mounted work dirs, by operation
//
// ## Memory Metrics
//   - MemoryUsageRatio: Go heap as a fraction of GOMEMLIMIT
//   - SystemMemoryUsedPercent: host memory in use
//   - MemoryThrottled: 1 while buffered delivery is disabled
//
// ## History Metrics
//   - DBQueryTotal / DBQueryDuration: job ledger queries
//   - HistoryJobs: Jobs held in the ledger by status
//
// # Prometheus Queries
//
// Failure rate by outcome:
//
//	sum(rate(video_optimizer_jobs_total{outcome!="success"}[5m])) by (outcome)
//
// P95 transform time:
//
//	histogram_quantile(0.95, sum(rate(video_optimizer_transform_duration_seconds_bucket[5m])) by (le))
//
// Leaked artifacts:
//
//	sum(video_optimizer_artifacts_live) > 0 and video_optimizer_jobs_in_progress == 0
package metrics
