package metrics

// Job outcomes used as label values on JobsTotal.
var Outcomes = []string{
	"success", "validation", "ingestion", "admission",
	"transform", "timeout", "canceled", "delivery", "internal",
}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup.
func InitializeMetrics(backend string) {
	for _, outcome := range Outcomes {
		JobsTotal.WithLabelValues(outcome)
	}

	for _, mode := range []string{"quality", "scale"} {
		JobDuration.WithLabelValues(mode)
	}

	for _, status := range []string{"success", "error"} {
		TransformDuration.WithLabelValues(backend, status)
	}

	for _, role := range []string{"input", "output", "scope"} {
		ArtifactsLive.WithLabelValues(role)
	}

	for _, op := range []string{"remove", "remove_all", "open", "stat"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, op := range []string{"record_job", "get_job", "list_jobs", "stats", "prune"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
