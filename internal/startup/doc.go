// Package startup loads configuration and logs the application lifecycle.
//
// # Configuration
//
// [LoadConfig] builds a single [Config] at boot. Values are resolved from
// built-in defaults, then the YAML file named by CONFIG_FILE, then the
// environment. Invalid values are logged and replaced by their defaults; an
// unusable work or database directory is an error.
//
//   - PORT, METRICS_PORT, METRICS_ENABLED, LOG_HEALTH_CHECKS
//   - WORK_DIR: where input and output artifacts live (default: $TMPDIR/video-optimizer)
//   - DATABASE_DIR: job history database (default: /database)
//   - TRANSFORM: ffmpeg or docker
//   - FFMPEG_PATH, FFPROBE_PATH, FFMPEG_THREADS, FFMPEG_PRESET
//   - DOCKER_PATH, DOCKER_IMAGE
//   - DEFAULT_CRF: quality used when a request names neither crf nor scale
//   - TRANSCODE_WORKERS, TRANSCODE_TIMEOUT, QUEUE_TIMEOUT
//   - MAX_UPLOAD_SIZE, MAX_DIAGNOSTIC_BYTES, MIN_FREE_DISK, BUFFER_THRESHOLD
//     (sizes accept suffixes such as 512MiB or 2GB)
//   - HISTORY_RETENTION: how long job history is kept (0 keeps it forever)
//   - MEMORY_HIGH_PERCENT, MEMORY_SYSTEM_HIGH_PERCENT, MEMORY_CHECK_INTERVAL:
//     memory monitor thresholds (MEMORY_LIMIT and MEMORY_RATIO are read
//     earlier by the memory package)
//
// A YAML file uses the same names in any case:
//
//	work_dir: /var/lib/video-optimizer/work
//	transform: docker
//	transcode_timeout: 15m
//	max_upload_size: 4GiB
//
// # Build Information
//
// Version, Commit and BuildTime are injected with -ldflags and exposed via
// [GetBuildInfo].
package startup
