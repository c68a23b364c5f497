// Package main provides the entry point for the video optimizer service.
//
// The service accepts a video upload over HTTP, re-encodes it to H.264/AAC
// MP4 with ffmpeg (run locally or inside a container), streams the result
// back in the same response and removes every temporary file it created.
//
// # Application Lifecycle
//
// The application follows a structured initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Configuration Loading: Reads CONFIG_FILE and the environment, prepares directories
//  3. Database Initialization: Opens the SQLite job history
//  4. Work Directory: Creates the artifact allocator and sweeps stale files
//  5. Component Initialization:
//     - Transcoder: Selects the ffmpeg or container backend and checks the tool
//     - Memory Monitor: Tracks heap and host memory pressure
//     - Metrics Collector: Refreshes job and disk gauges
//     - Pipeline: Bounded worker pool that runs one job per request
//  6. HTTP Server Setup: Configures routes, middleware, and starts server
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - POST /compress/, /compress and /optimize-video
//     - Health, liveness and readiness probes
//     - Job history under /api
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Health check endpoint (/health)
//
// # Environment Variables
//
// Every key may also be set in the YAML file named by CONFIG_FILE; the
// environment wins. The most common keys:
//
//   - PORT: Main HTTP server port (default: 8080)
//   - METRICS_PORT / METRICS_ENABLED: Metrics server (default: 9090, true)
//   - WORK_DIR: Directory for upload and output artifacts
//   - DATABASE_DIR: Directory for the job history database
//   - TRANSFORM: ffmpeg (default) or docker
//   - FFMPEG_THREADS / FFMPEG_PRESET: Encoder settings (default: 4, ultrafast)
//   - DEFAULT_CRF: Quality used when a request names neither crf nor scale
//   - TRANSCODE_WORKERS: Concurrent transforms (default: derived from CPUs)
//   - TRANSCODE_TIMEOUT / QUEUE_TIMEOUT: Job bounds (default: 10m, 30s)
//   - MAX_UPLOAD_SIZE / MIN_FREE_DISK: Upload limits (default: 2GiB, 512MiB)
//   - HISTORY_RETENTION: How long finished jobs are kept (default: 168h)
//   - LOG_LEVEL: Logging level (debug/info/warn/error)
//
// # Graceful Shutdown
//
// The application handles SIGINT and SIGTERM signals gracefully:
//
//  1. Stop accepting new HTTP requests and drain in-flight jobs (30s timeout)
//  2. Kill any transform process still running
//  3. Stop history pruning, the metrics collector and the memory monitor
//  4. Shutdown metrics server (if running)
//  5. Close database connections
//
// # Related Packages
//
//   - [video-optimizer/internal/pipeline]: Job lifecycle and worker pool
//   - [video-optimizer/internal/transcoder]: ffmpeg invocation
//   - [video-optimizer/internal/artifact]: Temporary file ownership
//   - [video-optimizer/internal/handlers]: HTTP request handlers
//   - [video-optimizer/internal/database]: SQLite job history
//   - [video-optimizer/internal/startup]: Configuration and initialization
package main
