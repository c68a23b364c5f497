package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"video-optimizer/internal/artifact"
	"video-optimizer/internal/database"
	"video-optimizer/internal/diskspace"
	"video-optimizer/internal/handlers"
	"video-optimizer/internal/logging"
	"video-optimizer/internal/memory"
	"video-optimizer/internal/metrics"
	"video-optimizer/internal/middleware"
	"video-optimizer/internal/pipeline"
	"video-optimizer/internal/startup"
	"video-optimizer/internal/transcoder"
)

const (
	// staleArtifactAge is how old a leftover work file must be before the
	// startup sweep removes it.
	staleArtifactAge = time.Minute
	// maintenanceInterval is how often history is pruned.
	maintenanceInterval = time.Hour
	// metricsInterval is how often derived gauges are refreshed.
	metricsInterval = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	startTime := time.Now()
	ctx := context.Background()

	// Size GOMEMLIMIT before anything allocates much
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(config.DatabasePath, time.Since(dbStart))

	// Work directory; anything left by a previous process is swept
	alloc, err := artifact.NewAllocator(config.WorkDir)
	if err != nil {
		startup.LogFatal("Failed to initialize work directory: %v", err)
	}
	startup.LogSweep(alloc.Sweep(staleArtifactAge))

	// Initialize transcoder
	trans := transcoder.New(config.Transcoder)
	startup.LogTranscoderInit(ctx, trans, config.Workers)

	// Metrics
	metrics.InitializeMetrics(string(trans.Backend()))
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion, string(trans.Backend()))

	// Memory monitor
	monitor := memory.NewMonitor(config.Memory)
	monitor.Start()

	workDiskFree := func() (uint64, error) {
		return diskspace.Free(ctx, config.WorkDir)
	}
	collector := metrics.NewCollector(db, workDiskFree, metricsInterval)
	collector.Start()

	// Job pipeline
	pipe := pipeline.New(pipeline.Config{
		Workers:         config.Workers,
		QueueTimeout:    config.QueueTimeout,
		JobTimeout:      config.TranscodeTimeout,
		MinFreeDisk:     config.MinFreeDisk,
		BufferThreshold: config.BufferThreshold,
		BackendName:     string(trans.Backend()),
	}, alloc, trans,
		pipeline.WithRecorder(db),
		pipeline.WithThrottler(monitor),
		pipeline.WithDiskFree(diskspace.Free),
	)

	// Initialize handlers
	h := handlers.New(handlers.Deps{
		Pipeline: pipe,
		History:  db,
		Tool:     trans,
		Memory:   monitor,
	}, handlers.Options{
		WorkDir:       config.WorkDir,
		MaxUploadSize: config.MaxUploadSize,
		DefaultCRF:    config.DefaultCRF,
		MinFreeDisk:   config.MinFreeDisk,
		QueueTimeout:  config.QueueTimeout,
	})

	// Setup router
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           buildHandler(router, config),
		ReadHeaderTimeout: 15 * time.Second,
		// Bounded per job by QUEUE_TIMEOUT and TRANSCODE_TIMEOUT.
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort, h)
	}

	stopMaintenance := make(chan struct{})
	go runMaintenance(db, config.HistoryRetention, maintenanceInterval, stopMaintenance)

	// Start graceful shutdown handler
	done := make(chan struct{})
	go func() {
		handleShutdown(shutdownDeps{
			server:      srv,
			metrics:     metricsSrv,
			collector:   collector,
			monitor:     monitor,
			transcoder:  trans,
			maintenance: stopMaintenance,
			db:          db,
		})
		close(done)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Metrics middleware runs after routing so it can label by route template
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Video endpoints
	r.HandleFunc("/compress/", h.Compress).Methods("POST")
	r.HandleFunc("/compress", h.Compress).Methods("POST")
	r.HandleFunc("/optimize-video", h.Compress).Methods("POST")

	// Job history
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	return r
}

// buildHandler wraps the router in the logging and compression middleware.
func buildHandler(router http.Handler, config *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggedHandler := middleware.Logger(loggingConfig)(router)

	return middleware.Compression(middleware.DefaultCompressionConfig())(loggedHandler)
}

func startMetricsServer(port string, h *handlers.Handlers) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	r.HandleFunc("/health", h.LivenessCheck).Methods("GET", "HEAD")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

// historyPruner is satisfied by *database.Database.
type historyPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// runMaintenance prunes job history older than retention every interval
// until stop is closed. A zero retention keeps history forever.
func runMaintenance(db historyPruner, retention, interval time.Duration, stop <-chan struct{}) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pruneHistory(db, retention)
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

func pruneHistory(db historyPruner, retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := db.PruneBefore(ctx, time.Now().Add(-retention))
	if err != nil {
		logging.Warn("Failed to prune job history: %v", err)
		return
	}
	if removed > 0 {
		logging.Info("Pruned %d jobs older than %v", removed, retention)
	}
}

type shutdownDeps struct {
	server      *http.Server
	metrics     *http.Server
	collector   *metrics.Collector
	monitor     *memory.Monitor
	transcoder  *transcoder.Transcoder
	maintenance chan struct{}
	db          *database.Database
}

func handleShutdown(d shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Drain in-flight jobs before any tool process is killed.
	startup.LogShutdownStep("Shutting down HTTP server")
	if err := d.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Cleaning up transcoder")
	d.transcoder.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	startup.LogShutdownStep("Stopping background tasks")
	close(d.maintenance)
	d.collector.Stop()
	d.monitor.Stop()
	startup.LogShutdownStepComplete("Background tasks stopped")

	if d.metrics != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := d.metrics.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := d.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
