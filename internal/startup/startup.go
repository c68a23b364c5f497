package startup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/memory"
	"video-optimizer/internal/transcoder"
	"video-optimizer/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults for values that are not plain literals.
const (
	DefaultMaxUploadSize    = 2 << 30
	DefaultMinFreeDisk      = 512 << 20
	DefaultTranscodeTimeout = 10 * time.Minute
	DefaultQueueTimeout     = 30 * time.Second
	DefaultHistoryRetention = 7 * 24 * time.Hour
	maxWorkersByDefault     = 4
)

var presets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true, "fast": true,
	"medium": true, "slow": true, "slower": true, "veryslow": true, "placebo": true,
}

// Config holds all application configuration
type Config struct {
	ConfigFile string

	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogHealthChecks bool

	WorkDir      string
	DatabaseDir  string
	DatabasePath string

	Transcoder transcoder.Config
	DefaultCRF int

	Workers          int
	TranscodeTimeout time.Duration
	QueueTimeout     time.Duration

	MaxUploadSize   int64
	MinFreeDisk     uint64
	BufferThreshold int64

	// HistoryRetention is how long finished jobs are kept (0 = forever).
	HistoryRetention time.Duration

	Memory memory.Config
}

// LoadConfig loads configuration from defaults, the YAML file named by
// CONFIG_FILE and the environment, in increasing precedence, then prepares
// the work and database directories.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	src, err := newSource(os.Getenv("CONFIG_FILE"), os.Getenv)
	if err != nil {
		return nil, err
	}
	if src.fileName != "" {
		logging.Info("  CONFIG_FILE:         %s (%d keys)", src.fileName, len(src.file))
	}

	config := load(src)
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := prepareDirectories(config); err != nil {
		return nil, err
	}
	return config, nil
}

// load resolves every key. Invalid values are logged and replaced by their
// defaults.
func load(src *source) *Config {
	def := transcoder.DefaultConfig()

	backend := def.Backend
	if v, origin, ok := src.lookup("TRANSFORM"); ok {
		if b, valid := transcoder.ParseBackend(v); valid {
			backend = b
		} else {
			logging.Warn("  Invalid TRANSFORM (%s): %q, using default: %s", origin, v, def.Backend)
		}
	}

	preset := strings.ToLower(src.getString("FFMPEG_PRESET", def.Preset))
	if !presets[preset] {
		logging.Warn("  Invalid FFMPEG_PRESET: %q, using default: %s", preset, def.Preset)
		preset = def.Preset
	}

	threads := src.getInt("FFMPEG_THREADS", def.Threads, 0, 64)

	workerCount := src.getInt(workers.EnvOverride, 0, 1, 256)
	if workerCount == 0 {
		workerCount = workers.ForTranscode(threads, maxWorkersByDefault)
	}

	minFree := src.getSize("MIN_FREE_DISK", DefaultMinFreeDisk)

	mem := memory.DefaultConfig()
	mem.HighWaterMark = float64(src.getInt("MEMORY_HIGH_PERCENT", int(mem.HighWaterMark*100), 1, 100)) / 100
	mem.SystemHighPercent = float64(src.getInt("MEMORY_SYSTEM_HIGH_PERCENT", int(mem.SystemHighPercent), 0, 100))
	mem.CheckInterval = src.getDuration("MEMORY_CHECK_INTERVAL", mem.CheckInterval)
	if mem.CheckInterval == 0 {
		mem.CheckInterval = memory.DefaultConfig().CheckInterval
	}

	cfg := &Config{
		ConfigFile:      src.fileName,
		Port:            src.getString("PORT", "8080"),
		MetricsPort:     src.getString("METRICS_PORT", "9090"),
		MetricsEnabled:  src.getBool("METRICS_ENABLED", true),
		LogHealthChecks: src.getBool("LOG_HEALTH_CHECKS", true),
		WorkDir:         src.getString("WORK_DIR", filepath.Join(os.TempDir(), "video-optimizer")),
		DatabaseDir:     src.getString("DATABASE_DIR", "/database"),
		Transcoder: transcoder.Config{
			Backend:            backend,
			FFmpegPath:         src.getString("FFMPEG_PATH", def.FFmpegPath),
			FFprobePath:        src.getString("FFPROBE_PATH", def.FFprobePath),
			DockerPath:         src.getString("DOCKER_PATH", def.DockerPath),
			DockerImage:        src.getString("DOCKER_IMAGE", def.DockerImage),
			Threads:            threads,
			Preset:             preset,
			MaxDiagnosticBytes: int(src.getSize("MAX_DIAGNOSTIC_BYTES", transcoder.DefaultMaxDiagnosticBytes)),
		},
		DefaultCRF:       src.getInt("DEFAULT_CRF", transcoder.DefaultCRF, transcoder.MinCRF, transcoder.MaxCRF),
		Workers:          workerCount,
		TranscodeTimeout: src.getDuration("TRANSCODE_TIMEOUT", DefaultTranscodeTimeout),
		QueueTimeout:     src.getDuration("QUEUE_TIMEOUT", DefaultQueueTimeout),
		MaxUploadSize:    src.getSize("MAX_UPLOAD_SIZE", DefaultMaxUploadSize),
		MinFreeDisk:      uint64(minFree),
		BufferThreshold:  src.getSize("BUFFER_THRESHOLD", 0),
		HistoryRetention: src.getDuration("HISTORY_RETENTION", DefaultHistoryRetention),
		Memory:           mem,
	}

	if cfg.MaxUploadSize <= 0 {
		logging.Warn("  MAX_UPLOAD_SIZE must be positive, using default: %s", memory.FormatBytes(DefaultMaxUploadSize))
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.TranscodeTimeout == 0 {
		logging.Warn("  TRANSCODE_TIMEOUT must be positive, using default: %v", DefaultTranscodeTimeout)
		cfg.TranscodeTimeout = DefaultTranscodeTimeout
	}
	if cfg.QueueTimeout == 0 {
		logging.Warn("  QUEUE_TIMEOUT must be positive, using default: %v", DefaultQueueTimeout)
		cfg.QueueTimeout = DefaultQueueTimeout
	}
	if cfg.Transcoder.MaxDiagnosticBytes <= 0 {
		cfg.Transcoder.MaxDiagnosticBytes = transcoder.DefaultMaxDiagnosticBytes
	}
	return cfg
}

func logConfig(c *Config) {
	logging.Info("  PORT:                 %s", c.Port)
	logging.Info("  METRICS_PORT:         %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", c.MetricsEnabled)
	logging.Info("  WORK_DIR:             %s", c.WorkDir)
	logging.Info("  DATABASE_DIR:         %s", c.DatabaseDir)
	logging.Info("  TRANSFORM:            %s", c.Transcoder.Backend)
	if c.Transcoder.Backend == transcoder.BackendDocker {
		logging.Info("  DOCKER_PATH:          %s", c.Transcoder.DockerPath)
		logging.Info("  DOCKER_IMAGE:         %s", c.Transcoder.DockerImage)
	} else {
		logging.Info("  FFMPEG_PATH:          %s", c.Transcoder.FFmpegPath)
		logging.Info("  FFPROBE_PATH:         %s", c.Transcoder.FFprobePath)
	}
	logging.Info("  FFMPEG_THREADS:       %d", c.Transcoder.Threads)
	logging.Info("  FFMPEG_PRESET:        %s", c.Transcoder.Preset)
	logging.Info("  DEFAULT_CRF:          %d", c.DefaultCRF)
	logging.Info("  TRANSCODE_WORKERS:    %d", c.Workers)
	logging.Info("  TRANSCODE_TIMEOUT:    %v", c.TranscodeTimeout)
	logging.Info("  QUEUE_TIMEOUT:        %v", c.QueueTimeout)
	logging.Info("  MAX_UPLOAD_SIZE:      %s", memory.FormatBytes(c.MaxUploadSize))
	logging.Info("  MAX_DIAGNOSTIC_BYTES: %d", c.Transcoder.MaxDiagnosticBytes)
	logging.Info("  MIN_FREE_DISK:        %s", memory.FormatBytes(int64(c.MinFreeDisk)))
	logging.Info("  BUFFER_THRESHOLD:     %s", memory.FormatBytes(c.BufferThreshold))
	logging.Info("  HISTORY_RETENTION:    %v", c.HistoryRetention)
	logging.Info("  MEMORY_HIGH_PERCENT:  %.0f%% of heap limit, %.0f%% of host", c.Memory.HighWaterMark*100, c.Memory.SystemHighPercent)
	logging.Info("  LOG_HEALTH_CHECKS:    %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())
}

// prepareDirectories resolves both directories and requires them to be
// writable.
func prepareDirectories(c *Config) error {
	workDir, err := filepath.Abs(c.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	databaseDir, err := filepath.Abs(c.DatabaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	c.WorkDir = workDir
	c.DatabaseDir = databaseDir
	c.DatabasePath = filepath.Join(databaseDir, "jobs.db")

	for _, dir := range []struct{ path, name string }{
		{workDir, "work"},
		{databaseDir, "database"},
	} {
		logging.Info("  %s directory (absolute): %s", strings.ToUpper(dir.name[:1])+dir.name[1:], dir.path)
		if err := ensureDirectory(dir.path, dir.name); err != nil {
			return fmt.Errorf("%s directory error: %w", dir.name, err)
		}
		if err := testWriteAccess(dir.path); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", dir.name, err)
		}
		logging.Info("  [OK] %s directory is writable", dir.name)
	}
	return nil
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}

// LogDatabaseInit logs job history initialization
func LogDatabaseInit(path string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOB HISTORY INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] %s opened in %v", path, duration)
}

// LogSweep logs the startup removal of artifacts left by a previous process.
func LogSweep(removed int, err error) {
	switch {
	case err != nil:
		logging.Warn("  Stale artifact sweep failed: %v", err)
	case removed > 0:
		logging.Info("  [OK] Removed %d stale artifacts from a previous run", removed)
	default:
		logging.Debug("  No stale artifacts found")
	}
}

// toolChecker is satisfied by *transcoder.Transcoder.
type toolChecker interface {
	Backend() transcoder.Backend
	CheckAvailable(ctx context.Context) (string, error)
}

// LogTranscoderInit checks the transform tool and logs the result. A missing
// tool is not fatal; readiness reports it until it appears.
func LogTranscoderInit(ctx context.Context, tc toolChecker, workerCount int) bool {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Backend: %s, workers: %d", tc.Backend(), workerCount)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	version, err := tc.CheckAvailable(checkCtx)
	if err != nil {
		logging.Warn("  Transform tool check failed: %v", err)
		logging.Warn("  Requests will fail until the tool is available")
		return false
	}
	logging.Info("  [OK] %s", version)
	return true
}

// LogMemoryConfig logs the GOMEMLIMIT decision.
func LogMemoryConfig(result memory.ConfigResult) {
	if !result.Configured {
		logging.Debug("  GOMEMLIMIT not configured (source: %s)", result.Source)
		return
	}
	logging.Info("  GOMEMLIMIT: %s (source: %s)", memory.FormatBytes(result.GoMemLimit), result.Source)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, group := range groupKeys {
			label := group
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	return parts[0]
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Upload:          POST http://0.0.0.0:%s/compress/", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
        _    _ _     _
 __   _(_) _| (_)___| |  ___  _ __ | |_(_)_ __ ___ (_)_______ _ __
 \ \ / / |/ _' | / -_) | / _ \| '_ \| __| | '_ ' _ \| |_  / _ \ '__|
  \ V /| | (_| |  __/ || (_) | |_) | |_| | | | | | | |/ /  __/ |
   \_/ |_|\__,_|\___|_| \___/| .__/ \__|_|_| |_| |_|_/___\___|_|
                             |_|
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}
	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:        %s", hostname)
	}
	logging.Info("")
}
