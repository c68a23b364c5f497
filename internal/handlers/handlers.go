package handlers

import (
	"context"
	"sync"
	"time"

	"video-optimizer/internal/database"
	"video-optimizer/internal/diskspace"
	"video-optimizer/internal/memory"
	"video-optimizer/internal/pipeline"
	"video-optimizer/internal/streaming"
	"video-optimizer/internal/transcoder"
)

// jobRunner is satisfied by *pipeline.Pipeline.
type jobRunner interface {
	Run(ctx context.Context, jobID string, up pipeline.Upload, params transcoder.Params, deliver func(*pipeline.Output) error) error
	Reject(ctx context.Context, jobID string, filename string, err error) error
	Stats() pipeline.PoolStats
}

// historyStore is satisfied by *database.Database.
type historyStore interface {
	GetJob(ctx context.Context, id string) (*database.JobRecord, error)
	ListJobs(ctx context.Context, limit int) ([]database.JobRecord, error)
	JobStats(ctx context.Context) (*database.JobStats, error)
	Ping(ctx context.Context) error
}

// toolChecker is satisfied by *transcoder.Transcoder.
type toolChecker interface {
	Backend() transcoder.Backend
	CheckAvailable(ctx context.Context) (string, error)
	ActiveProcesses() int
}

// memoryStats is satisfied by *memory.Monitor.
type memoryStats interface {
	GetStats() memory.Stats
}

// Deps are the components the handlers drive. Memory is optional.
type Deps struct {
	Pipeline  jobRunner
	History   historyStore
	Tool      toolChecker
	Memory    memoryStats
	DiskUsage func(ctx context.Context, path string) (*diskspace.Info, error)
}

// Options are request limits and defaults.
type Options struct {
	WorkDir       string
	MaxUploadSize int64
	DefaultCRF    int
	MinFreeDisk   uint64
	QueueTimeout  time.Duration
	Stream        streaming.TimeoutWriterConfig
}

const toolCheckTTL = 30 * time.Second

type Handlers struct {
	pipeline  jobRunner
	history   historyStore
	tool      toolChecker
	memory    memoryStats
	diskUsage func(ctx context.Context, path string) (*diskspace.Info, error)
	opts      Options
	startTime time.Time

	toolMu      sync.Mutex
	toolChecked time.Time
	toolVersion string
	toolErr     error
}

func New(deps Deps, opts Options) *Handlers {
	if deps.DiskUsage == nil {
		deps.DiskUsage = diskspace.Usage
	}
	if opts.Stream.ChunkSize == 0 {
		opts.Stream = streaming.DefaultTimeoutWriterConfig()
	}
	return &Handlers{
		pipeline:  deps.Pipeline,
		history:   deps.History,
		tool:      deps.Tool,
		memory:    deps.Memory,
		diskUsage: deps.DiskUsage,
		opts:      opts,
		startTime: time.Now(),
	}
}

// toolStatus runs the availability check at most once per toolCheckTTL.
func (h *Handlers) toolStatus(ctx context.Context) (string, error) {
	h.toolMu.Lock()
	defer h.toolMu.Unlock()

	if !h.toolChecked.IsZero() && time.Since(h.toolChecked) < toolCheckTTL {
		return h.toolVersion, h.toolErr
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	h.toolVersion, h.toolErr = h.tool.CheckAvailable(checkCtx)
	h.toolChecked = time.Now()
	return h.toolVersion, h.toolErr
}
