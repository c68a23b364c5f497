package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"video-optimizer/internal/artifact"
	"video-optimizer/internal/database"
	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
	"video-optimizer/internal/transcoder"
)

const (
	outputSuffix = ".mp4"
	probeTimeout = 30 * time.Second
)

// Backend is the transform engine a pipeline drives.
type Backend interface {
	transcoder.Transformer
	RequiresScope() bool
	Probe(ctx context.Context, path string) (*transcoder.VideoInfo, error)
}

// Recorder stores finished jobs.
type Recorder interface {
	RecordJob(ctx context.Context, job *database.JobRecord) error
}

// Throttler reports memory pressure.
type Throttler interface {
	ShouldThrottle() bool
}

// DiskFreeFunc reports free bytes on the volume holding path.
type DiskFreeFunc func(ctx context.Context, path string) (uint64, error)

// Config bounds job execution.
type Config struct {
	// Workers is the number of transforms allowed to run at once.
	Workers int
	// QueueTimeout is the longest a job waits for a worker slot.
	QueueTimeout time.Duration
	// JobTimeout bounds a single transform invocation.
	JobTimeout time.Duration
	// MinFreeDisk refuses ingestion below this many free bytes (0 = off).
	MinFreeDisk uint64
	// BufferThreshold delivers outputs up to this size from memory and
	// releases them before the response is written (0 = always stream).
	BufferThreshold int64
	// BackendName is recorded in history.
	BackendName string
}

// Output is a finished job handed to the deliver callback.
type Output struct {
	JobID    string
	Filename string
	Size     int64
	Info     *transcoder.VideoInfo
	Body     io.Reader
	Buffered bool
}

// Pipeline runs jobs against one allocator and one backend.
type Pipeline struct {
	cfg       Config
	alloc     *artifact.Allocator
	backend   Backend
	sem       *semaphore.Weighted
	recorder  Recorder
	throttler Throttler
	diskFree  DiskFreeFunc

	running atomic.Int64
	waiting atomic.Int64
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithRecorder stores every finished job.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithThrottler disables buffered delivery while memory is under pressure.
func WithThrottler(t Throttler) Option {
	return func(p *Pipeline) { p.throttler = t }
}

// WithDiskFree enables the free-disk guard.
func WithDiskFree(f DiskFreeFunc) Option {
	return func(p *Pipeline) { p.diskFree = f }
}

// New creates a pipeline. Workers below 1 is treated as 1.
func New(cfg Config, alloc *artifact.Allocator, backend Backend, opts ...Option) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg:     cfg,
		alloc:   alloc,
		backend: backend,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// PoolStats is a snapshot of worker usage.
type PoolStats struct {
	Capacity int   `json:"capacity"`
	Running  int64 `json:"running"`
	Waiting  int64 `json:"waiting"`
}

// Stats returns current worker usage.
func (p *Pipeline) Stats() PoolStats {
	return PoolStats{
		Capacity: p.cfg.Workers,
		Running:  p.running.Load(),
		Waiting:  p.waiting.Load(),
	}
}

// allocator is satisfied by both *artifact.Allocator and *artifact.Scope.
type allocator interface {
	Allocate(role artifact.Role, suffix string) (*artifact.Artifact, error)
}

// job carries per-run bookkeeping into the deferred finish.
type job struct {
	record  database.JobRecord
	started time.Time
	log     logging.JobLogger

	// rejected jobs never reached Run and are kept out of JobDuration.
	rejected bool
}

// Reject records a job refused before Run, such as an unreadable upload or
// bad parameters, so it is counted and kept in history like any other
// failure. It returns err as *Error with JobID set.
func (p *Pipeline) Reject(ctx context.Context, jobID string, filename string, err error) error {
	pe := AsError(err)
	pe.JobID = jobID

	now := time.Now()
	p.finish(ctx, &job{
		started:  now,
		log:      logging.ForJob(jobID),
		rejected: true,
		record: database.JobRecord{
			ID:        jobID,
			Backend:   p.cfg.BackendName,
			Filename:  filename,
			CreatedAt: now,
		},
	}, pe)
	return pe
}

// Run executes one job. On success deliver is called exactly once with the
// output; its Body is only valid until deliver returns. Every failure is
// returned as *Error with JobID set. All artifacts are released before Run
// returns, on every path.
func (p *Pipeline) Run(ctx context.Context, jobID string, up Upload, params transcoder.Params, deliver func(*Output) error) (err error) {
	j := &job{
		started: time.Now(),
		log:     logging.ForJob(jobID),
		record: database.JobRecord{
			ID:        jobID,
			Backend:   p.cfg.BackendName,
			Mode:      params.Mode.String(),
			Params:    params.String(),
			Filename:  up.Filename,
			CreatedAt: time.Now(),
		},
	}

	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	defer func() {
		if r := recover(); r != nil {
			p.finish(ctx, j, newError(KindInternal, http.StatusInternalServerError, "internal error", fmt.Errorf("panic: %v", r)))
			panic(r)
		}
		if err != nil {
			pe := AsError(err)
			pe.JobID = jobID
			err = pe
		}
		p.finish(ctx, j, err)
	}()

	j.log.Info("Job started: file=%q type=%q %s", up.Filename, up.MediaType, params)

	if err := params.Validate(); err != nil {
		return newError(KindValidation, http.StatusBadRequest, err.Error(), err)
	}
	if !AcceptMediaType(up.MediaType) {
		return newError(KindValidation, http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported media type %q; expected video/* or application/octet-stream", up.MediaType),
			ErrUnsupportedMediaType)
	}
	if err := p.checkDisk(ctx); err != nil {
		return err
	}

	set := artifact.NewSet()
	defer set.Release()

	var alloc allocator = p.alloc
	if p.backend.RequiresScope() {
		scope, err := p.alloc.NewScope()
		if err != nil {
			return newError(KindInternal, http.StatusInternalServerError, "failed to allocate work space", err)
		}
		set.Add(scope)
		alloc = scope
	}

	input, err := alloc.Allocate(artifact.RoleInput, inputSuffix(up.Filename))
	if err != nil {
		return newError(KindInternal, http.StatusInternalServerError, "failed to allocate work space", err)
	}
	set.Add(input)

	inputSize, err := p.ingest(ctx, input, up.Body)
	if err != nil {
		return err
	}
	j.record.InputBytes = inputSize
	j.log.Debug("Ingested %d bytes into %s", inputSize, input.Path())

	releaseSlot, err := p.admit(ctx, j)
	if err != nil {
		return err
	}
	defer releaseSlot()

	output, err := alloc.Allocate(artifact.RoleOutput, outputSuffix)
	if err != nil {
		return newError(KindInternal, http.StatusInternalServerError, "failed to allocate work space", err)
	}
	set.Add(output)
	if err := output.MarkInUse(); err != nil {
		return newError(KindInternal, http.StatusInternalServerError, "internal error", err)
	}

	if err := p.transform(ctx, j, input, output, params); err != nil {
		return err
	}
	releaseSlot()
	input.Release()

	size, err := output.Size()
	if err != nil {
		return newError(KindInternal, http.StatusInternalServerError, "failed to read output", err)
	}
	j.record.OutputBytes = size

	info := p.probe(ctx, j, output)

	out := &Output{
		JobID:    jobID,
		Filename: DownloadName(up.Filename),
		Size:     size,
		Info:     info,
	}

	if p.shouldBuffer(size) {
		data, err := readAll(output)
		if err != nil {
			return newError(KindInternal, http.StatusInternalServerError, "failed to read output", err)
		}
		output.Release()
		out.Body = bytes.NewReader(data)
		out.Buffered = true
	} else {
		f, err := output.Open()
		if err != nil {
			return newError(KindInternal, http.StatusInternalServerError, "failed to read output", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				j.log.Warn("failed to close output: %v", closeErr)
			}
		}()
		out.Body = f
	}

	if err := deliver(out); err != nil {
		return newError(KindDelivery, StatusClientClosedRequest, "delivery interrupted", err)
	}

	j.log.Info("Job completed: %d -> %d bytes in %v", inputSize, size, time.Since(j.started).Round(time.Millisecond))
	return nil
}

// checkDisk refuses new work when the work volume is nearly full.
func (p *Pipeline) checkDisk(ctx context.Context) error {
	if p.diskFree == nil || p.cfg.MinFreeDisk == 0 {
		return nil
	}
	free, err := p.diskFree(ctx, p.alloc.Root())
	if err != nil {
		logging.Warn("Disk space check failed, continuing: %v", err)
		return nil
	}
	if free < p.cfg.MinFreeDisk {
		return newError(KindIngestion, http.StatusInsufficientStorage,
			"server is low on disk space, try again later",
			fmt.Errorf("%w: %d bytes free, %d required", ErrInsufficientDisk, free, p.cfg.MinFreeDisk))
	}
	return nil
}

// ingest drains body into the input artifact and closes it before any
// transform may start. A body that fails with *Error keeps its status.
func (p *Pipeline) ingest(ctx context.Context, input *artifact.Artifact, body io.Reader) (int64, error) {
	if body == nil {
		return 0, newError(KindIngestion, http.StatusBadRequest, "no upload received", ErrEmptyUpload)
	}

	f, err := input.Create()
	if err != nil {
		return 0, newError(KindInternal, http.StatusInternalServerError, "failed to store upload", err)
	}

	n, copyErr := io.Copy(f, body)
	syncErr := f.Sync()
	closeErr := f.Close()
	metrics.BytesIngested.Add(float64(n))

	if copyErr != nil {
		var maxErr *http.MaxBytesError
		var pe *Error
		switch {
		case errors.As(copyErr, &maxErr):
			return n, newError(KindIngestion, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", maxErr.Limit),
				fmt.Errorf("%w: %w", ErrUploadTooLarge, copyErr))
		case errors.As(copyErr, &pe):
			return n, pe
		case ctx.Err() != nil:
			return n, newError(KindCanceled, StatusClientClosedRequest, "request canceled", ctx.Err())
		default:
			return n, newError(KindIngestion, http.StatusBadRequest, "failed to read upload", copyErr)
		}
	}
	if err := errors.Join(syncErr, closeErr); err != nil {
		return n, newError(KindInternal, http.StatusInternalServerError, "failed to store upload", err)
	}
	if n == 0 {
		return 0, newError(KindIngestion, http.StatusBadRequest, "uploaded file is empty", ErrEmptyUpload)
	}

	if err := input.MarkInUse(); err != nil {
		return n, newError(KindInternal, http.StatusInternalServerError, "internal error", err)
	}
	return n, nil
}

// admit waits up to QueueTimeout for a worker slot. The returned release is
// safe to call more than once.
func (p *Pipeline) admit(ctx context.Context, j *job) (func(), error) {
	qctx := ctx
	if p.cfg.QueueTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, p.cfg.QueueTimeout)
		defer cancel()
	}

	start := time.Now()
	metrics.QueueDepth.Set(float64(p.waiting.Add(1)))
	err := p.sem.Acquire(qctx, 1)
	metrics.QueueDepth.Set(float64(p.waiting.Add(-1)))
	metrics.QueueWaitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, StatusClientClosedRequest, "request canceled", ctx.Err())
		}
		return nil, newError(KindAdmission, http.StatusServiceUnavailable,
			"server is busy, try again later", fmt.Errorf("%w after %v", ErrBusy, p.cfg.QueueTimeout))
	}

	if wait := time.Since(start); wait > time.Second {
		j.log.Debug("Waited %v for a worker slot", wait.Round(time.Millisecond))
	}

	p.running.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.running.Add(-1)
			p.sem.Release(1)
		}
	}, nil
}

// transform runs the backend once under the job timeout and classifies its
// failure.
func (p *Pipeline) transform(ctx context.Context, j *job, input, output *artifact.Artifact, params transcoder.Params) error {
	tctx := ctx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	err := p.backend.Transform(tctx, input.Path(), output.Path(), params)
	if err == nil {
		return nil
	}

	var te *transcoder.TransformError
	switch {
	case errors.Is(err, transcoder.ErrInvalidParams):
		return newError(KindValidation, http.StatusBadRequest, err.Error(), err)
	case ctx.Err() != nil:
		return newError(KindCanceled, StatusClientClosedRequest, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, http.StatusGatewayTimeout,
			fmt.Sprintf("processing exceeded the %v limit", p.cfg.JobTimeout), err)
	case errors.As(err, &te):
		j.log.Error("Transform failed (exit %d): %s", te.ExitCode, te.Diagnostic)
		msg := "the video could not be processed"
		if errors.Is(err, transcoder.ErrEmptyOutput) {
			msg = "processing produced no output"
		}
		return newError(KindTransform, http.StatusUnprocessableEntity, msg, err)
	default:
		return newError(KindInternal, http.StatusInternalServerError, "internal error", err)
	}
}

// probe reads output metadata. Failure only loses the optional headers.
func (p *Pipeline) probe(ctx context.Context, j *job, output *artifact.Artifact) *transcoder.VideoInfo {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	info, err := p.backend.Probe(pctx, output.Path())
	if err != nil {
		j.log.Warn("Probe failed: %v", err)
		return nil
	}
	j.record.Width = info.Width
	j.record.Height = info.Height
	j.record.Duration = info.Duration
	return info
}

func (p *Pipeline) shouldBuffer(size int64) bool {
	if p.cfg.BufferThreshold <= 0 || size > p.cfg.BufferThreshold {
		return false
	}
	return p.throttler == nil || !p.throttler.ShouldThrottle()
}

func readAll(a *artifact.Artifact) ([]byte, error) {
	f, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// finish records metrics and history for a finished job.
func (p *Pipeline) finish(ctx context.Context, j *job, err error) {
	elapsed := time.Since(j.started)
	j.record.CompletedAt = time.Now()
	j.record.ElapsedMs = elapsed.Milliseconds()

	outcome := "success"
	j.record.Status = database.JobStatusSucceeded
	if err != nil {
		pe := AsError(err)
		outcome = string(pe.Kind)
		j.record.Status = database.JobStatusFailed
		j.record.Error = pe.Message

		switch pe.Kind {
		case KindCanceled, KindDelivery:
			j.log.Info("Job aborted (%s): %v", pe.Kind, pe.Err)
		case KindInternal:
			j.log.Error("Job failed (%s): %v", pe.Kind, err)
		default:
			j.log.Warn("Job failed (%s): %v", pe.Kind, err)
		}
	}
	j.record.Outcome = outcome

	metrics.JobsTotal.WithLabelValues(outcome).Inc()
	if !j.rejected {
		metrics.JobDuration.WithLabelValues(j.record.Mode).Observe(elapsed.Seconds())
	}

	if p.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if recErr := p.recorder.RecordJob(rctx, &j.record); recErr != nil {
		j.log.Warn("Failed to record job history: %v", recErr)
	}
}
