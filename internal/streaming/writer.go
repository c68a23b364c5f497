package streaming

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a single write, or the whole stream,
	// exceeded its configured bound. This typically means a client is
	// receiving data too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the stream
	// completed. It is detected through the request context.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the stream was stopped by Close or by
	// the idle checker.
	ErrStreamCanceled = errors.New("stream canceled")
)

// IsClientError reports whether err means the peer, not the server, ended
// the stream early.
func IsClientError(err error) bool {
	return errors.Is(err, ErrClientGone) ||
		errors.Is(err, ErrWriteTimeout) ||
		errors.Is(err, ErrStreamCanceled)
}

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout is the maximum time to wait for a single write operation
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time between successful writes
	IdleTimeout time.Duration
	// MaxDuration is the absolute maximum streaming duration (0 = unlimited)
	MaxDuration time.Duration
	// ChunkSize is both the copy buffer size and the largest single write
	ChunkSize int
	// OnProgress is called after each megabyte boundary is crossed
	OnProgress func(bytesWritten int64, duration time.Duration)
}

// DefaultTimeoutWriterConfig returns defaults tuned for video delivery.
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    256 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with timeout protection.
// Writes run on the caller's goroutine and are bounded by connection write
// deadlines, so nothing touches the ResponseWriter once Write has returned.
type TimeoutWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	deadlines    bool
	deadlineSet  bool
	parent       context.Context
	ctx          context.Context
	cancel       context.CancelFunc
	config       TimeoutWriterConfig
	startTime    time.Time
	lastWrite    time.Time
	bytesWritten int64
	mu           sync.Mutex
	closed       bool
	idleExpired  bool
	flusher      http.Flusher
}

// NewTimeoutWriter creates a new timeout-protected writer. Close must be
// called to stop its idle checker.
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)

	now := time.Now()
	tw := &TimeoutWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		deadlines: true,
		parent:    ctx,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		startTime: now,
		lastWrite: now,
	}

	if flusher, ok := w.(http.Flusher); ok {
		tw.flusher = flusher
	}

	go tw.idleChecker()

	return tw
}

// Write implements io.Writer with timeout protection
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	if tw.config.MaxDuration > 0 && time.Since(tw.startTime) > tw.config.MaxDuration {
		return 0, ErrWriteTimeout
	}

	written := 0
	for len(p) > 0 {
		if err := tw.ctx.Err(); err != nil {
			return written, tw.contextError()
		}

		chunk := p
		if tw.config.ChunkSize > 0 && len(chunk) > tw.config.ChunkSize {
			chunk = chunk[:tw.config.ChunkSize]
		}

		n, err := tw.writeWithTimeout(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(chunk):]

		if tw.flusher != nil {
			tw.flusher.Flush()
		}
	}

	return written, nil
}

// writeWithTimeout performs a single write under a connection write
// deadline. Writers that cannot take deadlines are written to unbounded.
func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	if tw.config.WriteTimeout > 0 {
		tw.setDeadline(time.Now().Add(tw.config.WriteTimeout))
	}

	n, err := tw.w.Write(p)
	if err != nil {
		if ctxErr := tw.ctx.Err(); ctxErr != nil {
			return n, tw.contextError()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			tw.cancel()
			return n, ErrWriteTimeout
		}
		return n, err
	}

	tw.mu.Lock()
	before := tw.bytesWritten
	tw.lastWrite = time.Now()
	tw.bytesWritten += int64(n)
	after := tw.bytesWritten
	tw.mu.Unlock()

	if tw.config.OnProgress != nil && before>>20 != after>>20 {
		tw.config.OnProgress(after, time.Since(tw.startTime))
	}
	return n, nil
}

// setDeadline sets the connection write deadline, remembering when the
// underlying writer does not support one.
func (tw *TimeoutWriter) setDeadline(t time.Time) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.deadlines || tw.closed {
		return
	}
	if err := tw.rc.SetWriteDeadline(t); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			logging.Debug("Response writer does not support write deadlines")
		} else {
			logging.Warn("Failed to set write deadline: %v", err)
		}
		tw.deadlines = false
		return
	}
	tw.deadlineSet = true
}

// idleChecker cancels the stream when no write succeeds for IdleTimeout.
func (tw *TimeoutWriter) idleChecker() {
	if tw.config.IdleTimeout <= 0 {
		return
	}

	ticker := time.NewTicker(tw.config.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tw.mu.Lock()
			idle := time.Since(tw.lastWrite)
			if idle > tw.config.IdleTimeout {
				tw.idleExpired = true
			}
			expired := tw.idleExpired
			tw.mu.Unlock()

			if expired {
				logging.Warn("Stream idle timeout exceeded: %v", idle)
				tw.cancel()
				// Unblock a write stuck on a stalled connection.
				tw.setDeadline(time.Now())
				return
			}

		case <-tw.ctx.Done():
			return
		}
	}
}

// contextError maps the writer's context state to a sentinel error.
func (tw *TimeoutWriter) contextError() error {
	tw.mu.Lock()
	idle := tw.idleExpired
	closed := tw.closed
	tw.mu.Unlock()

	switch {
	case idle:
		return ErrWriteTimeout
	case closed:
		return ErrStreamCanceled
	case tw.parent.Err() != nil:
		return ErrClientGone
	default:
		return ErrStreamCanceled
	}
}

// Close stops the writer and clears any write deadline it set. It is safe
// to call more than once.
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	if tw.closed {
		tw.mu.Unlock()
		return nil
	}
	tw.closed = true
	tw.cancel()
	defer tw.mu.Unlock()

	if tw.deadlineSet {
		if err := tw.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}

// Stream copies r to w with timeout protection and returns the number of bytes
// delivered. The caller sets response headers (including Content-Length) and
// the status before calling it.
func Stream(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) (int64, error) {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	bufSize := config.ChunkSize
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}

	// Hide ReaderFrom/WriterTo so every byte goes through the chunked,
	// timeout-protected Write path.
	_, err := io.CopyBuffer(struct{ io.Writer }{tw}, struct{ io.Reader }{r}, make([]byte, bufSize))

	bytesWritten, duration := tw.Stats()
	metrics.BytesDelivered.Add(float64(bytesWritten))
	logging.Debug("Stream completed: %d bytes in %v", bytesWritten, duration)

	return bytesWritten, err
}
