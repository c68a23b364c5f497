package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout=60s, got %v", config.IdleTimeout)
	}
	if config.MaxDuration != 0 {
		t.Errorf("Expected MaxDuration=0, got %v", config.MaxDuration)
	}
	if config.ChunkSize != 256*1024 {
		t.Errorf("Expected ChunkSize=256KB, got %d", config.ChunkSize)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := []byte("test data")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if w.Body.String() != "test data" {
		t.Errorf("Body = %q", w.Body.String())
	}

	bytesWritten, _ := tw.Stats()
	if bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytes written=%d, got %d", len(data), bytesWritten)
	}
}

func TestTimeoutWriterClose(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())

	if err := tw.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	_, err := tw.Write([]byte("data"))
	if !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestTimeoutWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()

	_, err := tw.Write([]byte("test"))
	if !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestTimeoutWriterMaxDuration(t *testing.T) {
	config := DefaultTimeoutWriterConfig()
	config.MaxDuration = time.Millisecond

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(5 * time.Millisecond)

	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
}

// stalledWriter is a ResponseWriter on a connection that never drains:
// Write blocks until the write deadline set through SetWriteDeadline passes.
type stalledWriter struct {
	header http.Header

	mu       sync.Mutex
	deadline time.Time
	active   atomic.Int32
}

func newStalledWriter() *stalledWriter {
	return &stalledWriter{header: http.Header{}}
}

func (s *stalledWriter) Header() http.Header { return s.header }
func (s *stalledWriter) WriteHeader(int)     {}

func (s *stalledWriter) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *stalledWriter) currentDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *stalledWriter) Write(p []byte) (int, error) {
	s.active.Add(1)
	defer s.active.Add(-1)

	for {
		if d := s.currentDeadline(); !d.IsZero() && !time.Now().Before(d) {
			return 0, &net.OpError{Op: "write", Net: "tcp", Err: os.ErrDeadlineExceeded}
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	sw := newStalledWriter()

	config := DefaultTimeoutWriterConfig()
	config.WriteTimeout = 50 * time.Millisecond
	config.IdleTimeout = 0

	tw := NewTimeoutWriter(context.Background(), sw, config)
	defer tw.Close()

	start := time.Now()
	_, err := tw.Write([]byte("stuck"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Expected ErrWriteTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Write took %v, timeout not enforced", elapsed)
	}
}

func TestTimeoutWriterIdleTimeout(t *testing.T) {
	sw := newStalledWriter()

	config := DefaultTimeoutWriterConfig()
	config.WriteTimeout = 0
	config.IdleTimeout = 40 * time.Millisecond

	tw := NewTimeoutWriter(context.Background(), sw, config)
	defer tw.Close()

	_, err := tw.Write([]byte("stuck"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected idle expiry to surface as ErrWriteTimeout, got %v", err)
	}
}

func TestStreamLeavesNoWriteInFlight(t *testing.T) {
	sw := newStalledWriter()

	config := DefaultTimeoutWriterConfig()
	config.WriteTimeout = 20 * time.Millisecond

	_, err := Stream(context.Background(), sw, strings.NewReader("video"), config)
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Stream() error = %v, want ErrWriteTimeout", err)
	}
	if n := sw.active.Load(); n != 0 {
		t.Errorf("%d writes still running after Stream returned", n)
	}
	if d := sw.currentDeadline(); !d.IsZero() {
		t.Errorf("write deadline left at %v after Stream returned", d)
	}
}

func TestTimeoutWriterSetsDeadlinePerWrite(t *testing.T) {
	dw := &deadlineRecorder{ResponseRecorder: httptest.NewRecorder()}

	config := DefaultTimeoutWriterConfig()
	config.WriteTimeout = time.Minute
	config.ChunkSize = 4

	tw := NewTimeoutWriter(context.Background(), dw, config)
	if _, err := tw.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(dw.deadlines) != 3 {
		t.Fatalf("Expected 2 deadlines plus a reset, got %d", len(dw.deadlines))
	}
	for _, d := range dw.deadlines[:2] {
		if time.Until(d) < 50*time.Second {
			t.Errorf("deadline %v is not about one minute out", d)
		}
	}
	if !dw.deadlines[2].IsZero() {
		t.Errorf("Close should clear the deadline, got %v", dw.deadlines[2])
	}
}

// deadlineRecorder records every write deadline it is given.
type deadlineRecorder struct {
	*httptest.ResponseRecorder
	deadlines []time.Time
}

func (d *deadlineRecorder) SetWriteDeadline(t time.Time) error {
	d.deadlines = append(d.deadlines, t)
	return nil
}

// countingFlusher records writes and flushes.
type countingFlusher struct {
	*httptest.ResponseRecorder
	writes  int
	flushes int
}

func (c *countingFlusher) Write(p []byte) (int, error) {
	c.writes++
	return c.ResponseRecorder.Write(p)
}

func (c *countingFlusher) Flush() {
	c.flushes++
}

func TestTimeoutWriterChunkedWrites(t *testing.T) {
	cf := &countingFlusher{ResponseRecorder: httptest.NewRecorder()}

	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 10

	tw := NewTimeoutWriter(context.Background(), cf, config)
	defer tw.Close()

	data := bytes.Repeat([]byte("x"), 35)
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 35 {
		t.Errorf("Expected 35 bytes written, got %d", n)
	}
	if cf.writes != 4 {
		t.Errorf("Expected 4 chunked writes, got %d", cf.writes)
	}
	if cf.flushes != 4 {
		t.Errorf("Expected 4 flushes, got %d", cf.flushes)
	}
	if cf.Body.Len() != 35 {
		t.Errorf("Body length = %d, want 35", cf.Body.Len())
	}
}

func TestTimeoutWriterOnProgress(t *testing.T) {
	var mu sync.Mutex
	var calls []int64

	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 512 * 1024
	config.OnProgress = func(bytesWritten int64, _ time.Duration) {
		mu.Lock()
		calls = append(calls, bytesWritten)
		mu.Unlock()
	}

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	if _, err := tw.Write(make([]byte, 3*1024*1024)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Errorf("Expected 3 progress callbacks (one per MB), got %d: %v", len(calls), calls)
	}
}

func TestStream(t *testing.T) {
	payload := strings.Repeat("video-bytes-", 100_000)
	w := httptest.NewRecorder()

	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 64 * 1024

	n, err := Stream(context.Background(), w, strings.NewReader(payload), config)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("Stream() = %d bytes, want %d", n, len(payload))
	}
	if w.Body.String() != payload {
		t.Error("streamed body does not match payload")
	}
}

func TestStreamClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Stream(ctx, httptest.NewRecorder(), strings.NewReader("data"), DefaultTimeoutWriterConfig())
	if !errors.Is(err, ErrClientGone) {
		t.Errorf("Stream() error = %v, want ErrClientGone", err)
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrClientGone, true},
		{ErrWriteTimeout, true},
		{ErrStreamCanceled, true},
		{fmt.Errorf("wrapped: %w", ErrClientGone), true},
		{errors.New("disk on fire"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsClientError(tt.err); got != tt.want {
			t.Errorf("IsClientError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	errs := []error{ErrWriteTimeout, ErrClientGone, ErrStreamCanceled}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v should not match %v", errs[i], errs[j])
			}
		}
	}
}
