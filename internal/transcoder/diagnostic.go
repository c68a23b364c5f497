package transcoder

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxDiagnosticBytes bounds the stderr tail kept for a failed transform.
const DefaultMaxDiagnosticBytes = 8 * 1024

const truncatedMarker = "[...truncated...]\n"

// ErrEmptyOutput marks a transform that exited cleanly without producing output.
var ErrEmptyOutput = errors.New("transform produced no output")

// TransformError is returned when the external tool ran but failed.
// Diagnostic holds the tail of its stderr and is meant for logs only.
type TransformError struct {
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed (exit code %d): %v", e.ExitCode, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// tailBuffer is an io.Writer that retains only the last max bytes written.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = DefaultMaxDiagnosticBytes
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.max {
		if n > b.max || len(b.buf) > 0 {
			b.truncated = true
		}
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		return n, nil
	}

	if over := len(b.buf) + n - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return n, nil
}

// String returns the retained tail, marked when earlier output was dropped.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return truncatedMarker + string(b.buf)
	}
	return string(b.buf)
}
