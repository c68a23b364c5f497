package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// Prefix marks every file and directory the allocator creates, so a startup
// sweep can find leftovers without touching anything else in the work dir.
const Prefix = "vopt-"

// maxCreateAttempts bounds retries on the (practically impossible) event of a
// UUID collision.
const maxCreateAttempts = 3

// Allocator hands out uniquely named artifacts under a root directory.
// It holds no mutable state and is safe for concurrent use.
type Allocator struct {
	root string
}

// NewAllocator creates the root directory if needed and returns an allocator
// rooted there.
func NewAllocator(root string) (*Allocator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &Allocator{root: abs}, nil
}

// Root returns the absolute work directory.
func (al *Allocator) Root() string {
	return al.root
}

// Allocate creates a new empty artifact directly under the root.
func (al *Allocator) Allocate(role Role, suffix string) (*Artifact, error) {
	return allocateIn(al.root, role, suffix)
}

// NewScope creates a private per-job directory under the root.
func (al *Allocator) NewScope() (*Scope, error) {
	dir, err := os.MkdirTemp(al.root, Prefix+"scope-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scope directory: %w", err)
	}
	metrics.ArtifactsLive.WithLabelValues("scope").Inc()
	return &Scope{dir: dir}, nil
}

// Sweep removes allocator-owned entries older than minAge, returning how many
// were removed. Run it at startup to clear what a crashed process left behind.
func (al *Allocator) Sweep(minAge time.Duration) (int, error) {
	entries, err := os.ReadDir(al.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	cutoff := time.Now().Add(-minAge)
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(al.root, entry.Name())
		if err := removeTree(path); err != nil {
			logging.Warn("Sweep: failed to remove stale artifact %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Scope is a per-job directory holding co-located artifacts.
type Scope struct {
	dir      string
	released atomic.Bool
}

// Dir returns the scope directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Allocate creates a new empty artifact inside the scope.
func (s *Scope) Allocate(role Role, suffix string) (*Artifact, error) {
	if s.released.Load() {
		return nil, ErrReleased
	}
	return allocateIn(s.dir, role, suffix)
}

// Release removes the scope directory and anything left inside it.
func (s *Scope) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	metrics.ArtifactsLive.WithLabelValues("scope").Dec()
	removeQuietly(s.dir, removeTree)
}

func allocateIn(dir string, role Role, suffix string) (*Artifact, error) {
	suffix = cleanSuffix(suffix)

	var lastErr error
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		name := fmt.Sprintf("%s%s-%s%s", Prefix, role, uuid.NewString(), suffix)
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to create %s artifact: %w", role, err)
		}
		if err := f.Close(); err != nil {
			removeQuietly(path, removeFile)
			return nil, fmt.Errorf("failed to close new %s artifact: %w", role, err)
		}

		logging.Debug("Allocated %s artifact %s", role, path)
		return newArtifact(path, role), nil
	}
	return nil, fmt.Errorf("failed to allocate unique %s artifact: %w", role, lastErr)
}

// cleanSuffix keeps a short extension like ".mp4" and drops anything that
// could carry path separators or shell metacharacters.
func cleanSuffix(suffix string) string {
	if suffix == "" {
		return ""
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	if len(suffix) > 10 {
		return ""
	}
	for _, r := range suffix[1:] {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			return ""
		}
	}
	return strings.ToLower(suffix)
}
