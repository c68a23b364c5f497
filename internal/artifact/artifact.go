package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"video-optimizer/internal/filesystem"
	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// Role identifies which pipeline step writes an artifact.
type Role string

const (
	// RoleInput is written by ingestion and read by the transform.
	RoleInput Role = "input"
	// RoleOutput is written by the transform and read by the response.
	RoleOutput Role = "output"
)

// State is the lifecycle position of an artifact.
type State int

const (
	StateCreated State = iota
	StateInUse
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInUse:
		return "in_use"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrReleased is returned when a released artifact is accessed.
	ErrReleased = errors.New("artifact already released")
	// ErrWrongState is returned when an operation does not fit the current state.
	ErrWrongState = errors.New("artifact in wrong state")
)

// Artifact is a filesystem-backed temporary file owned by one job.
type Artifact struct {
	path string
	role Role

	mu    sync.Mutex
	state State
}

func newArtifact(path string, role Role) *Artifact {
	metrics.ArtifactsLive.WithLabelValues(string(role)).Inc()
	return &Artifact{path: path, role: role, state: StateCreated}
}

// Path returns the artifact's location. The path stays readable after
// release for logging, but must not be handed to any further step.
func (a *Artifact) Path() string {
	return a.path
}

// Role returns the artifact's role.
func (a *Artifact) Role() Role {
	return a.role
}

// State returns the current lifecycle state.
func (a *Artifact) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Create opens the artifact for writing. It is only valid in the created
// state; the writer owns the returned handle and must close it.
func (a *Artifact) Create() (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateReleased {
		return nil, ErrReleased
	}
	if a.state != StateCreated {
		return nil, fmt.Errorf("%w: create in state %s", ErrWrongState, a.state)
	}
	return os.OpenFile(a.path, os.O_WRONLY|os.O_TRUNC, 0o600)
}

// MarkInUse records that the artifact has been handed to its downstream
// reader (or, for outputs, to the transform that writes it).
func (a *Artifact) MarkInUse() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateReleased:
		return ErrReleased
	case StateCreated:
		a.state = StateInUse
	}
	return nil
}

// Open opens the artifact for reading.
func (a *Artifact) Open() (*os.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateReleased {
		return nil, ErrReleased
	}
	return filesystem.OpenWithRetry(a.path, retryConfig)
}

// Size returns the current size of the artifact on disk.
func (a *Artifact) Size() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateReleased {
		return 0, ErrReleased
	}
	info, err := filesystem.StatWithRetry(a.path, retryConfig)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Release removes the artifact from disk. Calling it more than once, or on a
// path some other step already removed, is not an error.
func (a *Artifact) Release() {
	a.mu.Lock()
	if a.state == StateReleased {
		a.mu.Unlock()
		return
	}
	a.state = StateReleased
	a.mu.Unlock()

	metrics.ArtifactsLive.WithLabelValues(string(a.role)).Dec()
	removeQuietly(a.path, removeFile)
}

// retryConfig governs removal and open on network-mounted work dirs.
var retryConfig = filesystem.DefaultRetryConfig()

func removeFile(path string) error {
	return filesystem.RemoveWithRetry(path, retryConfig)
}

func removeTree(path string) error {
	return filesystem.RemoveAllWithRetry(path, retryConfig)
}

// removeQuietly removes path and downgrades any failure to a cleanup warning.
func removeQuietly(path string, remove func(string) error) {
	if err := remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.CleanupWarnings.Inc()
		logging.Warn("Cleanup warning: failed to remove %s: %v", path, err)
		return
	}
	logging.Debug("Released %s", path)
}
