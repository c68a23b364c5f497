package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// Backend names where the transform runs.
type Backend string

const (
	// BackendFFmpeg runs a local ffmpeg binary.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendDocker runs ffmpeg inside a throwaway container.
	BackendDocker Backend = "docker"
)

// ParseBackend maps a TRANSFORM value to a Backend.
func ParseBackend(s string) (Backend, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ffmpeg", "local":
		return BackendFFmpeg, true
	case "docker", "container":
		return BackendDocker, true
	default:
		return BackendFFmpeg, false
	}
}

// containerWorkDir is where a job's scope directory is mounted in the container.
const containerWorkDir = "/work"

// waitDelay bounds how long Wait blocks on I/O after the process is killed.
const waitDelay = 5 * time.Second

// Transformer turns an input artifact into an output artifact.
type Transformer interface {
	Transform(ctx context.Context, input, output string, p Params) error
}

// Config selects and configures the backend.
type Config struct {
	Backend            Backend
	FFmpegPath         string
	FFprobePath        string
	DockerPath         string
	DockerImage        string
	Threads            int
	Preset             string
	MaxDiagnosticBytes int
}

// DefaultConfig returns the local ffmpeg backend with stock settings.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendFFmpeg,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		DockerPath:         "docker",
		DockerImage:        "jrottenberg/ffmpeg:6-alpine",
		Threads:            4,
		Preset:             defaultPreset,
		MaxDiagnosticBytes: DefaultMaxDiagnosticBytes,
	}
}

// Transcoder runs transforms through the configured backend and tracks the
// child processes it starts.
type Transcoder struct {
	cfg       Config
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// VideoInfo describes the first video stream of a file.
type VideoInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
}

// New creates a Transcoder. Zero-valued fields fall back to DefaultConfig.
func New(cfg Config) *Transcoder {
	def := DefaultConfig()
	if cfg.Backend == "" {
		cfg.Backend = def.Backend
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.DockerPath == "" {
		cfg.DockerPath = def.DockerPath
	}
	if cfg.DockerImage == "" {
		cfg.DockerImage = def.DockerImage
	}
	if cfg.Preset == "" {
		cfg.Preset = def.Preset
	}
	if cfg.MaxDiagnosticBytes <= 0 {
		cfg.MaxDiagnosticBytes = def.MaxDiagnosticBytes
	}

	return &Transcoder{
		cfg:       cfg,
		processes: make(map[string]*exec.Cmd),
	}
}

// Backend returns the configured backend.
func (t *Transcoder) Backend() Backend {
	return t.cfg.Backend
}

// RequiresScope reports whether input and output must share one directory.
// The container backend mounts a single directory into the container.
func (t *Transcoder) RequiresScope() bool {
	return t.cfg.Backend == BackendDocker
}

// Transform runs exactly one invocation of the external tool. It succeeds only
// when the tool exits 0 and output exists and is non-empty. Failures of the
// tool itself are returned as *TransformError; a canceled or expired ctx is
// returned wrapped so errors.Is(err, context.Canceled) and
// errors.Is(err, context.DeadlineExceeded) work.
func (t *Transcoder) Transform(ctx context.Context, input, output string, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	name, args, err := t.transformCommand(input, output, p)
	if err != nil {
		return err
	}

	stderr := newTailBuffer(t.cfg.MaxDiagnosticBytes)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	logging.Debug("Running %s %s", name, strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	t.track(output, cmd)
	metrics.TransformsRunning.Inc()
	waitErr := cmd.Wait()
	metrics.TransformsRunning.Dec()
	t.untrack(output)

	status := "success"
	defer func() {
		metrics.TransformDuration.WithLabelValues(string(t.cfg.Backend), status).Observe(time.Since(start).Seconds())
	}()

	if waitErr != nil {
		status = "error"
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("transform interrupted: %w", ctxErr)
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &TransformError{ExitCode: exitCode, Diagnostic: stderr.String(), Err: waitErr}
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		status = "error"
		return &TransformError{ExitCode: 0, Diagnostic: stderr.String(), Err: ErrEmptyOutput}
	}

	return nil
}

// transformCommand returns the program and argument list for one transform.
func (t *Transcoder) transformCommand(input, output string, p Params) (string, []string, error) {
	switch t.cfg.Backend {
	case BackendFFmpeg:
		return t.cfg.FFmpegPath, buildArgs(input, output, p, t.cfg.Threads, t.cfg.Preset), nil

	case BackendDocker:
		dir := filepath.Dir(input)
		if filepath.Dir(output) != dir {
			return "", nil, fmt.Errorf("docker backend needs input and output in one directory, got %s and %s", dir, filepath.Dir(output))
		}
		ffArgs := buildArgs(
			containerWorkDir+"/"+filepath.Base(input),
			containerWorkDir+"/"+filepath.Base(output),
			p, t.cfg.Threads, t.cfg.Preset,
		)
		return t.cfg.DockerPath, append(t.dockerRunArgs(dir, ""), ffArgs...), nil

	default:
		return "", nil, fmt.Errorf("unknown transform backend %q", t.cfg.Backend)
	}
}

// dockerRunArgs builds a `docker run` prefix that mounts dir at /work with no
// network access. A non-empty entrypoint overrides the image's.
func (t *Transcoder) dockerRunArgs(dir, entrypoint string) []string {
	args := []string{"run", "--rm", "--network", "none", "-v", dir + ":" + containerWorkDir}
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
		args = append(args, "--user", strconv.Itoa(uid)+":"+strconv.Itoa(gid))
	}
	if entrypoint != "" {
		args = append(args, "--entrypoint", entrypoint)
	}
	return append(args, t.cfg.DockerImage)
}

type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads dimensions, duration and codec of the first video stream.
func (t *Transcoder) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	probeArgs := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height:format=duration",
		"-of", "json",
	}

	var name string
	var args []string
	if t.cfg.Backend == BackendDocker {
		name = t.cfg.DockerPath
		args = append(t.dockerRunArgs(filepath.Dir(path), "ffprobe"), probeArgs...)
		args = append(args, containerWorkDir+"/"+filepath.Base(path))
	} else {
		name = t.cfg.FFprobePath
		args = append(probeArgs, path)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	var stdout bytes.Buffer
	stderr := newTailBuffer(t.cfg.MaxDiagnosticBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, errors.New("no video stream found")
	}

	info := &VideoInfo{
		Width:  out.Streams[0].Width,
		Height: out.Streams[0].Height,
		Codec:  out.Streams[0].CodecName,
	}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err == nil {
			info.Duration = d
		}
	}
	return info, nil
}

// CheckAvailable runs the backend's version command and returns its first
// output line.
func (t *Transcoder) CheckAvailable(ctx context.Context) (string, error) {
	var cmd *exec.Cmd
	switch t.cfg.Backend {
	case BackendDocker:
		cmd = exec.CommandContext(ctx, t.cfg.DockerPath, "version", "--format", "{{.Server.Version}}")
	default:
		cmd = exec.CommandContext(ctx, t.cfg.FFmpegPath, "-version")
	}

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s not available: %w", cmd.Path, err)
	}

	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

func (t *Transcoder) track(key string, cmd *exec.Cmd) {
	t.processMu.Lock()
	t.processes[key] = cmd
	t.processMu.Unlock()
}

func (t *Transcoder) untrack(key string) {
	t.processMu.Lock()
	delete(t.processes, key)
	t.processMu.Unlock()
}

// ActiveProcesses returns the number of transforms currently running.
func (t *Transcoder) ActiveProcesses() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup kills all active transform processes and their process groups.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for output, cmd := range t.processes {
		logging.Info("Killing transform process for: %s", output)
		if err := killProcessGroup(cmd); err != nil {
			logging.Warn("failed to kill transform process for %s: %v", output, err)
		}
	}
}
