package startup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"video-optimizer/internal/memory"
	"video-optimizer/internal/transcoder"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1048576", 1 << 20, false},
		{"512MiB", 512 << 20, false},
		{"512mib", 512 << 20, false},
		{"512M", 512 << 20, false},
		{"512MB", 512_000_000, false},
		{"2GiB", 2 << 30, false},
		{"2 GiB", 2 << 30, false},
		{"1.5KiB", 1536, false},
		{"8k", 8192, false},
		{" 64B ", 64, false},
		{"", 0, true},
		{"GiB", 0, true},
		{"-1", 0, true},
		{"10XB", 0, true},
		{"1.2.3M", 0, true},
		{"99999999999TiB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSourcePrecedence(t *testing.T) {
	path := writeConfigFile(t, `
port: 7000
work-dir: /from/file
METRICS_ENABLED: false
queue_timeout: 45s
empty:
`)
	src, err := newSource(path, envFrom(map[string]string{"PORT": "9000"}))
	if err != nil {
		t.Fatalf("newSource() error = %v", err)
	}

	if v, origin, _ := src.lookup("PORT"); v != "9000" || origin != "env" {
		t.Errorf("PORT = %q from %s, want 9000 from env", v, origin)
	}
	if v, origin, _ := src.lookup("WORK_DIR"); v != "/from/file" || origin != "file" {
		t.Errorf("WORK_DIR = %q from %s, want /from/file from file", v, origin)
	}
	if src.getBool("METRICS_ENABLED", true) {
		t.Error("METRICS_ENABLED from file should be false")
	}
	if d := src.getDuration("QUEUE_TIMEOUT", time.Second); d != 45*time.Second {
		t.Errorf("QUEUE_TIMEOUT = %v, want 45s", d)
	}
	if _, _, ok := src.lookup("EMPTY"); ok {
		t.Error("null YAML values should be treated as unset")
	}
	if got := src.getString("MISSING", "fallback"); got != "fallback" {
		t.Errorf("getString default = %q", got)
	}
}

func TestSourceKeySeparators(t *testing.T) {
	path := writeConfigFile(t, `
work.dir: /dotted
transcode-timeout: 90s
Memory.High-Percent: 70
`)
	src, err := newSource(path, envFrom(nil))
	if err != nil {
		t.Fatalf("newSource() error = %v", err)
	}

	if got := src.getString("WORK_DIR", ""); got != "/dotted" {
		t.Errorf("WORK_DIR = %q, want /dotted", got)
	}
	if d := src.getDuration("TRANSCODE_TIMEOUT", time.Second); d != 90*time.Second {
		t.Errorf("TRANSCODE_TIMEOUT = %v, want 90s", d)
	}
	if got := src.getInt("MEMORY_HIGH_PERCENT", 0, 1, 100); got != 70 {
		t.Errorf("MEMORY_HIGH_PERCENT = %d, want 70", got)
	}
}

func TestNewSourceErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Malformed YAML", "port: [8080"},
		{"Nested map", "transcoder:\n  threads: 2\n"},
		{"List value", "port:\n  - 1\n  - 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newSource(writeConfigFile(t, tt.content), envFrom(nil)); err == nil {
				t.Error("expected an error")
			}
		})
	}

	t.Run("Missing file", func(t *testing.T) {
		if _, err := newSource(filepath.Join(t.TempDir(), "nope.yaml"), envFrom(nil)); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}

func TestSourceInvalidValuesFallBack(t *testing.T) {
	src, _ := newSource("", envFrom(map[string]string{
		"B":    "maybe",
		"I":    "seven",
		"IR":   "99",
		"D":    "soon",
		"DNEG": "-5s",
		"S":    "lots",
	}))

	if got := src.getBool("B", true); !got {
		t.Error("invalid bool should fall back to default")
	}
	if got := src.getInt("I", 3, 0, 10); got != 3 {
		t.Errorf("getInt(invalid) = %d, want 3", got)
	}
	if got := src.getInt("IR", 3, 0, 51); got != 3 {
		t.Errorf("getInt(out of range) = %d, want 3", got)
	}
	if got := src.getDuration("D", time.Minute); got != time.Minute {
		t.Errorf("getDuration(invalid) = %v", got)
	}
	if got := src.getDuration("DNEG", time.Minute); got != time.Minute {
		t.Errorf("getDuration(negative) = %v", got)
	}
	if got := src.getSize("S", 42); got != 42 {
		t.Errorf("getSize(invalid) = %d", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRANSCODE_WORKERS", "")
	src, _ := newSource("", envFrom(nil))
	cfg := load(src)

	if cfg.Port != "8080" || cfg.MetricsPort != "9090" || !cfg.MetricsEnabled {
		t.Errorf("ports/metrics = %s/%s/%v", cfg.Port, cfg.MetricsPort, cfg.MetricsEnabled)
	}
	if cfg.Transcoder.Backend != transcoder.BackendFFmpeg {
		t.Errorf("Backend = %s", cfg.Transcoder.Backend)
	}
	if cfg.Transcoder.Threads != 4 || cfg.Transcoder.Preset != "ultrafast" {
		t.Errorf("threads/preset = %d/%s", cfg.Transcoder.Threads, cfg.Transcoder.Preset)
	}
	if cfg.DefaultCRF != transcoder.DefaultCRF {
		t.Errorf("DefaultCRF = %d", cfg.DefaultCRF)
	}
	if cfg.Workers < 1 || cfg.Workers > 4 {
		t.Errorf("Workers = %d, want 1..4", cfg.Workers)
	}
	if cfg.TranscodeTimeout != DefaultTranscodeTimeout || cfg.QueueTimeout != DefaultQueueTimeout {
		t.Errorf("timeouts = %v/%v", cfg.TranscodeTimeout, cfg.QueueTimeout)
	}
	if cfg.MaxUploadSize != DefaultMaxUploadSize || cfg.MinFreeDisk != DefaultMinFreeDisk {
		t.Errorf("sizes = %d/%d", cfg.MaxUploadSize, cfg.MinFreeDisk)
	}
	if cfg.BufferThreshold != 0 {
		t.Errorf("BufferThreshold = %d, want 0", cfg.BufferThreshold)
	}
	if cfg.Transcoder.MaxDiagnosticBytes != transcoder.DefaultMaxDiagnosticBytes {
		t.Errorf("MaxDiagnosticBytes = %d", cfg.Transcoder.MaxDiagnosticBytes)
	}
	if cfg.HistoryRetention != DefaultHistoryRetention {
		t.Errorf("HistoryRetention = %v", cfg.HistoryRetention)
	}
	if cfg.Memory != memory.DefaultConfig() {
		t.Errorf("Memory = %+v, want defaults", cfg.Memory)
	}
}

func TestLoadOverrides(t *testing.T) {
	src, _ := newSource("", envFrom(map[string]string{
		"TRANSFORM":             "container",
		"DOCKER_IMAGE":          "linuxserver/ffmpeg:latest",
		"FFMPEG_THREADS":        "2",
		"FFMPEG_PRESET":         "VeryFast",
		"DEFAULT_CRF":           "23",
		"TRANSCODE_WORKERS":     "6",
		"TRANSCODE_TIMEOUT":     "90s",
		"MAX_UPLOAD_SIZE":       "100MiB",
		"MAX_DIAGNOSTIC_BYTES":  "2KiB",
		"MIN_FREE_DISK":         "0",
		"BUFFER_THRESHOLD":      "16MiB",
		"HISTORY_RETENTION":     "0s",
		"MEMORY_HIGH_PERCENT":   "85",
		"MEMORY_CHECK_INTERVAL": "0s",
	}))
	cfg := load(src)

	if cfg.Transcoder.Backend != transcoder.BackendDocker {
		t.Errorf("Backend = %s", cfg.Transcoder.Backend)
	}
	if cfg.Transcoder.DockerImage != "linuxserver/ffmpeg:latest" {
		t.Errorf("DockerImage = %s", cfg.Transcoder.DockerImage)
	}
	if cfg.Transcoder.Threads != 2 || cfg.Transcoder.Preset != "veryfast" {
		t.Errorf("threads/preset = %d/%s", cfg.Transcoder.Threads, cfg.Transcoder.Preset)
	}
	if cfg.DefaultCRF != 23 || cfg.Workers != 6 || cfg.TranscodeTimeout != 90*time.Second {
		t.Errorf("crf/workers/timeout = %d/%d/%v", cfg.DefaultCRF, cfg.Workers, cfg.TranscodeTimeout)
	}
	if cfg.MaxUploadSize != 100<<20 || cfg.Transcoder.MaxDiagnosticBytes != 2048 {
		t.Errorf("upload/diag = %d/%d", cfg.MaxUploadSize, cfg.Transcoder.MaxDiagnosticBytes)
	}
	if cfg.MinFreeDisk != 0 || cfg.BufferThreshold != 16<<20 || cfg.HistoryRetention != 0 {
		t.Errorf("disk/buffer/retention = %d/%d/%v", cfg.MinFreeDisk, cfg.BufferThreshold, cfg.HistoryRetention)
	}
	if cfg.Memory.HighWaterMark != 0.85 || cfg.Memory.CheckInterval != memory.DefaultConfig().CheckInterval {
		t.Errorf("memory = %+v", cfg.Memory)
	}
}

func TestLoadRejectsUnsafeValues(t *testing.T) {
	src, _ := newSource("", envFrom(map[string]string{
		"TRANSFORM":         "kubernetes",
		"FFMPEG_PRESET":     "fast; rm -rf /",
		"DEFAULT_CRF":       "80",
		"MAX_UPLOAD_SIZE":   "0",
		"TRANSCODE_TIMEOUT": "0s",
		"QUEUE_TIMEOUT":     "0",
	}))
	cfg := load(src)

	if cfg.Transcoder.Backend != transcoder.BackendFFmpeg {
		t.Errorf("Backend = %s, want ffmpeg", cfg.Transcoder.Backend)
	}
	if cfg.Transcoder.Preset != "ultrafast" {
		t.Errorf("Preset = %q, want ultrafast", cfg.Transcoder.Preset)
	}
	if cfg.DefaultCRF != transcoder.DefaultCRF {
		t.Errorf("DefaultCRF = %d", cfg.DefaultCRF)
	}
	if cfg.MaxUploadSize != DefaultMaxUploadSize {
		t.Errorf("MaxUploadSize = %d", cfg.MaxUploadSize)
	}
	if cfg.TranscodeTimeout != DefaultTranscodeTimeout {
		t.Errorf("TranscodeTimeout = %v, want %v", cfg.TranscodeTimeout, DefaultTranscodeTimeout)
	}
	if cfg.QueueTimeout != DefaultQueueTimeout {
		t.Errorf("QueueTimeout = %v, want %v", cfg.QueueTimeout, DefaultQueueTimeout)
	}
}
