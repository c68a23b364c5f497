package memory

import (
	"fmt"
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"video-optimizer/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The remainder is left for ffmpeg processes.
const DefaultMemoryRatio = 0.75

// ConfigResult describes what ConfigureFromEnv did.
type ConfigResult struct {
	Configured bool
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT" or "none".
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO unless
// GOMEMLIMIT is already set.
func ConfigureFromEnv() ConfigResult {
	return configure(os.Getenv("GOMEMLIMIT"), os.Getenv("MEMORY_LIMIT"), os.Getenv("MEMORY_RATIO"))
}

func configure(goMemLimit, containerLimit, ratioStr string) ConfigResult {
	if goMemLimit != "" {
		result := ConfigResult{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", goMemLimit)
		return result
	}

	if containerLimit == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left at runtime default")
		return ConfigResult{Source: "none"}
	}

	limit, err := strconv.ParseInt(strings.TrimSpace(containerLimit), 10, 64)
	if err != nil || limit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", containerLimit)
		return ConfigResult{Source: "none"}
	}

	ratio := parseRatio(ratioStr)
	heap := int64(float64(limit) * ratio)
	debug.SetMemoryLimit(heap)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		FormatBytes(heap), ratio*100, FormatBytes(limit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: limit,
		GoMemLimit:     heap,
		Ratio:          ratio,
	}
}

// parseRatio returns DefaultMemoryRatio for empty, malformed or out of range
// values.
func parseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(r) || r <= 0 || r > 1 {
		logging.Warn("MEMORY_RATIO %q invalid (want 0 < r <= 1), using %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return r
}

// FormatBytes renders b with binary units, e.g. "1.5 GiB".
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
