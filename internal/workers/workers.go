package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "TRANSCODE_WORKERS"

// ForTranscode returns how many encoder processes fit on the available CPUs
// when each one runs threadsPerJob threads. It respects container CPU limits
// via GOMAXPROCS (Go 1.19+) and never returns less than 1.
//
// The limit parameter caps the count; use 0 for no limit. TRANSCODE_WORKERS,
// when set to a positive integer, replaces the calculation.
func ForTranscode(threadsPerJob, limit int) int {
	if count, ok := fromEnv(); ok {
		return capAt(count, limit)
	}
	if threadsPerJob < 1 {
		threadsPerJob = 1
	}
	return capAt(runtime.GOMAXPROCS(0)/threadsPerJob, limit)
}

func fromEnv() (int, bool) {
	override := os.Getenv(EnvOverride)
	if override == "" {
		return 0, false
	}
	count, err := strconv.Atoi(override)
	if err != nil || count < 1 {
		return 0, false
	}
	return count, true
}

func capAt(workers, limit int) int {
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}
