package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"video-optimizer/internal/diskspace"
	"video-optimizer/internal/logging"
	"video-optimizer/internal/memory"
	"video-optimizer/internal/pipeline"
	"video-optimizer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Backend       string `json:"backend"`
	ToolVersion   string `json:"toolVersion,omitempty"`
	ToolError     string `json:"toolError,omitempty"`
	ActiveProcess int    `json:"activeProcesses"`

	Workers pipeline.PoolStats `json:"workers"`
	Disk    *diskspace.Info    `json:"disk,omitempty"`
	Memory  *memory.Stats      `json:"memory,omitempty"`

	HistoryError string   `json:"historyError,omitempty"`
	Problems     []string `json:"problems,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// readiness collects the reasons the service cannot take new jobs.
type readiness struct {
	toolVersion string
	toolErr     error
	disk        *diskspace.Info
	problems    []string
}

func (h *Handlers) checkReadiness(ctx context.Context) readiness {
	var rd readiness

	rd.toolVersion, rd.toolErr = h.toolStatus(ctx)
	if rd.toolErr != nil {
		rd.problems = append(rd.problems, "transform tool unavailable")
	}

	disk, err := h.diskUsage(ctx, h.opts.WorkDir)
	switch {
	case err != nil:
		logging.Warn("Disk usage check failed: %v", err)
		rd.problems = append(rd.problems, "work directory unreadable")
	case h.opts.MinFreeDisk > 0 && disk.Free < h.opts.MinFreeDisk:
		rd.disk = disk
		rd.problems = append(rd.problems, "work directory low on space")
	default:
		rd.disk = disk
	}
	return rd
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rd := h.checkReadiness(r.Context())

	response := HealthResponse{
		Status:        statusHealthy,
		Ready:         len(rd.problems) == 0,
		Version:       startup.Version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		Backend:       string(h.tool.Backend()),
		ToolVersion:   rd.toolVersion,
		ActiveProcess: h.tool.ActiveProcesses(),
		Workers:       h.pipeline.Stats(),
		Disk:          rd.disk,
		Problems:      rd.problems,
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if rd.toolErr != nil {
		response.ToolError = rd.toolErr.Error()
	}
	if h.memory != nil {
		st := h.memory.GetStats()
		response.Memory = &st
	}
	if err := h.history.Ping(r.Context()); err != nil {
		response.HistoryError = err.Error()
		response.Problems = append(response.Problems, "job history unavailable")
	}

	status := http.StatusOK
	if len(response.Problems) > 0 {
		response.Status = statusDegraded
	}
	if !response.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the tool is present and the work
// directory has room for new uploads.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	rd := h.checkReadiness(r.Context())
	if len(rd.problems) > 0 {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"problems": rd.problems,
		})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
}
