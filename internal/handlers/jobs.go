package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"video-optimizer/internal/database"
	"video-optimizer/internal/logging"
	"video-optimizer/internal/memory"
	"video-optimizer/internal/pipeline"
)

// ListJobs returns recent job history, newest first.
// GET /api/jobs?limit=N
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	jobs, err := h.history.ListJobs(r.Context(), limit)
	if err != nil {
		logging.Error("Failed to list jobs: %v", err)
		writeJSONError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob returns one job.
// GET /api/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := h.history.GetJob(r.Context(), id)
	if errors.Is(err, database.ErrJobNotFound) {
		writeJSONError(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logging.Error("Failed to get job %s: %v", id, err)
		writeJSONError(w, "failed to get job", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusOK, job)
}

// StatsResponse combines history aggregates with live worker usage.
type StatsResponse struct {
	*database.JobStats
	Workers pipeline.PoolStats `json:"workers"`
	Memory  *memory.Stats      `json:"memory,omitempty"`
}

// GetStats returns aggregate job statistics.
// GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.history.JobStats(r.Context())
	if err != nil {
		logging.Error("Failed to get job stats: %v", err)
		writeJSONError(w, "failed to get stats", http.StatusInternalServerError)
		return
	}

	response := StatsResponse{JobStats: stats, Workers: h.pipeline.Stats()}
	if h.memory != nil {
		st := h.memory.GetStats()
		response.Memory = &st
	}
	writeJSONStatus(w, http.StatusOK, response)
}
