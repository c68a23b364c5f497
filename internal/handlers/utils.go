package handlers

import (
	"encoding/json"
	"net/http"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/pipeline"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	JobID string `json:"jobId,omitempty"`
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, ErrorResponse{Error: message})
}

// writeJobError writes a caller-safe rendering of a job failure. The wrapped
// cause is never included.
func writeJobError(w http.ResponseWriter, pe *pipeline.Error) {
	writeJSONStatus(w, pe.Status, ErrorResponse{
		Error: pe.Message,
		Kind:  string(pe.Kind),
		JobID: pe.JobID,
	})
}
