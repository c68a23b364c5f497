package database

import "time"

// JobStatus is the coarse result of a job.
type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is one finished job as stored in history.
type JobRecord struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Outcome     string    `json:"outcome"`
	Backend     string    `json:"backend"`
	Mode        string    `json:"mode"`
	Params      string    `json:"params"`
	Filename    string    `json:"filename,omitempty"`
	InputBytes  int64     `json:"inputBytes"`
	OutputBytes int64     `json:"outputBytes"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	ElapsedMs   int64     `json:"elapsedMs"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// JobStats aggregates the stored history.
type JobStats struct {
	TotalJobs        int            `json:"totalJobs"`
	SucceededJobs    int            `json:"succeededJobs"`
	FailedJobs       int            `json:"failedJobs"`
	ByOutcome        map[string]int `json:"byOutcome"`
	TotalInputBytes  int64          `json:"totalInputBytes"`
	TotalOutputBytes int64          `json:"totalOutputBytes"`
	AvgElapsedMs     float64        `json:"avgElapsedMs"`
	LastJobAt        *time.Time     `json:"lastJobAt,omitempty"`
}
