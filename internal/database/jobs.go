package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"video-optimizer/internal/metrics"
)

// ErrJobNotFound is returned when a job ID has no history row.
var ErrJobNotFound = errors.New("job not found")

// DefaultListLimit and MaxListLimit bound ListJobs.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const jobColumns = `id, status, outcome, backend, mode, params, filename,
	input_bytes, output_bytes, width, height, duration, elapsed_ms, error,
	created_at, completed_at`

// RecordJob stores a finished job.
func (d *Database) RecordJob(ctx context.Context, job *JobRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_job", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO jobs (`+jobColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID, job.Status, job.Outcome, job.Backend, job.Mode, job.Params, job.Filename,
		job.InputBytes, job.OutputBytes, job.Width, job.Height, job.Duration, job.ElapsedMs, job.Error,
		job.CreatedAt.Unix(), job.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}

	d.statsMu.Lock()
	d.stats.TotalJobs++
	if job.Status == JobStatusSucceeded {
		d.stats.SucceededJobs++
	} else {
		d.stats.FailedJobs++
	}
	d.statsMu.Unlock()

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*JobRecord, error) {
	var job JobRecord
	var createdAt, completedAt int64

	err := row.Scan(
		&job.ID, &job.Status, &job.Outcome, &job.Backend, &job.Mode, &job.Params, &job.Filename,
		&job.InputBytes, &job.OutputBytes, &job.Width, &job.Height, &job.Duration, &job.ElapsedMs, &job.Error,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	job.CompletedAt = time.Unix(completedAt, 0)
	return &job, nil
}

// GetJob returns one job by ID.
func (d *Database) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	start := time.Now()
	var err error
	defer func() {
		if errors.Is(err, ErrJobNotFound) {
			recordQuery("get_job", start, nil)
			return
		}
		recordQuery("get_job", start, err)
	}()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	var job *JobRecord
	job, err = scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrJobNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, newest first. A limit outside
// 1..MaxListLimit falls back to DefaultListLimit or MaxListLimit.
func (d *Database) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_jobs", start, err) }()

	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]JobRecord, 0, limit)
	for rows.Next() {
		var job *JobRecord
		job, err = scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

// JobStats aggregates the whole history.
func (d *Database) JobStats(ctx context.Context) (*JobStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := &JobStats{ByOutcome: make(map[string]int)}
	var avgElapsed sql.NullFloat64
	var lastJob sql.NullInt64

	err = d.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(input_bytes), 0),
		COALESCE(SUM(output_bytes), 0),
		AVG(elapsed_ms),
		MAX(created_at)
	FROM jobs
	`, JobStatusSucceeded).Scan(
		&stats.TotalJobs, &stats.SucceededJobs,
		&stats.TotalInputBytes, &stats.TotalOutputBytes,
		&avgElapsed, &lastJob,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate jobs: %w", err)
	}
	stats.FailedJobs = stats.TotalJobs - stats.SucceededJobs
	if avgElapsed.Valid {
		stats.AvgElapsedMs = avgElapsed.Float64
	}
	if lastJob.Valid {
		t := time.Unix(lastJob.Int64, 0)
		stats.LastJobAt = &t
	}

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM jobs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var count int
		if err = rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		stats.ByOutcome[outcome] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}

	return stats, nil
}

// PruneBefore deletes jobs created before cutoff and returns how many rows
// were removed.
func (d *Database) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var result sql.Result
	result, err = d.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		if refreshErr := d.RefreshStats(ctx); refreshErr != nil {
			return removed, refreshErr
		}
	}
	return removed, nil
}

// RefreshStats reloads the cached counts served by GetStats.
func (d *Database) RefreshStats(ctx context.Context) error {
	stats, err := d.JobStats(ctx)
	if err != nil {
		return err
	}

	d.statsMu.Lock()
	d.stats = metrics.Stats{
		TotalJobs:     stats.TotalJobs,
		SucceededJobs: stats.SucceededJobs,
		FailedJobs:    stats.FailedJobs,
	}
	d.statsMu.Unlock()
	return nil
}

// GetStats returns the cached job counts without touching the database.
func (d *Database) GetStats() metrics.Stats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}
