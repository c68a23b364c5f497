package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	db, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close database: %v", err)
		}
	})
	return db
}

func testJob(id string, status JobStatus, created time.Time) *JobRecord {
	outcome := "success"
	if status == JobStatusFailed {
		outcome = "transform"
	}
	return &JobRecord{
		ID:          id,
		Status:      status,
		Outcome:     outcome,
		Backend:     "ffmpeg",
		Mode:        "quality",
		Params:      "crf=28",
		Filename:    "clip.mp4",
		InputBytes:  1000,
		OutputBytes: 400,
		Width:       160,
		Height:      120,
		Duration:    2.0,
		ElapsedMs:   1500,
		CreatedAt:   created,
		CompletedAt: created.Add(1500 * time.Millisecond),
	}
}

func TestNewCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	if _, err := os.Stat(db.Path()); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	stats := db.GetStats()
	if stats.TotalJobs != 0 {
		t.Errorf("fresh database should have no jobs, got %d", stats.TotalJobs)
	}
}

func TestNewReopensExistingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	db, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := db.RecordJob(ctx, testJob("a", JobStatusSucceeded, time.Now())); err != nil {
		t.Fatalf("RecordJob() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if got := reopened.GetStats().TotalJobs; got != 1 {
		t.Errorf("cached stats after reopen = %d jobs, want 1", got)
	}
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "missing", "jobs.db")
	if _, err := New(context.Background(), dbPath); err == nil {
		t.Error("expected error for database in missing directory")
	}
}

func TestRecordAndGetJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := time.Unix(1_700_000_000, 0)
	job := testJob("job-1", JobStatusSucceeded, created)
	if err := db.RecordJob(ctx, job); err != nil {
		t.Fatalf("RecordJob() error = %v", err)
	}

	got, err := db.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}

	if got.ID != job.ID || got.Status != job.Status || got.Outcome != job.Outcome {
		t.Errorf("GetJob() identity mismatch: %+v", got)
	}
	if got.Width != 160 || got.Height != 120 || got.Duration != 2.0 {
		t.Errorf("GetJob() probe fields mismatch: %+v", got)
	}
	if got.InputBytes != 1000 || got.OutputBytes != 400 || got.ElapsedMs != 1500 {
		t.Errorf("GetJob() size fields mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
}

func TestRecordJobDuplicateID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.RecordJob(ctx, testJob("dup", JobStatusSucceeded, time.Now())); err != nil {
		t.Fatalf("RecordJob() error = %v", err)
	}
	if err := db.RecordJob(ctx, testJob("dup", JobStatusSucceeded, time.Now())); err == nil {
		t.Error("expected error for duplicate job ID")
	}
	if got := db.GetStats().TotalJobs; got != 1 {
		t.Errorf("failed insert should not change stats, got %d", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetJob(context.Background(), "nope")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		job := testJob(fmt.Sprintf("job-%d", i), JobStatusSucceeded, base.Add(time.Duration(i)*time.Minute))
		if err := db.RecordJob(ctx, job); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		ids   []string
	}{
		{"Limited", 2, []string{"job-4", "job-3"}},
		{"Default limit", 0, []string{"job-4", "job-3", "job-2", "job-1", "job-0"}},
		{"Negative limit", -1, []string{"job-4", "job-3", "job-2", "job-1", "job-0"}},
		{"Over max", MaxListLimit + 100, []string{"job-4", "job-3", "job-2", "job-1", "job-0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := db.ListJobs(ctx, tt.limit)
			if err != nil {
				t.Fatalf("ListJobs() error = %v", err)
			}
			if len(jobs) != len(tt.ids) {
				t.Fatalf("ListJobs() returned %d jobs, want %d", len(jobs), len(tt.ids))
			}
			for i, id := range tt.ids {
				if jobs[i].ID != id {
					t.Errorf("jobs[%d].ID = %s, want %s", i, jobs[i].ID, id)
				}
			}
		})
	}
}

func TestListJobsEmpty(t *testing.T) {
	db := setupTestDB(t)

	jobs, err := db.ListJobs(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Errorf("ListJobs() on empty db = %v, want empty non-nil slice", jobs)
	}
}

func TestJobStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	empty, err := db.JobStats(ctx)
	if err != nil {
		t.Fatalf("JobStats() on empty db error = %v", err)
	}
	if empty.TotalJobs != 0 || empty.LastJobAt != nil {
		t.Errorf("empty stats = %+v", empty)
	}

	base := time.Unix(1_700_000_000, 0)
	jobs := []*JobRecord{
		testJob("s1", JobStatusSucceeded, base),
		testJob("s2", JobStatusSucceeded, base.Add(time.Minute)),
		testJob("f1", JobStatusFailed, base.Add(2*time.Minute)),
	}
	jobs[2].OutputBytes = 0
	jobs[2].ElapsedMs = 300
	for _, job := range jobs {
		if err := db.RecordJob(ctx, job); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	stats, err := db.JobStats(ctx)
	if err != nil {
		t.Fatalf("JobStats() error = %v", err)
	}
	if stats.TotalJobs != 3 || stats.SucceededJobs != 2 || stats.FailedJobs != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.ByOutcome["success"] != 2 || stats.ByOutcome["transform"] != 1 {
		t.Errorf("ByOutcome = %v", stats.ByOutcome)
	}
	if stats.TotalInputBytes != 3000 || stats.TotalOutputBytes != 800 {
		t.Errorf("bytes in/out = %d/%d, want 3000/800", stats.TotalInputBytes, stats.TotalOutputBytes)
	}
	if stats.AvgElapsedMs != 1100 {
		t.Errorf("AvgElapsedMs = %v, want 1100", stats.AvgElapsedMs)
	}
	if stats.LastJobAt == nil || !stats.LastJobAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("LastJobAt = %v", stats.LastJobAt)
	}

	cached := db.GetStats()
	if cached.TotalJobs != 3 || cached.SucceededJobs != 2 || cached.FailedJobs != 1 {
		t.Errorf("cached stats = %+v", cached)
	}
}

func TestPruneBefore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	old := testJob("old", JobStatusFailed, now.Add(-10*24*time.Hour))
	recent := testJob("recent", JobStatusSucceeded, now.Add(-time.Hour))
	for _, job := range []*JobRecord{old, recent} {
		if err := db.RecordJob(ctx, job); err != nil {
			t.Fatalf("RecordJob() error = %v", err)
		}
	}

	removed, err := db.PruneBefore(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneBefore() removed %d, want 1", removed)
	}

	if _, err := db.GetJob(ctx, "old"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("old job should be pruned, GetJob error = %v", err)
	}
	if _, err := db.GetJob(ctx, "recent"); err != nil {
		t.Errorf("recent job should survive, GetJob error = %v", err)
	}

	stats := db.GetStats()
	if stats.TotalJobs != 1 || stats.FailedJobs != 0 {
		t.Errorf("cached stats after prune = %+v", stats)
	}
}

func TestConcurrentRecordJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.RecordJob(ctx, testJob(fmt.Sprintf("c-%d", i), JobStatusSucceeded, time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RecordJob() error = %v", err)
		}
	}
	if got := db.GetStats().TotalJobs; got != n {
		t.Errorf("TotalJobs = %d, want %d", got, n)
	}
}

func TestRecordQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
	}{
		{"successful query", "record_job", nil},
		{"failed query", "record_job", errors.New("test error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Must not panic for either status label.
			recordQuery(tt.operation, time.Now(), tt.err)
		})
	}
}
