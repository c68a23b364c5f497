package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct {
	stats Stats
	calls int
}

func (f *fakeStats) GetStats() Stats {
	f.calls++
	return f.stats
}

func TestCollectorCollect(t *testing.T) {
	provider := &fakeStats{stats: Stats{TotalJobs: 7, SucceededJobs: 5, FailedJobs: 2}}
	c := NewCollector(provider, func() (uint64, error) { return 4096, nil }, time.Minute)

	c.collect()

	if provider.calls != 1 {
		t.Errorf("expected 1 stats call, got %d", provider.calls)
	}
	if got := testutil.ToFloat64(HistoryJobs.WithLabelValues("succeeded")); got != 5 {
		t.Errorf("succeeded gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(HistoryJobs.WithLabelValues("failed")); got != 2 {
		t.Errorf("failed gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(WorkDirFreeBytes); got != 4096 {
		t.Errorf("free bytes gauge = %v, want 4096", got)
	}
}

func TestCollectorNilSources(t *testing.T) {
	c := NewCollector(nil, nil, time.Minute)
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect panicked with nil sources: %v", r)
		}
	}()
	c.collect()
}

func TestCollectorDiskError(t *testing.T) {
	WorkDirFreeBytes.Set(123)
	c := NewCollector(nil, func() (uint64, error) { return 0, errors.New("statfs failed") }, time.Minute)
	c.collect()

	if got := testutil.ToFloat64(WorkDirFreeBytes); got != 123 {
		t.Errorf("gauge should keep previous value on error, got %v", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	provider := &fakeStats{}
	c := NewCollector(provider, nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(35 * time.Millisecond)
	c.Stop()
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics("ffmpeg")

	for _, outcome := range Outcomes {
		if got := testutil.ToFloat64(JobsTotal.WithLabelValues(outcome)); got < 0 {
			t.Errorf("JobsTotal{%s} = %v", outcome, got)
		}
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.0.0", "abc123", "go1.25", "ffmpeg")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.0.0", "abc123", "go1.25", "ffmpeg")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}
