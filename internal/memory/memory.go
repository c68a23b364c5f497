package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// Config holds monitor thresholds.
type Config struct {
	// MemoryLimitBytes is the heap budget (0 = use GOMEMLIMIT if set).
	MemoryLimitBytes int64

	// HighWaterMark is the heap/limit ratio at which to throttle (0.0-1.0).
	HighWaterMark float64

	// SystemHighPercent throttles when host memory use reaches this
	// percentage (0 = ignore host memory).
	SystemHighPercent float64

	CheckInterval time.Duration
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		SystemHighPercent: 90,
		CheckInterval:     5 * time.Second,
	}
}

// Sample is one memory reading.
type Sample struct {
	HeapAlloc         uint64
	SystemUsedPercent float64
}

// Stats is a snapshot of the monitor's view.
type Stats struct {
	HeapAlloc         uint64  `json:"heapAlloc"`
	Limit             int64   `json:"limit"`
	HeapRatio         float64 `json:"heapRatio"`
	SystemUsedPercent float64 `json:"systemUsedPercent"`
	Throttled         bool    `json:"throttled"`
}

// Monitor tracks memory usage and reports pressure.
type Monitor struct {
	config   Config
	limit    int64
	sample   func(ctx context.Context) (Sample, error)
	stopChan chan struct{}
	stopOnce sync.Once

	mu        sync.RWMutex
	current   Sample
	throttled bool
}

// NewMonitor creates a monitor. It does nothing until Start is called.
func NewMonitor(config Config) *Monitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}

	limit := config.MemoryLimitBytes
	if limit == 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < 1<<62 {
			limit = goMemLimit
		}
	}
	if limit == 0 && config.SystemHighPercent == 0 {
		logging.Warn("Memory monitor: no heap limit and no host threshold, throttling disabled")
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		sample:   readSample,
		stopChan: make(chan struct{}),
	}
}

// readSample reads the Go heap and, where supported, host memory.
func readSample(ctx context.Context) (Sample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := Sample{HeapAlloc: ms.Alloc}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.SystemUsedPercent = vm.UsedPercent
	return s, nil
}

// Start takes an initial sample and begins periodic checks.
func (m *Monitor) Start() {
	m.check()
	go m.loop()
}

// Stop ends monitoring. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.CheckInterval)
	defer cancel()

	s, err := m.sample(ctx)
	if err != nil {
		logging.Debug("Host memory unavailable: %v", err)
	}

	m.mu.Lock()
	m.current = s
	was := m.throttled
	m.throttled = m.pressured(s)
	now := m.throttled
	m.mu.Unlock()

	if m.limit > 0 {
		metrics.MemoryUsageRatio.Set(float64(s.HeapAlloc) / float64(m.limit))
	}
	metrics.SystemMemoryUsedPercent.Set(s.SystemUsedPercent)

	switch {
	case now && !was:
		logging.Warn("Memory pressure (heap %s, host %.1f%%), buffering disabled",
			FormatBytes(int64(s.HeapAlloc)), s.SystemUsedPercent)
		metrics.MemoryThrottled.Set(1)
	case !now && was:
		logging.Info("Memory recovered (heap %s, host %.1f%%)",
			FormatBytes(int64(s.HeapAlloc)), s.SystemUsedPercent)
		metrics.MemoryThrottled.Set(0)
	}
}

func (m *Monitor) pressured(s Sample) bool {
	if m.limit > 0 && m.config.HighWaterMark > 0 &&
		float64(s.HeapAlloc) >= float64(m.limit)*m.config.HighWaterMark {
		return true
	}
	return m.config.SystemHighPercent > 0 && s.SystemUsedPercent >= m.config.SystemHighPercent
}

// ShouldThrottle reports whether memory was under pressure at the last check.
func (m *Monitor) ShouldThrottle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.throttled
}

// GetStats returns the last reading.
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		HeapAlloc:         m.current.HeapAlloc,
		Limit:             m.limit,
		SystemUsedPercent: m.current.SystemUsedPercent,
		Throttled:         m.throttled,
	}
	if m.limit > 0 {
		st.HeapRatio = float64(m.current.HeapAlloc) / float64(m.limit)
	}
	return st
}
