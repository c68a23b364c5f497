package metrics

import (
	"time"

	"video-optimizer/internal/logging"
)

// StatsProvider interface for collecting job history stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds job counts by status
type Stats struct {
	TotalJobs     int
	SucceededJobs int
	FailedJobs    int
}

// DiskFreeFunc reports free bytes on the work volume.
type DiskFreeFunc func() (uint64, error)

// Collector periodically collects and updates gauges that are derived from
// external state rather than recorded inline.
type Collector struct {
	statsProvider StatsProvider
	diskFree      DiskFreeFunc
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. Either source may be nil.
func NewCollector(provider StatsProvider, diskFree DiskFreeFunc, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		diskFree:      diskFree,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.diskFree != nil {
		if free, err := c.diskFree(); err != nil {
			logging.Debug("Metrics: failed to read work dir free space: %v", err)
		} else {
			WorkDirFreeBytes.Set(float64(free))
		}
	}

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	HistoryJobs.WithLabelValues("succeeded").Set(float64(stats.SucceededJobs))
	HistoryJobs.WithLabelValues("failed").Set(float64(stats.FailedJobs))

	logging.Debug("Metrics collected: jobs=%d, succeeded=%d, failed=%d",
		stats.TotalJobs, stats.SucceededJobs, stats.FailedJobs)
}
