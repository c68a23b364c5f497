// Package memory sizes the Go heap for containerized deployments and watches
// memory pressure while transforms run.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// The following environment variables are read:
//
//   - GOMEMLIMIT: Standard Go variable. If set it wins and nothing else is
//     applied.
//   - MEMORY_LIMIT: Container memory limit in bytes, typically injected with
//     the Kubernetes Downward API (resourceFieldRef: limits.memory).
//   - MEMORY_RATIO: Fraction of MEMORY_LIMIT given to the Go heap. Defaults
//     to 0.75, leaving the rest for ffmpeg child processes, which are not
//     covered by GOMEMLIMIT.
//
// # Monitoring
//
// A [Monitor] samples the Go heap against the soft limit and host memory
// usage (via gopsutil) on a fixed interval. [Monitor.ShouldThrottle] reports
// pressure; the job pipeline uses it to fall back from in-memory delivery to
// streaming from disk.
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
package memory
