/*
Package workers sizes the transcode pool in containerized environments.

When running in a container the number of usable CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from those limits, while
runtime.NumCPU() still reports the host's count. This package sizes pools
from GOMAXPROCS.

Each ffmpeg process runs several encoder threads, so the pool is sized by
CPUs per job rather than one job per CPU:

	// 8 CPUs, 4 threads per job, at most 4 jobs -> 2
	n := workers.ForTranscode(4, 4)

# Environment Variable Override

ForTranscode respects TRANSCODE_WORKERS, which pins the count (still capped by
limit when one is given):

	env:
	- name: TRANSCODE_WORKERS
	  value: "2"

It is safe for concurrent use.
*/
package workers
