// Package filesystem retries file operations that fail with transient
// errors on network and container-mounted volumes.
//
// Work directories are often an NFS export or a bind mount shared with a
// container runtime. On those, a remove or open can briefly fail with
// ESTALE (stale file handle) or EBUSY while another client or the kernel
// still holds the entry. Other errors are returned immediately.
//
// # Usage
//
//	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//
// Backoff doubles after each attempt up to MaxBackoff. Every retry and
// final failure is counted in the video_optimizer_filesystem_retry_*
// metrics, labelled by operation.
package filesystem
