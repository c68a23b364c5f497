package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"video-optimizer/internal/logging"
	"video-optimizer/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isTransient reports whether err is a stale NFS handle or a busy entry.
func isTransient(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE || errno == syscall.EBUSY
	}
	return false
}

// retry runs fn until it succeeds, fails with a non-transient error or
// MaxRetries is exhausted.
func retry(op, path string, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("Filesystem %s succeeded on retry %d for %s", op, attempt, path)
				metrics.FilesystemRetrySuccess.WithLabelValues(op).Inc()
			}
			return nil
		}

		lastErr = err
		if !isTransient(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(op).Inc()
			logging.Debug("Filesystem %s transient error for %s, retrying in %v (attempt %d/%d): %v",
				op, path, backoff, attempt+1, config.MaxRetries, err)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("Filesystem %s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(op).Inc()
	return lastErr
}

// RemoveWithRetry performs os.Remove, retrying transient errors.
func RemoveWithRetry(path string, config RetryConfig) error {
	return retry("remove", path, config, func() error {
		return os.Remove(path)
	})
}

// RemoveAllWithRetry performs os.RemoveAll, retrying transient errors.
func RemoveAllWithRetry(path string, config RetryConfig) error {
	return retry("remove_all", path, config, func() error {
		return os.RemoveAll(path)
	})
}

// OpenWithRetry performs os.Open, retrying transient errors.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var file *os.File
	err := retry("open", path, config, func() error {
		var err error
		file, err = os.Open(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// StatWithRetry performs os.Stat, retrying transient errors.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := retry("stat", path, config, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
