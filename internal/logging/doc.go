// Package logging provides a small leveled logging interface for the
// video optimizer service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (argument lists, artifact paths)
//   - INFO: Job lifecycle and startup messages
//   - WARN: Cleanup warnings and recoverable misconfiguration
//   - ERROR: Failed jobs and tool diagnostics
//   - FATAL: Startup errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. [ForJob] returns a logger that tags each line with
// the transcode job ID.
package logging
