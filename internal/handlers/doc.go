// Package handlers provides the HTTP handlers for the video optimizer.
//
// It includes handlers for:
//   - Video compression uploads (POST /compress/, /compress, /optimize-video)
//   - Job history and aggregate statistics
//   - Health, liveness, readiness and version probes
package handlers
