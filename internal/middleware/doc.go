// Package middleware provides HTTP middleware for the video optimizer.
//
// It includes:
//   - Request logging in W3C Extended Log Format, tagged with the job ID
//   - Prometheus request metrics keyed by route template
//   - gzip compression for JSON responses, bypassed for video bodies
package middleware
