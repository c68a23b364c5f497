// Package transcoder runs the external video transform that shrinks an
// uploaded file.
//
// It supports:
//   - Quality reduction by CRF (constant rate factor)
//   - Resolution reduction by a scale factor in (0, 1]
//   - Running ffmpeg as a local binary or inside a Docker container
//   - Output metadata extraction via ffprobe (resolution, duration, codec)
//
// Arguments are always passed as a list and never through a shell. Parameters
// are validated before any process is spawned. Each child runs in its own
// process group so that cancellation and shutdown take its children with it.
package transcoder
