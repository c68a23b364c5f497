// Package artifact allocates and releases the temporary files that carry one
// transcode job's input and output.
//
// Every artifact is created with exclusive-create semantics under a
// UUID-derived name, so concurrent requests never predict or collide on a
// path. An artifact moves through three states:
//
//	created -> in_use -> released
//
// Release is idempotent and never returns an error: a failed removal is a
// cleanup warning (logged and counted) because it must not mask the outcome of
// the request that owned the file. Once released, an artifact refuses to be
// opened again.
//
// A [Scope] is a per-job directory for transforms that need both artifacts
// co-located (for example a container with a single bind mount). A [Set]
// gathers everything a job allocated and releases it from a single deferred
// call, so cleanup runs on every exit path.
package artifact
