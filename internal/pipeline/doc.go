// Package pipeline runs one transcode job end to end: ingest the upload into
// a fresh input artifact, wait for a worker slot, run the transform, verify
// and probe the output, hand it to the caller for delivery, and release every
// artifact the job allocated exactly once.
//
// Release is deferred at job start, so it runs on every exit path including
// panics. Each job owns its own artifacts; the only shared state between jobs
// is the worker semaphore.
package pipeline
