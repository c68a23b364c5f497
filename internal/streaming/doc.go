/*
Package streaming provides timeout-protected delivery of output files over HTTP.

Slow or vanished clients must not pin a finished job's output artifact on
disk forever. The package wraps http.ResponseWriter with per-write and idle
timeouts so that a stalled download fails fast and the job's deferred cleanup
can run.

# Usage

	f, err := output.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	n, err := streaming.Stream(r.Context(), w, f, streaming.DefaultTimeoutWriterConfig())
	if streaming.IsClientError(err) {
		// the peer went away; nothing more to send
	}

# Errors

  - ErrClientGone: the request context was canceled (client disconnected)
  - ErrWriteTimeout: a write blocked longer than WriteTimeout, the stream was
    idle longer than IdleTimeout, or MaxDuration elapsed
  - ErrStreamCanceled: the writer was closed

Writes larger than ChunkSize are split and flushed chunk by chunk.
*/
package streaming
