// Package redisstream records xevent listener failures in a Redis Stream.
//
// Each failure becomes one stream entry with the fields:
//
//	dispatch_id, signal, event_type, listener_id, priority,
//	error, payload (codec bytes), codec, recorded_at (unix ns)
//
// Config keys (ConfigFromMap) / env vars (ConfigFromEnv, XEVENT_REDIS_ prefix):
//   - addr / ADDR: "host:port" (default "127.0.0.1:6379")
//   - stream / STREAM: stream name (default "xevent:failures")
//   - max_len_approx / MAX_LEN_APPROX: approximate trim length (default 100000)
//   - write_timeout / WRITE_TIMEOUT: per-XADD timeout (default 2s)
//   - buffer / BUFFER: records queued for the writer goroutine (default 1024)
//   - codec / CODEC: xevent codec name (default "json")
//   - include_escalations / INCLUDE_ESCALATIONS: also record escalations
//
// Example:
//
//	sink, err := redisstream.NewSink(redisstream.Defaults())
//	if err != nil { ... }
//	d := xevent.NewDispatcherBuilder().
//	    WithRegistry(reg).
//	    WithObserver(sink).
//	    WithObserverPool(2, 1024). // the sink itself bypasses the pool
//	    Build()
//	defer d.Close(context.Background()) // closes the sink too
package redisstream
