package redisstream

// Field constants (avoid typos/allocs)
const (
	fieldDispatchID = "dispatch_id"
	fieldSignal     = "signal"
	fieldEventType  = "event_type"
	fieldListenerID = "listener_id"
	fieldPriority   = "priority"
	fieldError      = "error"
	fieldPayload    = "payload" // raw codec bytes
	fieldCodec      = "codec"
	fieldRecordedAt = "recorded_at" // int64 ns
)

// defaultBuffer is the writer queue size when Config.Buffer is unset.
const defaultBuffer = 1024
