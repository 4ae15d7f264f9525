package xevent

import (
	"reflect"
	"time"
)

// SignalType enumerates dispatch lifecycle signals for the Observer pattern.
type SignalType string

const (
	SignalDispatchStart      SignalType = "dispatch_start"
	SignalDispatchDone       SignalType = "dispatch_done"
	SignalListenerDone       SignalType = "listener_done"
	SignalListenerFailed     SignalType = "listener_failed"
	SignalPropagationStopped SignalType = "propagation_stopped"
	SignalEscalated          SignalType = "escalated"
	SignalErrorHandlerFailed SignalType = "error_handler_failed"
)

// Signal carries telemetry for observers.
type Signal struct {
	Type       SignalType
	DispatchID string
	EventType  reflect.Type
	ListenerID string
	Priority   int
	Duration   time.Duration
	Err        error
	// Event is the event being dispatched. Observers must not mutate it.
	Event Event

	// Internal: attached for async dispatch
	observers []Observer
}

// PoolStats returns telemetry about the observer pool.
type PoolStats struct {
	Dropped      uint64 // Signals dropped due to full buffer
	Processed    uint64 // Signals successfully processed
	ActiveEvents int    // Current queue depth
	Workers      int    // Number of dispatch goroutines
	BufferSize   int    // Channel capacity
}

// Metrics defines observable telemetry for the dispatcher.
type Metrics struct {
	Dispatched        uint64
	Invoked           uint64
	Failed            uint64
	Escalated         uint64
	Stopped           uint64
	EventsDropped     uint64
	AvgListenerTimeMs float64
}
