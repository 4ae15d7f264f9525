package xevent

import "fmt"

// ErrorEvent is dispatched when a listener fails. Listeners registered for
// *ErrorEvent can observe the failure; the original error is still returned
// to the caller of Dispatch.
type ErrorEvent struct {
	Propagation

	// Event is the event whose delivery failed.
	Event Event
	// ListenerID identifies the listener that failed.
	ListenerID string
	// Err is the failure returned (or panicked) by the listener.
	Err error
}

// NewErrorEvent wraps a listener failure.
func NewErrorEvent(e Event, listenerID string, err error) *ErrorEvent {
	return &ErrorEvent{Event: e, ListenerID: listenerID, Err: err}
}

// Unwrap returns the captured failure.
func (e *ErrorEvent) Unwrap() error { return e.Err }

func (e *ErrorEvent) String() string {
	return fmt.Sprintf("listener %s failed on %T: %v", e.ListenerID, e.Event, e.Err)
}
