package xevent

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrNilEvent                    = errors.New("xevent: nil event")
	ErrNilListener                 = errors.New("xevent: nil listener")
	ErrNilSubscriber               = errors.New("xevent: nil subscriber")
	ErrNoResolver                  = errors.New("xevent: no service resolver configured")
	ErrSubscriberRunning           = errors.New("xevent: subscriber batch still running")
	ErrListenerPanic               = errors.New("xevent: listener panicked")
	ErrObserverPoolShutdownTimeout = errors.New("xevent: observer pool shutdown timeout")
)

// ListenerAlreadyExistsError reports a duplicate (event type, priority, id).
type ListenerAlreadyExistsError struct {
	EventType reflect.Type
	Priority  int
	ID        string
}

func (e *ListenerAlreadyExistsError) Error() string {
	return fmt.Sprintf("xevent: listener %q already registered for %s at priority %d", e.ID, TypeName(e.EventType), e.Priority)
}

// ListenerNotFoundError reports an unknown listener id or an unresolvable
// listener service reference.
type ListenerNotFoundError struct {
	ID  string
	Err error
}

func (e *ListenerNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xevent: listener %q not found: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("xevent: listener %q not found", e.ID)
}

func (e *ListenerNotFoundError) Unwrap() error { return e.Err }

// ListenerMissingInvokeError reports a resolved service that cannot be called.
type ListenerMissingInvokeError struct {
	Ref  string
	Type reflect.Type
}

func (e *ListenerMissingInvokeError) Error() string {
	return fmt.Sprintf("xevent: service %q (%s) is neither an EventHandler nor a listener func", e.Ref, TypeName(e.Type))
}

// EventNotRegisteredError reports an event name unknown to the catalog.
type EventNotRegisteredError struct {
	Name string
}

func (e *EventNotRegisteredError) Error() string {
	return fmt.Sprintf("xevent: event type %q is not registered", e.Name)
}

// EventMustImplementEventTypeError reports a type lacking the Event methods.
type EventMustImplementEventTypeError struct {
	Type reflect.Type
}

func (e *EventMustImplementEventTypeError) Error() string {
	return fmt.Sprintf("xevent: %s does not implement xevent.Event", TypeName(e.Type))
}

// MissingEventParameterError reports a listener func without an event parameter.
type MissingEventParameterError struct {
	Listener string
}

func (e *MissingEventParameterError) Error() string {
	return fmt.Sprintf("xevent: listener %s takes no event parameter", e.Listener)
}

// MissingParameterTypeError reports an untyped (empty interface) event
// parameter with no explicit event type to fall back on.
type MissingParameterTypeError struct {
	Listener string
}

func (e *MissingParameterTypeError) Error() string {
	return fmt.Sprintf("xevent: listener %s has an untyped event parameter; use ForEvents", e.Listener)
}

// EventTypeResolutionError reports a listener whose event type cannot be
// derived from its signature.
type EventTypeResolutionError struct {
	Listener string
	Reason   string
}

func (e *EventTypeResolutionError) Error() string {
	return fmt.Sprintf("xevent: cannot resolve event type of %s: %s", e.Listener, e.Reason)
}

// SubscriberAlreadyRegisteredError reports a subscriber that already ran.
type SubscriberAlreadyRegisteredError struct {
	ID string
}

func (e *SubscriberAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("xevent: subscriber %q already registered", e.ID)
}

// SubscriberNotFoundError reports an unknown subscriber id.
type SubscriberNotFoundError struct {
	ID  string
	Err error
}

func (e *SubscriberNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xevent: subscriber %q not found: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("xevent: subscriber %q not found", e.ID)
}

func (e *SubscriberNotFoundError) Unwrap() error { return e.Err }

// SubscriberTypeError reports a resolved service that is not a Subscriber.
type SubscriberTypeError struct {
	ID   string
	Type reflect.Type
}

func (e *SubscriberTypeError) Error() string {
	return fmt.Sprintf("xevent: service %q (%s) does not implement xevent.Subscriber", e.ID, TypeName(e.Type))
}

// PanicError carries a recovered listener panic.
type PanicError struct {
	ListenerID string
	Value      any
	Stack      string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("xevent: listener %s panicked: %v", e.ListenerID, e.Value)
}

// Is lets errors.Is match ErrListenerPanic.
func (e *PanicError) Is(target error) bool { return target == ErrListenerPanic }
