package xevent

import (
	"context"
	"iter"
)

// ServiceResolver resolves listener and subscriber references lazily, the way
// a DI container would. See adapter/memory for an in-memory implementation.
type ServiceResolver interface {
	Resolve(ref string) (any, error)
}

// Binder is the registration surface handed to subscribers.
type Binder interface {
	AddListener(listener any, opts ...ListenerOption) (string, error)
	AddListenerService(eventName, ref string, opts ...ListenerOption) (string, error)
}

// Subscriber registers a batch of listeners in one call.
type Subscriber interface {
	Subscribe(b Binder) error
}

// SubscriberFunc is an Adapter that lets a plain function satisfy Subscriber.
type SubscriberFunc func(b Binder) error

func (f SubscriberFunc) Subscribe(b Binder) error { return f(b) }

// ListenerProvider yields the listeners matching an event, in call order.
type ListenerProvider interface {
	ListenersFor(e Event) iter.Seq[Listener]
}

// Observer receives dispatch lifecycle signals. Implementations should be non-blocking.
// Behind an ObserverPool, OnSignal runs on a worker goroutine while listeners
// may still be mutating Signal.Event.
type Observer interface {
	OnSignal(s Signal)
}

// InlineObserver is an Observer that reads Signal.Event. When Inline reports
// true it is called on the dispatching goroutine even if an ObserverPool is
// configured, so it sees the event before the next listener runs.
type InlineObserver interface {
	Observer
	Inline() bool
}

// API represents the complete dispatcher surface for extensibility.
type API interface {
	Dispatch(ctx context.Context, e Event) (Event, error)
	Registry() *Registry
	GetMetrics() Metrics
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	Close(ctx context.Context) error
}

var (
	_ API              = (*Dispatcher)(nil)
	_ Binder           = (*Registry)(nil)
	_ ListenerProvider = (*Registry)(nil)
)
