package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

// Option configures the xevent.Dispatcher construction when calling Use.
type Option func(*xevent.DispatcherBuilder)

// WithRegistry binds the dispatcher to an existing registry.
func WithRegistry(r *xevent.Registry) Option {
	return func(b *xevent.DispatcherBuilder) { b.WithRegistry(r) }
}

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *xevent.DispatcherBuilder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xevent.DispatcherBuilder) { b.WithClock(c) }
}

// WithMiddleware adds invocation middlewares.
func WithMiddleware(mw ...xevent.Middleware) Option {
	return func(b *xevent.DispatcherBuilder) { b.WithMiddleware(mw...) }
}

// WithObserver attaches further observers.
func WithObserver(obs ...xevent.Observer) Option {
	return func(b *xevent.DispatcherBuilder) { b.WithObserver(obs...) }
}

// Use builds a Dispatcher that records listener failures to Redis Streams.
// The sink encodes failures on the dispatching goroutine and writes them from
// its own; other observers go through an observer pool. The sink is closed
// with the dispatcher. Panics if Redis is unreachable.
func Use(cfg Config, opts ...Option) *xevent.Dispatcher {
	sink, err := NewSink(cfg)
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}

	bb := xevent.NewDispatcherBuilder().
		WithObserver(sink).
		WithObserverPool(2, 1024)
	for _, o := range opts {
		if o != nil {
			o(bb)
		}
	}
	return bb.Build()
}
