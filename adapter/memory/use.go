package memory

import (
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

// Use builds a Dispatcher whose registry resolves listener and subscriber
// services from the returned Container.
//
// Example:
//
//	d, c := memory.Use(memory.Config{Singletons: true},
//	    memory.WithLogger(logger),
//	    memory.WithObserver(observer),
//	)
//	_ = c.Provide("audit", auditListener)
//	_, _ = d.Registry().AddListenerService("*app.OrderPlaced", "audit")
func Use(cfg Config, opts ...Option) (*xevent.Dispatcher, *Container) {
	c := NewContainer(cfg)
	u := &useConfig{builder: xevent.NewDispatcherBuilder()}
	for _, o := range opts {
		if o != nil {
			o(u)
		}
	}

	regOpts := append([]xevent.RegistryOption{xevent.WithResolver(c)}, u.registryOpts...)
	u.builder.WithRegistry(xevent.NewRegistry(regOpts...))
	return u.builder.Build(), c
}

type useConfig struct {
	builder      *xevent.DispatcherBuilder
	registryOpts []xevent.RegistryOption
}

// Option configures the Dispatcher built by Use.
type Option func(*useConfig)

// WithLogger injects a custom xlog logger into the dispatcher and registry.
func WithLogger(l *xlog.Logger) Option {
	return func(u *useConfig) {
		u.builder.WithLogger(l)
		u.registryOpts = append(u.registryOpts, xevent.WithRegistryLogger(l))
	}
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(u *useConfig) { u.builder.WithClock(c) }
}

// WithMiddleware adds invocation middlewares (retry, etc).
func WithMiddleware(mw ...xevent.Middleware) Option {
	return func(u *useConfig) { u.builder.WithMiddleware(mw...) }
}

// WithObserver attaches observers for lifecycle signals.
func WithObserver(obs ...xevent.Observer) Option {
	return func(u *useConfig) { u.builder.WithObserver(obs...) }
}

// WithObserverPool configures async observer delivery.
func WithObserverPool(workers, bufferSize int) Option {
	return func(u *useConfig) { u.builder.WithObserverPool(workers, bufferSize) }
}
