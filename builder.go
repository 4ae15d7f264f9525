package xevent

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// DispatcherBuilder constructs Dispatcher instances (Builder pattern).
type DispatcherBuilder struct {
	registry    *Registry
	middlewares []Middleware
	observers   []Observer
	logger      *xlog.Logger
	clock       xclock.Clock

	poolWorkers int
	poolBuffer  int
	usePool     bool
}

// NewDispatcherBuilder returns a new builder with sensible defaults.
func NewDispatcherBuilder() *DispatcherBuilder {
	return &DispatcherBuilder{}
}

// WithRegistry binds the dispatcher to r. Without it Build creates an empty one.
func (db *DispatcherBuilder) WithRegistry(r *Registry) *DispatcherBuilder {
	db.registry = r
	return db
}

func (db *DispatcherBuilder) WithMiddleware(mw ...Middleware) *DispatcherBuilder {
	if len(mw) == 0 {
		return db
	}
	db.middlewares = append(db.middlewares, mw...)
	return db
}

func (db *DispatcherBuilder) WithObserver(obs ...Observer) *DispatcherBuilder {
	for _, o := range obs {
		if o != nil {
			db.observers = append(db.observers, o)
		}
	}
	return db
}

// WithObserverPool delivers signals asynchronously through an ObserverPool.
func (db *DispatcherBuilder) WithObserverPool(workers, bufferSize int) *DispatcherBuilder {
	db.usePool = true
	db.poolWorkers = workers
	db.poolBuffer = bufferSize
	return db
}

func (db *DispatcherBuilder) WithLogger(l *xlog.Logger) *DispatcherBuilder {
	db.logger = l
	return db
}

func (db *DispatcherBuilder) WithClock(c xclock.Clock) *DispatcherBuilder {
	db.clock = c
	return db
}

func (db *DispatcherBuilder) Build() *Dispatcher {
	lg := db.logger
	if lg == nil {
		lg = xlog.Default()
	}
	clk := db.clock
	if clk == nil {
		clk = xclock.Default()
	}
	reg := db.registry
	if reg == nil {
		reg = NewRegistry(WithRegistryLogger(lg))
	}

	d := &Dispatcher{
		registry:    reg,
		clock:       clk,
		logger:      lg,
		middlewares: db.middlewares,
		metrics:     &dispatchMetrics{},
	}
	if db.usePool {
		d.observerPool = NewObserverPool(context.Background(), db.poolWorkers, db.poolBuffer)
	}

	// Attach logging observer first unless one was supplied.
	hasLoggingObserver := false
	for _, o := range db.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		d.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range db.observers {
		d.AddObserver(o)
	}

	return d
}

// New constructs a Dispatcher via Builder and returns a close func for convenience.
func New(init func(b *DispatcherBuilder)) (*Dispatcher, func() error) {
	b := NewDispatcherBuilder()
	if init != nil {
		init(b)
	}
	d := b.Build()
	closeFn := func() error { return d.Close(context.Background()) }
	return d, closeFn
}
