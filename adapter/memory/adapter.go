package memory

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xevent"
)

// ErrServiceNotFound is returned (wrapped) for unknown references.
var ErrServiceNotFound = errors.New("memory: service not found")

// Factory builds a service instance on demand.
type Factory func() (any, error)

// Config controls container behavior.
type Config struct {
	// Singletons caches the first instance a factory returns (default: true).
	Singletons bool
}

// ConfigFromMap reads a Config from a generic map.
func ConfigFromMap(cfg map[string]any) Config {
	c := Config{Singletons: true}
	if v, ok := cfg["singletons"].(bool); ok {
		c.Singletons = v
	}
	return c
}

// Container implements xevent.ServiceResolver with named factories held in
// memory. It stands in for an application's DI container.
type Container struct {
	cfg Config

	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]any

	metrics *containerMetrics
}

type containerMetrics struct {
	resolved atomic.Uint64
	built    atomic.Uint64
	misses   atomic.Uint64
}

// Stats summarizes container activity.
type Stats struct {
	Resolved uint64
	Built    uint64
	Misses   uint64
}

var _ xevent.ServiceResolver = (*Container)(nil)

// NewContainer creates an empty container.
func NewContainer(cfg Config) *Container {
	return &Container{
		cfg:       cfg,
		factories: make(map[string]Factory),
		instances: make(map[string]any),
		metrics:   &containerMetrics{},
	}
}

// Register binds name to a factory, replacing any earlier binding.
func (c *Container) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("memory: service name must not be empty")
	}
	if f == nil {
		return errors.New("memory: service factory must not be nil")
	}
	c.mu.Lock()
	c.factories[name] = f
	delete(c.instances, name)
	c.mu.Unlock()
	return nil
}

// Provide binds name to a ready instance.
func (c *Container) Provide(name string, instance any) error {
	if instance == nil {
		return fmt.Errorf("memory: service %q: instance must not be nil", name)
	}
	if err := c.Register(name, func() (any, error) { return instance, nil }); err != nil {
		return err
	}
	c.mu.Lock()
	c.instances[name] = instance
	c.mu.Unlock()
	return nil
}

// Resolve returns the service bound to ref.
func (c *Container) Resolve(ref string) (any, error) {
	c.mu.RLock()
	inst, cached := c.instances[ref]
	f, ok := c.factories[ref]
	c.mu.RUnlock()

	if cached {
		c.metrics.resolved.Add(1)
		return inst, nil
	}
	if !ok {
		c.metrics.misses.Add(1)
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, ref)
	}

	v, err := f()
	if err != nil {
		return nil, fmt.Errorf("memory: build %q: %w", ref, err)
	}
	c.metrics.built.Add(1)
	c.metrics.resolved.Add(1)

	if c.cfg.Singletons {
		c.mu.Lock()
		if existing, ok := c.instances[ref]; ok {
			v = existing
		} else {
			c.instances[ref] = v
		}
		c.mu.Unlock()
	}
	return v, nil
}

// Has reports whether ref is bound.
func (c *Container) Has(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[ref]
	return ok
}

// Stats returns container counters.
func (c *Container) Stats() Stats {
	return Stats{
		Resolved: c.metrics.resolved.Load(),
		Built:    c.metrics.built.Load(),
		Misses:   c.metrics.misses.Load(),
	}
}
