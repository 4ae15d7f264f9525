package xevent

import (
	"reflect"
	"sync/atomic"
)

// Event is anything that can travel through a Dispatcher.
type Event interface {
	IsPropagationStopped() bool
	StopPropagation()
}

// Propagation is the embeddable Event implementation. The flag is a one-way
// latch: once stopped, an event stays stopped.
type Propagation struct {
	stopped atomic.Bool
}

// IsPropagationStopped reports whether a listener asked to halt delivery.
func (p *Propagation) IsPropagationStopped() bool { return p.stopped.Load() }

// StopPropagation halts delivery to the remaining listeners.
func (p *Propagation) StopPropagation() { p.stopped.Store(true) }

var eventType = reflect.TypeOf((*Event)(nil)).Elem()

// TypeOf returns the reflect.Type of E, including interface types.
func TypeOf[E any]() reflect.Type {
	return reflect.TypeOf((*E)(nil)).Elem()
}

// TypeName is the catalog name used for a type when none was declared.
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	return t.String()
}
