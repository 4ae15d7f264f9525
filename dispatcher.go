package xevent

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Dispatcher delivers events to the listeners of a Registry, one at a time,
// in priority order.
type Dispatcher struct {
	registry     *Registry
	clock        xclock.Clock
	logger       *xlog.Logger
	middlewares  []Middleware
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      *dispatchMetrics
	closeOnce    sync.Once
}

// dispatchMetrics uses lock-free atomics.
type dispatchMetrics struct {
	dispatched   atomic.Uint64
	invoked      atomic.Uint64
	failed       atomic.Uint64
	escalated    atomic.Uint64
	stopped      atomic.Uint64
	processingNs atomic.Int64
}

// Registry returns the registry the dispatcher reads listeners from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch delivers e to every matching listener and returns it.
//
// An event that is already stopped is returned untouched. Delivery ends early
// when a listener stops propagation. When a listener fails, the failure is
// wrapped in an ErrorEvent and dispatched so error listeners can react, then
// the original failure is returned. Failures while dispatching an ErrorEvent
// are not escalated again: the error the ErrorEvent carries is returned, or
// the handler's own failure when it carries none.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (Event, error) {
	if isNilEvent(e) {
		return e, ErrNilEvent
	}
	if e.IsPropagationStopped() {
		return e, nil
	}

	d.metrics.dispatched.Add(1)
	id := uuid.NewString()
	et := reflect.TypeOf(e)

	lctx := injectLogger(ctx, d.logger)
	lctx = injectClock(lctx, d.clock)
	lctx = injectDispatchID(lctx, id)

	start := d.clock.Now()
	d.notify(Signal{Type: SignalDispatchStart, DispatchID: id, EventType: et, Event: e})

	for l := range d.registry.ListenersFor(e) {
		lstart := d.clock.Now()
		err := d.invoke(lctx, l, e)
		dur := d.clock.Since(lstart)
		d.metrics.invoked.Add(1)
		d.recordProcessingTime(dur.Nanoseconds())

		if err != nil {
			d.metrics.failed.Add(1)
			d.notify(Signal{
				Type:       SignalListenerFailed,
				DispatchID: id,
				EventType:  et,
				ListenerID: l.ID,
				Priority:   l.Priority,
				Duration:   dur,
				Err:        err,
				Event:      e,
			})
			return e, d.escalate(ctx, id, e, l, err)
		}

		d.notify(Signal{
			Type:       SignalListenerDone,
			DispatchID: id,
			EventType:  et,
			ListenerID: l.ID,
			Priority:   l.Priority,
			Duration:   dur,
			Event:      e,
		})

		if e.IsPropagationStopped() {
			d.metrics.stopped.Add(1)
			d.notify(Signal{
				Type:       SignalPropagationStopped,
				DispatchID: id,
				EventType:  et,
				ListenerID: l.ID,
				Priority:   l.Priority,
				Event:      e,
			})
			break
		}
	}

	d.notify(Signal{Type: SignalDispatchDone, DispatchID: id, EventType: et, Duration: d.clock.Since(start), Event: e})
	return e, nil
}

// escalate implements the error protocol for a failure of l on e.
func (d *Dispatcher) escalate(ctx context.Context, id string, e Event, l Listener, err error) error {
	if ee, ok := e.(*ErrorEvent); ok {
		// Already handling a failure: report the secondary one, return the first.
		d.logger.Warn().
			Str("dispatch_id", id).
			Str("listener_id", l.ID).
			Str("failed_listener_id", ee.ListenerID).
			Err(err).
			Msg("xevent: error listener failed")
		d.notify(Signal{
			Type:       SignalErrorHandlerFailed,
			DispatchID: id,
			EventType:  errorEventType,
			ListenerID: l.ID,
			Priority:   l.Priority,
			Err:        err,
			Event:      e,
		})
		if ee.Err != nil {
			return ee.Err
		}
		return err
	}

	d.metrics.escalated.Add(1)
	d.notify(Signal{
		Type:       SignalEscalated,
		DispatchID: id,
		EventType:  reflect.TypeOf(e),
		ListenerID: l.ID,
		Priority:   l.Priority,
		Err:        err,
		Event:      e,
	})
	// The nested dispatch can only fail with err itself; it is not reported twice.
	_, _ = d.Dispatch(ctx, NewErrorEvent(e, l.ID, err))
	return err
}

// invoke runs one listener behind recovery and the configured middlewares.
func (d *Dispatcher) invoke(ctx context.Context, l Listener, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{ListenerID: l.ID, Value: r}
		}
	}()
	base := RecoveryMiddleware(l.ID)(l.Invoke)
	return Chain(base, d.middlewares...)(ctx, e)
}

func isNilEvent(e Event) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// GetMetrics returns current dispatcher metrics.
func (d *Dispatcher) GetMetrics() Metrics {
	m := Metrics{
		Dispatched:        d.metrics.dispatched.Load(),
		Invoked:           d.metrics.invoked.Load(),
		Failed:            d.metrics.failed.Load(),
		Escalated:         d.metrics.escalated.Load(),
		Stopped:           d.metrics.stopped.Load(),
		AvgListenerTimeMs: float64(d.metrics.processingNs.Load()) / 1e6,
	}
	if d.observerPool != nil {
		m.EventsDropped = d.observerPool.Stats().Dropped
	}
	return m
}

const (
	defaultCloseTimeout = 5 * time.Second
	// minCloseTimeout gives an already drained pool time to stop its workers
	// when ctx carries an expired deadline.
	minCloseTimeout = 100 * time.Millisecond
)

// Close drains the observer pool and closes observers that hold resources.
// Idempotent.
func (d *Dispatcher) Close(ctx context.Context) error {
	var result *multierror.Error

	d.closeOnce.Do(func() {
		if d.observerPool != nil {
			timeout := defaultCloseTimeout
			if dl, ok := ctx.Deadline(); ok {
				timeout = max(time.Until(dl), minCloseTimeout)
			}
			if err := d.observerPool.Close(timeout); err != nil {
				d.logger.Warn().Err(err).Msg("xevent: observer pool shutdown timeout")
				result = multierror.Append(result, err)
			}
		}

		d.observersMu.RLock()
		observers := make([]Observer, len(d.observers))
		copy(observers, d.observers)
		d.observersMu.RUnlock()

		for _, o := range observers {
			c, ok := o.(io.Closer)
			if !ok {
				continue
			}
			if err := c.Close(); err != nil {
				d.logger.Error().Err(err).Msg("xevent: observer close failed")
				result = multierror.Append(result, err)
			}
		}
	})

	return result.ErrorOrNil()
}

// AddObserver registers an observer (thread-safe).
func (d *Dispatcher) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	d.observersMu.Lock()
	d.observers = append(d.observers, obs)
	d.observersMu.Unlock()
}

// RemoveObserver removes an observer. Observers of uncomparable types (such
// as ObserverFunc) cannot be removed.
func (d *Dispatcher) RemoveObserver(obs Observer) {
	if obs == nil || !reflect.TypeOf(obs).Comparable() {
		return
	}
	d.observersMu.Lock()
	defer d.observersMu.Unlock()

	for i, o := range d.observers {
		if o == obs {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			break
		}
	}
}

// notify hands a signal to the observers. Inline observers, and all of them
// when no pool is configured, run here; the rest are queued on the pool.
func (d *Dispatcher) notify(s Signal) {
	d.observersMu.RLock()
	if len(d.observers) == 0 {
		d.observersMu.RUnlock()
		return
	}
	observers := make([]Observer, len(d.observers))
	copy(observers, d.observers)
	d.observersMu.RUnlock()

	var queued []Observer
	for _, o := range observers {
		if d.observerPool != nil && !isInline(o) {
			queued = append(queued, o)
			continue
		}
		if p := notifyObserver(o, s); p != nil {
			d.logger.Error().
				Str("signal", string(s.Type)).
				Str("panic", fmt.Sprint(p)).
				Msg("xevent: observer panicked")
		}
	}
	if len(queued) > 0 {
		d.observerPool.Notify(s, queued)
	}
}

// recordProcessingTime records listener time using an exponential moving average.
func (d *Dispatcher) recordProcessingTime(ns int64) {
	const alpha = 0.2
	current := d.metrics.processingNs.Load()
	if current == 0 {
		d.metrics.processingNs.Store(ns)
		return
	}
	d.metrics.processingNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
