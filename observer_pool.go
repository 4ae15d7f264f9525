package xevent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool delivers signals to observers asynchronously so slow observers
// (a Redis sink, say) never block dispatch. Signals are dropped when the
// buffer is full.
type ObserverPool struct {
	signalCh  chan *Signal
	workers   int
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool creates a pool for async observer notification.
// workers: number of concurrent observer goroutines (default 4)
// bufferSize: capacity of the signal channel (default 1000)
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}

	poolCtx, cancel := context.WithCancel(ctx)
	op := &ObserverPool{
		signalCh: make(chan *Signal, bufferSize),
		workers:  workers,
		ctx:      poolCtx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		op.wg.Add(1)
		go op.worker()
	}

	return op
}

// Notify queues a signal. Non-blocking: drops the signal if the buffer is full
// or the pool is closed.
func (op *ObserverPool) Notify(s Signal, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}

	s.observers = make([]Observer, len(observers))
	copy(s.observers, observers)

	select {
	case op.signalCh <- &s:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) worker() {
	defer op.wg.Done()
	for {
		select {
		case <-op.ctx.Done():
			// Drain remaining signals before exiting
			for {
				select {
				case s := <-op.signalCh:
					if s != nil {
						op.deliver(s)
						op.processed.Add(1)
					}
				default:
					return
				}
			}
		case s := <-op.signalCh:
			if s != nil {
				op.deliver(s)
				op.processed.Add(1)
			}
		}
	}
}

// deliver calls all observers for a single signal.
// Observer panics are swallowed so a worker never dies.
func (op *ObserverPool) deliver(s *Signal) {
	for _, obs := range s.observers {
		if obs == nil {
			continue
		}
		_ = notifyObserver(obs, *s)
	}
}

// Close stops the workers after draining queued signals.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}

	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.signalCh),
		Workers:      op.workers,
		BufferSize:   cap(op.signalCh),
	}
}
