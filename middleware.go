package xevent

import (
	"context"
	"errors"
	"math/rand"
	"runtime/debug"
	"time"
)

// Middleware composes invocation concerns around a listener.
type Middleware func(next InvokeFunc) InvokeFunc

// RetryConfig controls retry behavior for listener invocation.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first execution.
	MaxAttempts int
	// Backoff computes the base wait before the next attempt (e.g., exponential backoff).
	Backoff func(attempt int) time.Duration
	// RetryIf, when provided, returns true if the error should be retried.
	// If nil, all errors except panics are retried (bounded by MaxAttempts).
	RetryIf func(err error) bool
	// Jitter adds up to [0, Jitter] random delay to the base backoff.
	Jitter time.Duration
}

// RetryMiddleware retries a failing listener before the failure is escalated.
// The event is passed as-is to every attempt; a listener that stopped
// propagation before failing is not retried.
func RetryMiddleware(cfg RetryConfig) Middleware {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, e Event) error {
			var lastErr error
			attempts := cfg.MaxAttempts
			if attempts < 1 {
				attempts = 1
			}
			shouldRetry := cfg.RetryIf
			if shouldRetry == nil {
				shouldRetry = func(err error) bool { return !errors.Is(err, ErrListenerPanic) }
			}
			for i := 1; i <= attempts; i++ {
				lastErr = next(ctx, e)
				if lastErr == nil {
					return nil
				}
				if ctx.Err() != nil || e.IsPropagationStopped() {
					return lastErr
				}
				if i == attempts || !shouldRetry(lastErr) {
					return lastErr
				}
				if cfg.Backoff != nil {
					wait := cfg.Backoff(i)
					if cfg.Jitter > 0 {
						wait += time.Duration(rand.Int63n(int64(cfg.Jitter)))
					}
					select {
					case <-ctx.Done():
						return lastErr
					case <-time.After(wait):
					}
				}
			}
			return lastErr
		}
	}
}

// RecoveryMiddleware converts listener panics into *PanicError.
func RecoveryMiddleware(listenerID string) Middleware {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, e Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{ListenerID: listenerID, Value: r, Stack: string(debug.Stack())}
				}
			}()
			return next(ctx, e)
		}
	}
}

// Chain composes middlewares around an invoker in order.
func Chain(h InvokeFunc, mws ...Middleware) InvokeFunc {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
