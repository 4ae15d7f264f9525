package xevent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xevent"
)

func TestRetryMiddleware(t *testing.T) {
	transient := errors.New("transient")

	t.Run("stops at max attempts", func(t *testing.T) {
		calls := 0
		inv := xevent.RetryMiddleware(xevent.RetryConfig{MaxAttempts: 3})(func(context.Context, xevent.Event) error {
			calls++
			return transient
		})
		err := inv(context.Background(), &userCreated{})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("honors RetryIf", func(t *testing.T) {
		calls := 0
		inv := xevent.RetryMiddleware(xevent.RetryConfig{
			MaxAttempts: 5,
			RetryIf:     func(err error) bool { return false },
		})(func(context.Context, xevent.Event) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, inv(context.Background(), &userCreated{}), transient)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry panics", func(t *testing.T) {
		calls := 0
		inv := xevent.RetryMiddleware(xevent.RetryConfig{MaxAttempts: 3})(func(context.Context, xevent.Event) error {
			calls++
			return &xevent.PanicError{ListenerID: "l", Value: "boom"}
		})
		assert.ErrorIs(t, inv(context.Background(), &userCreated{}), xevent.ErrListenerPanic)
		assert.Equal(t, 1, calls)
	})

	t.Run("does not retry a stopped event", func(t *testing.T) {
		calls := 0
		inv := xevent.RetryMiddleware(xevent.RetryConfig{MaxAttempts: 3})(func(_ context.Context, e xevent.Event) error {
			calls++
			e.StopPropagation()
			return transient
		})
		assert.ErrorIs(t, inv(context.Background(), &userCreated{}), transient)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context aborts backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		inv := xevent.RetryMiddleware(xevent.RetryConfig{
			MaxAttempts: 3,
			Backoff:     func(int) time.Duration { return time.Hour },
		})(func(context.Context, xevent.Event) error {
			calls++
			cancel()
			return transient
		})
		assert.ErrorIs(t, inv(ctx, &userCreated{}), transient)
		assert.Equal(t, 1, calls)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	inv := xevent.RecoveryMiddleware("listener:x")(func(context.Context, xevent.Event) error {
		panic(errors.New("nil map"))
	})

	err := inv(context.Background(), &userCreated{})
	require.ErrorIs(t, err, xevent.ErrListenerPanic)

	var pe *xevent.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "listener:x", pe.ListenerID)
	assert.Contains(t, pe.Stack, "goroutine")
}

func TestChain_OrdersMiddlewares(t *testing.T) {
	var trace []string
	mark := func(name string) xevent.Middleware {
		return func(next xevent.InvokeFunc) xevent.InvokeFunc {
			return func(ctx context.Context, e xevent.Event) error {
				trace = append(trace, name)
				return next(ctx, e)
			}
		}
	}

	inv := xevent.Chain(func(context.Context, xevent.Event) error {
		trace = append(trace, "listener")
		return nil
	}, mark("outer"), nil, mark("inner"))

	require.NoError(t, inv(context.Background(), &userCreated{}))
	assert.Equal(t, []string{"outer", "inner", "listener"}, trace)
}
