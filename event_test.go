package xevent_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xevent"
)

func TestPropagation_IsOneWayLatch(t *testing.T) {
	ev := &userCreated{}
	assert.False(t, ev.IsPropagationStopped())

	ev.StopPropagation()
	assert.True(t, ev.IsPropagationStopped())
	ev.StopPropagation()
	assert.True(t, ev.IsPropagationStopped())
}

func TestPropagation_ConcurrentStop(t *testing.T) {
	ev := &userCreated{}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev.StopPropagation()
			_ = ev.IsPropagationStopped()
		}()
	}
	wg.Wait()
	assert.True(t, ev.IsPropagationStopped())
}

func TestErrorEvent(t *testing.T) {
	cause := errors.New("db down")
	src := &userCreated{Name: "ada"}
	ee := xevent.NewErrorEvent(src, "listener:1", cause)

	assert.Same(t, src, ee.Event)
	assert.Equal(t, "listener:1", ee.ListenerID)
	assert.ErrorIs(t, ee.Unwrap(), cause)
	assert.False(t, ee.IsPropagationStopped())
	assert.Contains(t, ee.String(), "listener:1")
	assert.Contains(t, ee.String(), "db down")

	var _ xevent.Event = ee
}

func TestTypeOfAndTypeName(t *testing.T) {
	assert.Equal(t, "*xevent_test.userCreated", xevent.TypeName(xevent.TypeOf[*userCreated]()))
	assert.Equal(t, "xevent.Event", xevent.TypeName(xevent.TypeOf[xevent.Event]()))
	assert.Equal(t, "", xevent.TypeName(nil))
}

func TestDeriveID(t *testing.T) {
	a := xevent.DeriveID("pkg.fn@file.go:10")
	assert.Equal(t, a, xevent.DeriveID("pkg.fn@file.go:10"))
	assert.NotEqual(t, a, xevent.DeriveID("pkg.fn@file.go:11"))
	assert.True(t, strings.HasPrefix(a, "listener:"))
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&xevent.ListenerAlreadyExistsError{EventType: xevent.TypeOf[*userCreated](), Priority: 3, ID: "a"}, `listener "a" already registered`},
		{&xevent.ListenerNotFoundError{ID: "a"}, `listener "a" not found`},
		{&xevent.EventNotRegisteredError{Name: "user.created"}, `"user.created" is not registered`},
		{&xevent.EventMustImplementEventTypeError{Type: xevent.TypeOf[notAnEvent]()}, "does not implement xevent.Event"},
		{&xevent.MissingEventParameterError{Listener: "fn"}, "takes no event parameter"},
		{&xevent.MissingParameterTypeError{Listener: "fn"}, "untyped event parameter"},
		{&xevent.SubscriberAlreadyRegisteredError{ID: "s"}, `subscriber "s" already registered`},
		{&xevent.SubscriberNotFoundError{ID: "s"}, `subscriber "s" not found`},
		{&xevent.PanicError{ListenerID: "l", Value: "x"}, "listener l panicked: x"},
	}
	for _, tt := range tests {
		assert.Contains(t, tt.err.Error(), tt.want)
	}

	wrapped := &xevent.ListenerNotFoundError{ID: "svc", Err: xevent.ErrNoResolver}
	assert.ErrorIs(t, wrapped, xevent.ErrNoResolver)
}

func TestCodecRegistry(t *testing.T) {
	c, err := xevent.NewCodec("json")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	b, err := c.Marshal(&userCreated{Name: "ada"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Name":"ada"}`, string(b))

	var back userCreated
	require.NoError(t, c.Unmarshal(b, &back))
	assert.Equal(t, "ada", back.Name)

	_, err = xevent.NewCodec("msgpack")
	assert.ErrorIs(t, err, xevent.ErrUnknownCodec)

	require.Error(t, xevent.RegisterCodec("", func() xevent.Codec { return xevent.JSONCodec{} }))
	require.Error(t, xevent.RegisterCodec("alt", nil))
	require.NoError(t, xevent.RegisterCodec("alt-json", func() xevent.Codec { return xevent.JSONCodec{} }))
	_, err = xevent.NewCodec("alt-json")
	assert.NoError(t, err)
	assert.Contains(t, xevent.CodecNames(), "alt-json")
}
