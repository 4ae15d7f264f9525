package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xevent"
)

type signedUp struct {
	xevent.Propagation
	Email string
}

type welcomeMailer struct {
	sent []string
}

func (m *welcomeMailer) Handle(_ context.Context, e xevent.Event) error {
	m.sent = append(m.sent, e.(*signedUp).Email)
	return nil
}

func TestContainer_ResolveSingleton(t *testing.T) {
	c := NewContainer(Config{Singletons: true})
	builds := 0
	require.NoError(t, c.Register("mailer", func() (any, error) {
		builds++
		return &welcomeMailer{}, nil
	}))

	a, err := c.Resolve("mailer")
	require.NoError(t, err)
	b, err := c.Resolve("mailer")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, builds)
	assert.Equal(t, Stats{Resolved: 2, Built: 1}, c.Stats())
}

func TestContainer_ResolveTransient(t *testing.T) {
	c := NewContainer(Config{Singletons: false})
	require.NoError(t, c.Register("mailer", func() (any, error) { return &welcomeMailer{}, nil }))

	a, err := c.Resolve("mailer")
	require.NoError(t, err)
	b, err := c.Resolve("mailer")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, uint64(2), c.Stats().Built)
}

func TestContainer_Errors(t *testing.T) {
	c := NewContainer(ConfigFromMap(nil))
	boom := errors.New("boom")

	_, err := c.Resolve("ghost")
	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Equal(t, uint64(1), c.Stats().Misses)

	require.NoError(t, c.Register("broken", func() (any, error) { return nil, boom }))
	_, err = c.Resolve("broken")
	assert.ErrorIs(t, err, boom)

	assert.Error(t, c.Register("", func() (any, error) { return 1, nil }))
	assert.Error(t, c.Register("nil", nil))
	assert.Error(t, c.Provide("nil", nil))
	assert.False(t, c.Has("nil"))
	assert.True(t, c.Has("broken"))
}

func TestConfigFromMap(t *testing.T) {
	assert.True(t, ConfigFromMap(map[string]any{}).Singletons)
	assert.False(t, ConfigFromMap(map[string]any{"singletons": false}).Singletons)
}

func TestUse_WiresContainerAsResolver(t *testing.T) {
	d, c := Use(Config{Singletons: true}, WithObserverPool(1, 16))
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	mailer := &welcomeMailer{}
	require.NoError(t, c.Provide("mailer", mailer))
	require.NoError(t, c.Provide("signup", xevent.SubscriberFunc(func(b xevent.Binder) error {
		_, err := b.AddListenerService("signed_up", "mailer")
		return err
	})))

	reg := d.Registry()
	require.NoError(t, reg.DeclareEvent("signed_up", &signedUp{}))
	require.NoError(t, reg.AddSubscriber("signup"))

	_, err := d.Dispatch(context.Background(), &signedUp{Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, mailer.sent)

	var nf *xevent.SubscriberNotFoundError
	require.ErrorAs(t, reg.AddSubscriber("unknown"), &nf)
	assert.ErrorIs(t, nf, ErrServiceNotFound)
}
