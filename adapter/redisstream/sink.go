package redisstream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

// StreamWriter is the slice of the Redis client the sink needs.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Sink is an xevent.Observer that appends listener failures to a Redis
// Stream, giving operators a dead-letter trail of what went wrong.
//
// The sink is an inline observer: the failed event is encoded on the
// dispatching goroutine, before error listeners can change it. The XADD
// itself runs on the sink's own writer goroutine, so Redis latency never
// reaches dispatch. Records are dropped when the queue is full.
type Sink struct {
	cfg    Config
	writer StreamWriter
	codec  xevent.Codec
	clock  xclock.Clock
	logger *xlog.Logger

	mu     sync.RWMutex
	queue  chan *redis.XAddArgs
	closed bool
	done   chan struct{}

	closer    func() error
	closeOnce sync.Once
	closeErr  error

	metrics *sinkMetrics
}

type sinkMetrics struct {
	written      atomic.Uint64
	writeErrors  atomic.Uint64
	encodeErrors atomic.Uint64
	dropped      atomic.Uint64
}

// Stats summarizes sink activity.
type Stats struct {
	Written      uint64
	WriteErrors  uint64
	EncodeErrors uint64
	Dropped      uint64
}

var _ xevent.InlineObserver = (*Sink)(nil)

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithSinkLogger sets the logger used for write failures.
func WithSinkLogger(l *xlog.Logger) SinkOption {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSinkClock sets the clock stamping records.
func WithSinkClock(c xclock.Clock) SinkOption {
	return func(s *Sink) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSink connects to Redis and returns a Sink owning the client.
func NewSink(cfg Config, opts ...SinkOption) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ropts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.TLS {
		ropts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.TLSServerName,
		}
	}

	client := redis.NewClient(ropts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return nil, err
	}

	s, err := NewSinkWithWriter(client, cfg, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

// NewSinkWithWriter builds a Sink on an existing writer. The caller keeps
// ownership of the writer; Close still has to be called to flush the queue.
func NewSinkWithWriter(w StreamWriter, cfg Config, opts ...SinkOption) (*Sink, error) {
	if w == nil {
		return nil, errors.New("redisstream: writer must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := xevent.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Sink{
		cfg:     cfg,
		writer:  w,
		codec:   codec,
		clock:   xclock.Default(),
		logger:  xlog.Default(),
		queue:   make(chan *redis.XAddArgs, buffer),
		done:    make(chan struct{}),
		metrics: &sinkMetrics{},
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	go s.run()
	return s, nil
}

// Inline asks the dispatcher to call OnSignal on the dispatching goroutine.
func (s *Sink) Inline() bool { return true }

// OnSignal records failure signals; every other signal is ignored.
func (s *Sink) OnSignal(sig xevent.Signal) {
	if !s.records(sig.Type) {
		return
	}
	args := s.record(sig)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- args:
	default:
		s.metrics.dropped.Add(1)
	}
}

// record builds the XADD arguments, encoding the event as it is now.
func (s *Sink) record(sig xevent.Signal) *redis.XAddArgs {
	vals := make(map[string]any, 9)
	vals[fieldDispatchID] = sig.DispatchID
	vals[fieldSignal] = string(sig.Type)
	vals[fieldEventType] = xevent.TypeName(sig.EventType)
	vals[fieldListenerID] = sig.ListenerID
	vals[fieldPriority] = sig.Priority
	vals[fieldRecordedAt] = s.clock.Now().UnixNano()
	if sig.Err != nil {
		vals[fieldError] = sig.Err.Error()
	}
	if payload := eventPayload(sig.Event); payload != nil {
		data, err := s.codec.Marshal(payload)
		if err != nil {
			s.metrics.encodeErrors.Add(1)
			s.logger.Warn().Err(err).Str("event_type", xevent.TypeName(sig.EventType)).Msg("redisstream: encode failed")
		} else {
			vals[fieldPayload] = data
			vals[fieldCodec] = s.codec.Name()
		}
	}

	args := &redis.XAddArgs{
		Stream: s.cfg.Stream,
		ID:     "*",
		Values: vals,
	}
	// Approximate trimming to keep stream bounded
	if s.cfg.MaxLenApprox > 0 {
		args.MaxLen = s.cfg.MaxLenApprox
		args.Approx = true
	}
	return args
}

func (s *Sink) run() {
	defer close(s.done)
	for args := range s.queue {
		s.write(args)
	}
}

func (s *Sink) write(args *redis.XAddArgs) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.writer.XAdd(ctx, args).Err(); err != nil {
		s.metrics.writeErrors.Add(1)
		s.logger.Warn().Err(err).Str("stream", s.cfg.Stream).Msg("redisstream: xadd failed")
		return
	}
	s.metrics.written.Add(1)
}

func (s *Sink) records(t xevent.SignalType) bool {
	switch t {
	case xevent.SignalListenerFailed, xevent.SignalErrorHandlerFailed:
		return true
	case xevent.SignalEscalated:
		return s.cfg.IncludeEscalations
	}
	return false
}

// eventPayload picks what gets encoded: the failing event, unwrapped from an
// ErrorEvent so the payload is always the domain event.
func eventPayload(e xevent.Event) any {
	if ee, ok := e.(*xevent.ErrorEvent); ok {
		return ee.Event
	}
	return e
}

// Stats returns sink counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Written:      s.metrics.written.Load(),
		WriteErrors:  s.metrics.writeErrors.Load(),
		EncodeErrors: s.metrics.encodeErrors.Load(),
		Dropped:      s.metrics.dropped.Load(),
	}
}

// Close stops recording, writes what is queued and releases the client when
// the sink owns it.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done

		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.Ping(ctx).Result()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}

	if strings.ToUpper(res) != "PONG" {
		return fmt.Errorf("unexpected redis ping result: %s", res)
	}

	return nil
}
