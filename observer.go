package xevent

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(s Signal)

func (f ObserverFunc) OnSignal(s Signal) { f(s) }

// notifyObserver calls o and returns the value of a recovered panic, if any.
func notifyObserver(o Observer, s Signal) (panicked any) {
	defer func() { panicked = recover() }()
	o.OnSignal(s)
	return nil
}

func isInline(o Observer) bool {
	io, ok := o.(InlineObserver)
	return ok && io.Inline()
}

// LoggingObserver is an Adapter that emits Signals via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnSignal(s Signal) {
	if o.Logger == nil {
		return
	}
	lg := o.Logger.With(
		xlog.Str("type", string(s.Type)),
		xlog.Str("dispatch_id", s.DispatchID),
		xlog.Str("event_type", TypeName(s.EventType)),
		xlog.Str("listener_id", s.ListenerID),
	)
	switch s.Type {
	case SignalListenerFailed, SignalErrorHandlerFailed:
		lg.Warn().Err(s.Err).Msg("xevent signal")
	default:
		if s.Duration > 0 {
			lg = lg.With(xlog.Dur("duration", s.Duration))
		}
		lg.Debug().Msg("xevent signal")
	}
}
