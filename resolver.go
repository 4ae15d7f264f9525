package xevent

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

// InvokeFunc is the normalized form every listener is adapted to.
type InvokeFunc func(ctx context.Context, e Event) error

// EventHandler is the invocation entrypoint for listener services and
// struct-based listeners.
type EventHandler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc is an Adapter that lets a plain function satisfy EventHandler.
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Resolution is what a TypeResolver derives from a listener.
type Resolution struct {
	// Types are the event types the listener is stored under.
	Types []reflect.Type
	// Invoke calls the listener.
	Invoke InvokeFunc
	// Source is a stable description of the listener body, used to derive ids.
	Source string
}

// TypeResolver is the Strategy that turns a listener into event types and a
// callable. explicit carries types the caller named with ForEvents.
type TypeResolver interface {
	Resolve(listener any, explicit []reflect.Type) (Resolution, error)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ReflectResolver infers the event type from the listener's single event
// parameter. Accepted shapes:
//
//	func(E)
//	func(E) error
//	func(context.Context, E)
//	func(context.Context, E) error
//	EventHandler (parameter type Event)
//
// A parameter of interface type matches every event implementing it, which
// covers intersections (an interface embedding several interfaces). Unions
// are expressed with explicit types that are all assignable to the parameter.
type ReflectResolver struct{}

var _ TypeResolver = ReflectResolver{}

func (ReflectResolver) Resolve(listener any, explicit []reflect.Type) (Resolution, error) {
	if listener == nil {
		return Resolution{}, ErrNilListener
	}

	if h, ok := listener.(EventHandler); ok {
		types, err := eventTypesFor(TypeName(reflect.TypeOf(listener)), eventType, explicit)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{
			Types:  types,
			Invoke: h.Handle,
			Source: handlerSource(listener),
		}, nil
	}

	rv := reflect.ValueOf(listener)
	ft := rv.Type()
	if ft.Kind() != reflect.Func {
		return Resolution{}, &EventTypeResolutionError{
			Listener: TypeName(ft),
			Reason:   "listener must be a func or an EventHandler",
		}
	}
	if rv.IsNil() {
		return Resolution{}, ErrNilListener
	}

	src := funcSource(rv)
	if ft.IsVariadic() {
		return Resolution{}, &EventTypeResolutionError{Listener: src, Reason: "variadic listeners are not supported"}
	}

	withCtx := ft.NumIn() > 0 && ft.In(0) == contextType
	params := ft.NumIn()
	if withCtx {
		params--
	}
	switch {
	case params == 0:
		return Resolution{}, &MissingEventParameterError{Listener: src}
	case params > 1:
		return Resolution{}, &EventTypeResolutionError{
			Listener: src,
			Reason:   fmt.Sprintf("expected exactly one event parameter, got %d", params),
		}
	}
	switch {
	case ft.NumOut() == 0:
	case ft.NumOut() == 1 && ft.Out(0) == errorType:
	default:
		return Resolution{}, &EventTypeResolutionError{Listener: src, Reason: "listener may only return error"}
	}

	pt := ft.In(ft.NumIn() - 1)
	types, err := eventTypesFor(src, pt, explicit)
	if err != nil {
		return Resolution{}, err
	}

	return Resolution{
		Types:  types,
		Invoke: funcInvoker(rv, pt, withCtx),
		Source: src,
	}, nil
}

// eventTypesFor validates explicit types against the parameter type, or falls
// back to the parameter type itself.
func eventTypesFor(src string, param reflect.Type, explicit []reflect.Type) ([]reflect.Type, error) {
	if len(explicit) == 0 {
		if param.Kind() == reflect.Interface && param.NumMethod() == 0 {
			return nil, &MissingParameterTypeError{Listener: src}
		}
		if err := checkEventType(param); err != nil {
			return nil, err
		}
		return []reflect.Type{param}, nil
	}

	types := make([]reflect.Type, 0, len(explicit))
	seen := make(map[reflect.Type]struct{}, len(explicit))
	for _, t := range explicit {
		if t == nil {
			return nil, &EventTypeResolutionError{Listener: src, Reason: "nil event type"}
		}
		if !t.AssignableTo(param) {
			return nil, &EventTypeResolutionError{
				Listener: src,
				Reason:   fmt.Sprintf("%s is not assignable to parameter %s", TypeName(t), TypeName(param)),
			}
		}
		if err := checkEventType(t); err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	return types, nil
}

// checkEventType rejects concrete types that can never be dispatched.
// Interfaces are accepted: a dispatched event may implement both.
func checkEventType(t reflect.Type) error {
	if t.Kind() == reflect.Interface {
		return nil
	}
	if !t.Implements(eventType) {
		return &EventMustImplementEventTypeError{Type: t}
	}
	return nil
}

func funcInvoker(rv reflect.Value, param reflect.Type, withCtx bool) InvokeFunc {
	switch fn := rv.Interface().(type) {
	case func(context.Context, Event) error:
		return fn
	case func(Event) error:
		return func(_ context.Context, e Event) error { return fn(e) }
	}

	returnsErr := rv.Type().NumOut() == 1
	return func(ctx context.Context, e Event) error {
		ev := reflect.ValueOf(e)
		if !ev.Type().AssignableTo(param) {
			return fmt.Errorf("xevent: %T cannot be passed as %s", e, TypeName(param))
		}
		var out []reflect.Value
		if withCtx {
			out = rv.Call([]reflect.Value{reflect.ValueOf(&ctx).Elem(), ev})
		} else {
			out = rv.Call([]reflect.Value{ev})
		}
		if returnsErr && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
}

func funcSource(rv reflect.Value) string {
	fn := runtime.FuncForPC(rv.Pointer())
	if fn == nil {
		return TypeName(rv.Type())
	}
	file, line := fn.FileLine(fn.Entry())
	return fmt.Sprintf("%s@%s:%d", fn.Name(), file, line)
}

func handlerSource(h any) string {
	return "handler:" + TypeName(reflect.TypeOf(h))
}
