package xevent

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/trickstertwo/xlog"
)

// Listener is a registered listener as seen by a Dispatcher.
type Listener struct {
	ID        string
	Priority  int
	EventType reflect.Type

	invoke InvokeFunc
}

// Invoke calls the listener with e.
func (l Listener) Invoke(ctx context.Context, e Event) error {
	return l.invoke(ctx, e)
}

// registration is one AddListener call. A union registration is stored under
// several types but shares one registration, so it is yielded once.
type registration struct {
	id       string
	priority int
	seq      uint64
	types    []reflect.Type
	invoke   InvokeFunc
	service  string
	removed  bool
}

// bucket holds registrations of one priority in insertion order.
type bucket struct {
	priority int
	regs     []*registration
}

// Registry binds listeners to event types. It is safe for concurrent use;
// ListenersFor works on a snapshot so listeners may register or remove
// listeners while an event is being dispatched.
type Registry struct {
	mu sync.RWMutex

	resolver     ServiceResolver
	typeResolver TypeResolver
	logger       *xlog.Logger

	// buckets per event type, sorted by priority descending.
	buckets map[reflect.Type][]*bucket
	// order keeps event types in first-registration order.
	order       []reflect.Type
	catalog     map[string]reflect.Type
	subscribers map[string][]*registration
	seq         uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithResolver sets the ServiceResolver used by AddListenerService and AddSubscriber.
func WithResolver(sr ServiceResolver) RegistryOption {
	return func(r *Registry) { r.resolver = sr }
}

// WithTypeResolver replaces the reflection-based TypeResolver.
func WithTypeResolver(tr TypeResolver) RegistryOption {
	return func(r *Registry) {
		if tr != nil {
			r.typeResolver = tr
		}
	}
}

// WithRegistryLogger sets the logger used for registration diagnostics.
func WithRegistryLogger(l *xlog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		typeResolver: ReflectResolver{},
		logger:       xlog.Default(),
		buckets:      make(map[reflect.Type][]*bucket),
		catalog:      make(map[string]reflect.Type),
		subscribers:  make(map[string][]*registration),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	r.catalog[TypeName(errorEventType)] = errorEventType
	return r
}

var errorEventType = reflect.TypeOf((*ErrorEvent)(nil))

// ListenerOption configures a single registration.
type ListenerOption func(*listenerConfig)

type listenerConfig struct {
	priority int
	id       string
	events   []any
}

// WithPriority sets the priority; higher runs first. Default 0.
func WithPriority(p int) ListenerOption {
	return func(c *listenerConfig) { c.priority = p }
}

// WithID sets an explicit listener id instead of a derived one.
func WithID(id string) ListenerOption {
	return func(c *listenerConfig) { c.id = id }
}

// ForEvents names the event types explicitly. Each value is a reflect.Type,
// a catalog name, or a sample event. Several types register the listener
// once per type (a union).
func ForEvents(events ...any) ListenerOption {
	return func(c *listenerConfig) { c.events = append(c.events, events...) }
}

func applyListenerOptions(opts []ListenerOption) listenerConfig {
	var c listenerConfig
	for _, o := range opts {
		if o != nil {
			o(&c)
		}
	}
	return c
}

// DeclareEvent names an event type in the catalog so it can be referenced by
// string. sample is a reflect.Type or a value of the type.
func (r *Registry) DeclareEvent(name string, sample any) error {
	if name == "" {
		return fmt.Errorf("xevent: event name must not be empty")
	}
	t, ok := sample.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(sample)
	}
	if t == nil {
		return fmt.Errorf("xevent: event %q: sample must not be nil", name)
	}
	r.mu.Lock()
	r.catalog[name] = t
	r.mu.Unlock()
	return nil
}

// LookupEvent returns the type declared under name.
func (r *Registry) LookupEvent(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.catalog[name]
	return t, ok
}

// AddListener registers listener and returns its id. The event type is
// inferred from the listener's parameter unless ForEvents is given.
func (r *Registry) AddListener(listener any, opts ...ListenerOption) (string, error) {
	return r.addListener(listener, opts, nil)
}

// Listen registers a statically typed listener.
func Listen[E Event](b Binder, fn func(ctx context.Context, e E) error, opts ...ListenerOption) (string, error) {
	if fn == nil {
		return "", ErrNilListener
	}
	return b.AddListener(fn, opts...)
}

func (r *Registry) addListener(listener any, opts []ListenerOption, scope *subscriberScope) (string, error) {
	cfg := applyListenerOptions(opts)

	explicit, err := r.explicitTypes(cfg.events)
	if err != nil {
		return "", err
	}
	res, err := r.typeResolver.Resolve(listener, explicit)
	if err != nil {
		return "", err
	}

	id := cfg.id
	if id == "" {
		id = DeriveID(res.Source)
	}
	reg := &registration{
		id:       id,
		priority: cfg.priority,
		types:    res.Types,
		invoke:   res.Invoke,
	}

	r.mu.Lock()
	err = r.insertLocked(reg)
	if err == nil {
		for _, t := range reg.types {
			if _, ok := r.catalog[TypeName(t)]; !ok {
				r.catalog[TypeName(t)] = t
			}
		}
	}
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	scope.track(reg)
	r.logRegistered(reg)
	return id, nil
}

func (r *Registry) explicitTypes(events []any) ([]reflect.Type, error) {
	if len(events) == 0 {
		return nil, nil
	}
	types := make([]reflect.Type, 0, len(events))
	for _, ev := range events {
		switch v := ev.(type) {
		case nil:
			return nil, &EventTypeResolutionError{Listener: "ForEvents", Reason: "nil event type"}
		case reflect.Type:
			types = append(types, v)
		case string:
			t, ok := r.LookupEvent(v)
			if !ok {
				return nil, &EventNotRegisteredError{Name: v}
			}
			types = append(types, t)
		default:
			types = append(types, reflect.TypeOf(v))
		}
	}
	return types, nil
}

// AddListenerService binds a listener resolved by reference through the
// ServiceResolver. The reference is resolved once here to validate it and
// again on every invocation.
func (r *Registry) AddListenerService(eventName, ref string, opts ...ListenerOption) (string, error) {
	return r.addListenerService(eventName, ref, opts, nil)
}

func (r *Registry) addListenerService(eventName, ref string, opts []ListenerOption, scope *subscriberScope) (string, error) {
	t, ok := r.LookupEvent(eventName)
	if !ok {
		return "", &EventNotRegisteredError{Name: eventName}
	}
	if !t.Implements(eventType) {
		return "", &EventMustImplementEventTypeError{Type: t}
	}

	svc, err := r.resolveService(ref)
	if err != nil {
		return "", &ListenerNotFoundError{ID: ref, Err: err}
	}
	if _, err := r.invokerFor(svc, t); err != nil {
		return "", &ListenerMissingInvokeError{Ref: ref, Type: reflect.TypeOf(svc)}
	}

	cfg := applyListenerOptions(opts)
	id := cfg.id
	if id == "" {
		id = DeriveID("service:" + ref)
	}
	reg := &registration{
		id:       id,
		priority: cfg.priority,
		types:    []reflect.Type{t},
		service:  ref,
		invoke: func(ctx context.Context, e Event) error {
			svc, err := r.resolveService(ref)
			if err != nil {
				return &ListenerNotFoundError{ID: ref, Err: err}
			}
			inv, err := r.invokerFor(svc, t)
			if err != nil {
				return err
			}
			return inv(ctx, e)
		},
	}

	r.mu.Lock()
	err = r.insertLocked(reg)
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	scope.track(reg)
	r.logRegistered(reg)
	return id, nil
}

func (r *Registry) resolveService(ref string) (any, error) {
	if r.resolver == nil {
		return nil, ErrNoResolver
	}
	svc, err := r.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, fmt.Errorf("xevent: service %q resolved to nil", ref)
	}
	return svc, nil
}

func (r *Registry) invokerFor(svc any, t reflect.Type) (InvokeFunc, error) {
	if h, ok := svc.(EventHandler); ok {
		return h.Handle, nil
	}
	if reflect.TypeOf(svc).Kind() != reflect.Func {
		return nil, &ListenerMissingInvokeError{Type: reflect.TypeOf(svc)}
	}
	res, err := r.typeResolver.Resolve(svc, []reflect.Type{t})
	if err != nil {
		return nil, err
	}
	return res.Invoke, nil
}

// insertLocked validates every (type, priority, id) before touching state.
func (r *Registry) insertLocked(reg *registration) error {
	for _, t := range reg.types {
		if b := r.findBucketLocked(t, reg.priority); b != nil {
			for _, existing := range b.regs {
				if existing.id == reg.id {
					return &ListenerAlreadyExistsError{EventType: t, Priority: reg.priority, ID: reg.id}
				}
			}
		}
	}

	r.seq++
	reg.seq = r.seq
	for _, t := range reg.types {
		bs, known := r.buckets[t]
		if !known {
			r.order = append(r.order, t)
		}
		i := sort.Search(len(bs), func(i int) bool { return bs[i].priority <= reg.priority })
		if i < len(bs) && bs[i].priority == reg.priority {
			bs[i].regs = append(bs[i].regs, reg)
		} else {
			bs = append(bs, nil)
			copy(bs[i+1:], bs[i:])
			bs[i] = &bucket{priority: reg.priority, regs: []*registration{reg}}
		}
		r.buckets[t] = bs
	}
	return nil
}

func (r *Registry) findBucketLocked(t reflect.Type, priority int) *bucket {
	for _, b := range r.buckets[t] {
		if b.priority == priority {
			return b
		}
	}
	return nil
}

// RemoveListener removes the first registration carrying id. A registration
// made for several event types is removed from all of them.
func (r *Registry) RemoveListener(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.order {
		for _, b := range r.buckets[t] {
			for _, reg := range b.regs {
				if reg.id == id {
					r.removeLocked(reg)
					r.logger.Debug().Str("listener_id", id).Msg("xevent: listener removed")
					return nil
				}
			}
		}
	}
	return &ListenerNotFoundError{ID: id}
}

func (r *Registry) removeLocked(reg *registration) {
	reg.removed = true
	for _, t := range reg.types {
		bs := r.buckets[t]
		for bi, b := range bs {
			if b.priority != reg.priority {
				continue
			}
			for i, x := range b.regs {
				if x == reg {
					b.regs = append(b.regs[:i:i], b.regs[i+1:]...)
					break
				}
			}
			if len(b.regs) == 0 {
				bs = append(bs[:bi:bi], bs[bi+1:]...)
			}
			break
		}
		if len(bs) == 0 {
			delete(r.buckets, t)
			r.dropOrderLocked(t)
			continue
		}
		r.buckets[t] = bs
	}
}

func (r *Registry) dropOrderLocked(t reflect.Type) {
	for i, x := range r.order {
		if x == t {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			return
		}
	}
}

// HasListener reports whether a listener with id is registered.
func (r *Registry) HasListener(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, bs := range r.buckets {
		for _, b := range bs {
			for _, reg := range b.regs {
				if reg.id == id {
					return true
				}
			}
		}
	}
	return false
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*registration]struct{})
	for _, bs := range r.buckets {
		for _, b := range bs {
			for _, reg := range b.regs {
				seen[reg] = struct{}{}
			}
		}
	}
	return len(seen)
}

// ListenersFor yields the listeners whose event type is satisfied by e's
// runtime type, by descending priority and then registration order. The
// registry is read when iteration starts; each call produces a fresh sequence.
func (r *Registry) ListenersFor(e Event) iter.Seq[Listener] {
	return func(yield func(Listener) bool) {
		for _, l := range r.match(e) {
			if !yield(l) {
				return
			}
		}
	}
}

func (r *Registry) match(e Event) []Listener {
	if e == nil {
		return nil
	}
	rt := reflect.TypeOf(e)

	r.mu.RLock()
	type candidate struct {
		reg *registration
		t   reflect.Type
	}
	var (
		found []candidate
		seen  = make(map[*registration]struct{})
	)
	for _, t := range r.order {
		if !satisfies(rt, t) {
			continue
		}
		for _, b := range r.buckets[t] {
			for _, reg := range b.regs {
				if _, dup := seen[reg]; dup {
					continue
				}
				seen[reg] = struct{}{}
				found = append(found, candidate{reg: reg, t: t})
			}
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].reg.priority != found[j].reg.priority {
			return found[i].reg.priority > found[j].reg.priority
		}
		return found[i].reg.seq < found[j].reg.seq
	})

	out := make([]Listener, len(found))
	for i, c := range found {
		out[i] = Listener{
			ID:        c.reg.id,
			Priority:  c.reg.priority,
			EventType: c.t,
			invoke:    c.reg.invoke,
		}
	}
	return out
}

// satisfies reports whether an event of runtime type rt may be delivered to
// a listener registered for t.
func satisfies(rt, t reflect.Type) bool {
	if rt == t {
		return true
	}
	return t.Kind() == reflect.Interface && rt.Implements(t)
}

func (r *Registry) logRegistered(reg *registration) {
	names := make([]string, len(reg.types))
	for i, t := range reg.types {
		names[i] = TypeName(t)
	}
	r.logger.Debug().
		Str("listener_id", reg.id).
		Str("priority", strconv.Itoa(reg.priority)).
		Str("service", reg.service).
		Str("event_types", strings.Join(names, ",")).
		Msg("xevent: listener registered")
}
