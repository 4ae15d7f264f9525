package xevent

import (
	"fmt"
	"reflect"
)

// subscriberScope is the Binder handed to a running subscriber. It records
// what the batch registered so the batch can be rolled back or removed.
type subscriberScope struct {
	r     *Registry
	added []*registration
}

func (s *subscriberScope) AddListener(listener any, opts ...ListenerOption) (string, error) {
	return s.r.addListener(listener, opts, s)
}

func (s *subscriberScope) AddListenerService(eventName, ref string, opts ...ListenerOption) (string, error) {
	return s.r.addListenerService(eventName, ref, opts, s)
}

func (s *subscriberScope) track(reg *registration) {
	if s == nil {
		return
	}
	s.added = append(s.added, reg)
}

// Subscribe runs s once under id. A failing batch is rolled back.
func (r *Registry) Subscribe(id string, s Subscriber) error {
	if s == nil {
		return ErrNilSubscriber
	}

	r.mu.Lock()
	if _, ok := r.subscribers[id]; ok {
		r.mu.Unlock()
		return &SubscriberAlreadyRegisteredError{ID: id}
	}
	// A nil slot marks a batch that is still running.
	r.subscribers[id] = nil
	r.mu.Unlock()

	scope := &subscriberScope{r: r}
	if err := s.Subscribe(scope); err != nil {
		r.mu.Lock()
		for _, reg := range scope.added {
			if !reg.removed {
				r.removeLocked(reg)
			}
		}
		delete(r.subscribers, id)
		r.mu.Unlock()
		r.logger.Warn().Str("subscriber", id).Err(err).Msg("xevent: subscriber failed, rolled back")
		return fmt.Errorf("xevent: subscriber %q: %w", id, err)
	}

	added := scope.added
	if added == nil {
		added = []*registration{}
	}
	r.mu.Lock()
	r.subscribers[id] = added
	r.mu.Unlock()

	r.logger.Debug().Str("subscriber", id).Msg("xevent: subscriber registered")
	return nil
}

// AddSubscriber resolves ref through the ServiceResolver and runs it once.
func (r *Registry) AddSubscriber(ref string) error {
	if r.HasSubscriber(ref) {
		return &SubscriberAlreadyRegisteredError{ID: ref}
	}
	svc, err := r.resolveService(ref)
	if err != nil {
		return &SubscriberNotFoundError{ID: ref, Err: err}
	}
	s, ok := svc.(Subscriber)
	if !ok {
		return &SubscriberTypeError{ID: ref, Type: reflect.TypeOf(svc)}
	}
	return r.Subscribe(ref, s)
}

// RemoveSubscriber removes every listener the subscriber registered.
func (r *Registry) RemoveSubscriber(id string) error {
	r.mu.Lock()
	regs, ok := r.subscribers[id]
	if !ok {
		r.mu.Unlock()
		return &SubscriberNotFoundError{ID: id}
	}
	if regs == nil {
		r.mu.Unlock()
		return fmt.Errorf("xevent: subscriber %q: %w", id, ErrSubscriberRunning)
	}
	for _, reg := range regs {
		if !reg.removed {
			r.removeLocked(reg)
		}
	}
	delete(r.subscribers, id)
	r.mu.Unlock()

	r.logger.Debug().Str("subscriber", id).Msg("xevent: subscriber removed")
	return nil
}

// HasSubscriber reports whether id has already been subscribed.
func (r *Registry) HasSubscriber(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribers[id]
	return ok
}
