package xevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCodec is returned (wrapped) by NewCodec for unregistered names.
var ErrUnknownCodec = errors.New("xevent: unknown codec")

// Codec encodes failed events for sinks that keep them (see
// adapter/redisstream) and decodes them when the records are read back.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CodecFactory builds a Codec.
type CodecFactory func() Codec

var codecs = struct {
	sync.RWMutex
	byName map[string]CodecFactory
}{
	byName: map[string]CodecFactory{"json": func() Codec { return JSONCodec{} }},
}

// RegisterCodec makes a codec available to sinks under name. Registering a
// name twice replaces the earlier factory.
func RegisterCodec(name string, factory CodecFactory) error {
	switch {
	case name == "":
		return errors.New("xevent: codec name must not be empty")
	case factory == nil:
		return fmt.Errorf("xevent: codec %q: factory must not be nil", name)
	}
	codecs.Lock()
	codecs.byName[name] = factory
	codecs.Unlock()
	return nil
}

// NewCodec builds the codec registered under name.
func NewCodec(name string) (Codec, error) {
	codecs.RLock()
	factory, ok := codecs.byName[name]
	codecs.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownCodec, name, CodecNames())
	}
	return factory(), nil
}

// CodecNames lists the registered codec names in sorted order.
func CodecNames() []string {
	codecs.RLock()
	names := make([]string, 0, len(codecs.byName))
	for n := range codecs.byName {
		names = append(names, n)
	}
	codecs.RUnlock()
	sort.Strings(names)
	return names
}
