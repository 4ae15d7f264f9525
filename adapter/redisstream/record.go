package redisstream

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xevent"
)

// ErrNoPayload is returned by Record.Decode when the failure carried no event.
var ErrNoPayload = errors.New("redisstream: record has no payload")

// Record is one failure entry read back from the stream with XRANGE or XREAD.
type Record struct {
	ID         string
	DispatchID string
	Signal     xevent.SignalType
	EventType  string
	ListenerID string
	Priority   int
	Error      string
	Codec      string
	Payload    []byte
	RecordedAt time.Time
}

// ParseRecord converts a stream message written by a Sink.
func ParseRecord(msg redis.XMessage) (Record, error) {
	r := Record{
		ID:         msg.ID,
		DispatchID: field(msg.Values, fieldDispatchID),
		Signal:     xevent.SignalType(field(msg.Values, fieldSignal)),
		EventType:  field(msg.Values, fieldEventType),
		ListenerID: field(msg.Values, fieldListenerID),
		Error:      field(msg.Values, fieldError),
		Codec:      field(msg.Values, fieldCodec),
	}
	if r.Signal == "" {
		return Record{}, fmt.Errorf("redisstream: message %s: missing %s", msg.ID, fieldSignal)
	}
	if v := field(msg.Values, fieldPriority); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Record{}, fmt.Errorf("redisstream: message %s: %s: %w", msg.ID, fieldPriority, err)
		}
		r.Priority = p
	}
	if v := field(msg.Values, fieldRecordedAt); v != "" {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("redisstream: message %s: %s: %w", msg.ID, fieldRecordedAt, err)
		}
		r.RecordedAt = time.Unix(0, ns)
	}
	if v, ok := msg.Values[fieldPayload]; ok {
		switch p := v.(type) {
		case []byte:
			r.Payload = p
		case string:
			r.Payload = []byte(p)
		}
	}
	return r, nil
}

// Decode unmarshals the payload into v with the codec the record names.
func (r Record) Decode(v any) error {
	if len(r.Payload) == 0 {
		return ErrNoPayload
	}
	codec, err := xevent.NewCodec(r.Codec)
	if err != nil {
		return err
	}
	return codec.Unmarshal(r.Payload, v)
}

// field reads a stream value. Redis returns strings; values built in process
// keep their Go types.
func field(values map[string]any, key string) string {
	switch v := values[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
