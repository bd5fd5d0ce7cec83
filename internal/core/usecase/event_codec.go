package usecase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

var ErrUnsupportedSchemaVersion = errors.New("unsupported event schema version")

// Upcaster rewrites an event payload from one schema version to the next.
type Upcaster interface {
	FromVersion() int
	ToVersion() int
	Upcast(payload json.RawMessage) (json.RawMessage, error)
}

// EventCodec brings recorded envelopes up to CurrentEventSchemaVersion
// before they are published.
type EventCodec struct {
	upcasters map[int]Upcaster
}

func NewEventCodec(upcasters ...Upcaster) *EventCodec {
	m := make(map[int]Upcaster, len(upcasters))
	for _, up := range upcasters {
		m[up.FromVersion()] = up
	}
	return &EventCodec{upcasters: m}
}

func (c *EventCodec) Normalize(envelope domain.EventEnvelope) (domain.EventEnvelope, error) {
	v := envelope.SchemaVersion
	if v > domain.CurrentEventSchemaVersion {
		return domain.EventEnvelope{}, fmt.Errorf("%w: %d", ErrUnsupportedSchemaVersion, v)
	}

	payload := envelope.Payload
	for v < domain.CurrentEventSchemaVersion {
		up, ok := c.upcasters[v]
		if !ok {
			return domain.EventEnvelope{}, fmt.Errorf("%w: no upcaster from %d", ErrUnsupportedSchemaVersion, v)
		}
		if up.ToVersion() <= v {
			return domain.EventEnvelope{}, fmt.Errorf("upcaster from %d does not advance the version", v)
		}
		next, err := up.Upcast(payload)
		if err != nil {
			return domain.EventEnvelope{}, fmt.Errorf("upcast %d->%d: %w", up.FromVersion(), up.ToVersion(), err)
		}
		payload = next
		v = up.ToVersion()
	}

	envelope.SchemaVersion = v
	envelope.Payload = payload
	return envelope, nil
}
