package usecase

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

// eventRecorder appends lifecycle events on a best-effort basis. A failing
// event log never fails the operation that produced the event.
type eventRecorder struct {
	log   ports.EventLog
	clock clock.Clock
}

func (r eventRecorder) record(ctx context.Context, eventType, subject, userID string, payload any) {
	if r.log == nil {
		return
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			log.Printf("encode event payload type=%s: %v", eventType, err)
			return
		}
		raw = encoded
	}

	event := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		Subject:       subject,
		UserID:        userID,
		Actor:         ActorFromContext(ctx),
		OccurredAt:    r.clock.Now().UTC(),
		Payload:       raw,
	}
	if err := r.log.Append(ctx, event); err != nil {
		log.Printf("record event type=%s subject=%s: %v", eventType, subject, err)
	}
}

func maskKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.MaskKey(k))
	}
	return out
}
