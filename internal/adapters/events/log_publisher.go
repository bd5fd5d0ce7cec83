package events

import (
	"context"
	"log"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

// LogPublisher writes each delivered event to the process log. Subjects are
// already masked when events are recorded.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	log.Printf("key event topic=%s event_id=%s subject=%s user=%s actor=%s", topic, event.EventID, event.Subject, event.UserID, event.Actor)
	return nil
}
