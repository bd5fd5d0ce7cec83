package events

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

type recordingPublisher struct {
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ domain.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	return p.err
}

func TestFanoutPublisherDeliversToAll(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("down")}
	ok := &recordingPublisher{}
	pub := NewFanoutPublisher(failing, ok, NewLogPublisher())

	err := pub.Publish(context.Background(), "deskkeys.key.created", domain.EventEnvelope{EventID: "e1"})
	if !errors.Is(err, failing.err) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.topics) != 1 || len(failing.topics) != 1 {
		t.Fatalf("every publisher must be called, got ok=%v failing=%v", ok.topics, failing.topics)
	}

	if err := NewFanoutPublisher(ok).Publish(context.Background(), "t", domain.EventEnvelope{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
