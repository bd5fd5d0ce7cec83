package events

import (
	"context"
	"errors"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

// FanoutPublisher hands every event to all of its publishers. It reports the
// joined errors of the ones that failed, so the outbox retries the event as
// a whole.
type FanoutPublisher struct {
	publishers []ports.EventPublisher
}

func NewFanoutPublisher(publishers ...ports.EventPublisher) *FanoutPublisher {
	return &FanoutPublisher{publishers: publishers}
}

func (p *FanoutPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	var errs []error
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
