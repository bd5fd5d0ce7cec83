package ports

import (
	"context"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

// AgentDirectory is the profile store behind agent identities.
type AgentDirectory interface {
	Register(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	Get(ctx context.Context, id string) (domain.Agent, error)
	SetStatus(ctx context.Context, id string, status domain.AgentStatus) error
}
