package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

// VisitorInfo is what a visitor needs to open a chat with the agent behind
// a short link.
type VisitorInfo struct {
	AgentID string
	Name    string
	Avatar  string
	Status  domain.AgentStatus
}

type AliasService struct {
	aliases ports.AliasStore
	agents  ports.AgentDirectory
}

func NewAliasService(aliases ports.AliasStore, agents ports.AgentDirectory) *AliasService {
	return &AliasService{aliases: aliases, agents: agents}
}

// Link returns the agent's shareable alias, minting one if needed.
func (s *AliasService) Link(ctx context.Context, agentID string) (domain.AliasRecord, error) {
	return s.aliases.GetOrCreate(ctx, agentID)
}

// Visit resolves a short link token into visitor bootstrap information.
func (s *AliasService) Visit(ctx context.Context, token string) (VisitorInfo, error) {
	agentID, err := s.aliases.Resolve(ctx, token)
	if err != nil {
		return VisitorInfo{}, err
	}

	agent, err := s.agents.Get(ctx, agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return VisitorInfo{AgentID: agentID, Status: domain.AgentStatusOffline}, nil
		}
		return VisitorInfo{}, fmt.Errorf("load agent: %w", err)
	}
	return VisitorInfo{
		AgentID: agent.ID,
		Name:    agent.Name,
		Avatar:  agent.Avatar,
		Status:  agent.Status,
	}, nil
}
