package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

// ErrUnauthorized is the single rejection callers see for missing,
// suspended and expired keys.
var ErrUnauthorized = errors.New("invalid or expired key")

var ErrForbidden = errors.New("forbidden")

type AuthService struct {
	keys   ports.KeyStore
	agents ports.AgentDirectory
	binder *BindingCoordinator
	clock  clock.Clock
}

func NewAuthService(keys ports.KeyStore, agents ports.AgentDirectory, binder *BindingCoordinator, c clock.Clock) *AuthService {
	return &AuthService{keys: keys, agents: agents, binder: binder, clock: c}
}

// Login resolves key to an identity. An unbound agent key is bound to a
// freshly registered agent on the spot and the agent is marked online.
func (s *AuthService) Login(ctx context.Context, key string) (domain.Identity, error) {
	rec, err := s.usableKey(ctx, key)
	if err != nil {
		return domain.Identity{}, err
	}

	switch rec.Type {
	case domain.KeyTypeAdmin:
		return adminIdentity(rec), nil
	case domain.KeyTypeAgent:
		var agent domain.Agent
		if rec.Bound() {
			agent, err = s.binder.EnsureAgent(ctx, rec.BoundUserID, rec.DisplayName)
		} else {
			agent, err = s.binder.AutoBind(ctx, rec)
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrExpired) {
				return domain.Identity{}, ErrUnauthorized
			}
			return domain.Identity{}, err
		}
		if err := s.agents.SetStatus(ctx, agent.ID, domain.AgentStatusOnline); err != nil {
			return domain.Identity{}, fmt.Errorf("mark agent online: %w", err)
		}
		return domain.Identity{
			Role:        domain.RoleAgent,
			UserID:      agent.ID,
			DisplayName: agent.Name,
			Key:         rec.Key,
			ExpireAt:    rec.ExpireAt,
		}, nil
	default:
		return domain.Identity{}, ErrUnauthorized
	}
}

// Authenticate checks a key presented on a request after login. It has no
// side effects; an agent key that never logged in is rejected.
func (s *AuthService) Authenticate(ctx context.Context, key string) (domain.Identity, error) {
	rec, err := s.usableKey(ctx, key)
	if err != nil {
		return domain.Identity{}, err
	}

	switch rec.Type {
	case domain.KeyTypeAdmin:
		return adminIdentity(rec), nil
	case domain.KeyTypeAgent:
		if !rec.Bound() {
			return domain.Identity{}, ErrUnauthorized
		}
		return domain.Identity{
			Role:        domain.RoleAgent,
			UserID:      rec.BoundUserID,
			DisplayName: rec.DisplayName,
			Key:         rec.Key,
			ExpireAt:    rec.ExpireAt,
		}, nil
	default:
		return domain.Identity{}, ErrUnauthorized
	}
}

func (s *AuthService) usableKey(ctx context.Context, key string) (domain.KeyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.KeyRecord{}, ErrUnauthorized
	}

	rec, err := s.keys.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.KeyRecord{}, ErrUnauthorized
		}
		return domain.KeyRecord{}, err
	}
	if rec.Suspended || rec.Expired(s.clock.Now()) {
		return domain.KeyRecord{}, ErrUnauthorized
	}
	return rec, nil
}

func adminIdentity(rec domain.KeyRecord) domain.Identity {
	userID := rec.BoundUserID
	if userID == "" {
		userID = domain.DefaultAdminUserID
	}
	return domain.Identity{
		Role:        domain.RoleAdmin,
		UserID:      userID,
		DisplayName: rec.DisplayName,
		Key:         rec.Key,
		ExpireAt:    rec.ExpireAt,
	}
}
