package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

const RenewedNamePrefix = "renewed-"

var ErrRenewFailed = errors.New("renew failed")

// BindingCoordinator runs the flows that move an agent onto a key. It holds
// no state of its own; the one-key-per-agent rule is enforced by
// KeyStore.Bind and alias invalidation is done here.
type BindingCoordinator struct {
	keys       ports.KeyStore
	aliases    ports.AliasStore
	agents     ports.AgentDirectory
	events     eventRecorder
	clock      clock.Clock
	newAgentID func() string
}

func NewBindingCoordinator(keys ports.KeyStore, aliases ports.AliasStore, agents ports.AgentDirectory, events ports.EventLog, c clock.Clock) *BindingCoordinator {
	return &BindingCoordinator{
		keys:       keys,
		aliases:    aliases,
		agents:     agents,
		events:     eventRecorder{log: events, clock: c},
		clock:      c,
		newAgentID: uuid.NewString,
	}
}

// AutoBind manufactures an agent identity for an unbound agent key, binds the
// key to it and registers the profile. When another login bound the key
// first, the winner's identity is returned instead.
func (c *BindingCoordinator) AutoBind(ctx context.Context, rec domain.KeyRecord) (domain.Agent, error) {
	agentID := c.newAgentID()
	evicted, err := c.keys.Bind(ctx, rec.Key, agentID)
	if errors.Is(err, domain.ErrAlreadyBound) {
		current, lookupErr := c.keys.Lookup(ctx, rec.Key)
		if lookupErr != nil {
			return domain.Agent{}, lookupErr
		}
		return c.EnsureAgent(ctx, current.BoundUserID, current.DisplayName)
	}
	if err != nil {
		return domain.Agent{}, err
	}

	c.events.record(ctx, domain.EventKeyBound, domain.MaskKey(rec.Key), agentID, map[string]any{
		"flow":    "auto_bind",
		"evicted": maskKeys(evicted),
	})
	return c.EnsureAgent(ctx, agentID, rec.DisplayName)
}

// EnsureAgent returns the directory profile for id, registering one named
// name when the directory has none.
func (c *BindingCoordinator) EnsureAgent(ctx context.Context, id, name string) (domain.Agent, error) {
	agent, err := c.agents.Get(ctx, id)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Agent{}, fmt.Errorf("load agent: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = "Agent " + id[:min(8, len(id))]
	}
	now := c.clock.Now().UTC()
	agent, err = c.agents.Register(ctx, domain.Agent{
		ID:         id,
		Name:       name,
		Status:     domain.AgentStatusOffline,
		CreatedAt:  now,
		LastSeenAt: now,
	})
	if err != nil {
		return domain.Agent{}, fmt.Errorf("register agent: %w", err)
	}
	c.events.record(ctx, domain.EventAgentRegistered, id, id, map[string]any{"name": agent.Name})
	return agent, nil
}

// Renew replaces the key bound to userID with a fresh one carrying the same
// type, notes and a "renewed-" name. A failed bind deletes the fresh record
// so nothing unreachable is left behind.
func (c *BindingCoordinator) Renew(ctx context.Context, userID string) (domain.KeyRecord, error) {
	old, err := c.keys.BoundTo(ctx, userID)
	if err != nil {
		return domain.KeyRecord{}, err
	}

	name := RenewedNamePrefix + strings.TrimPrefix(old.DisplayName, RenewedNamePrefix)
	fresh, err := c.keys.Create(ctx, name, old.Type, old.Notes)
	if err != nil {
		return domain.KeyRecord{}, fmt.Errorf("create renewed key: %w", err)
	}

	evicted, err := c.keys.Bind(ctx, fresh.Key, userID)
	if err != nil {
		if _, delErr := c.keys.Delete(ctx, fresh.Key); delErr != nil {
			return domain.KeyRecord{}, fmt.Errorf("%w: bind: %v; rollback: %v", ErrRenewFailed, err, delErr)
		}
		return domain.KeyRecord{}, fmt.Errorf("%w: %w", ErrRenewFailed, err)
	}

	if err := c.invalidateAliases(ctx, userID); err != nil {
		return domain.KeyRecord{}, err
	}
	c.events.record(ctx, domain.EventKeyRenewed, domain.MaskKey(fresh.Key), userID, map[string]any{
		"replaces": maskKeys(evicted),
	})
	return c.keys.Lookup(ctx, fresh.Key)
}

// Extend binds a caller-supplied unused key to userID, replacing the current
// one. Aliases pinned to the old key are invalidated.
func (c *BindingCoordinator) Extend(ctx context.Context, userID, key string) (domain.KeyRecord, error) {
	rec, err := c.keys.Lookup(ctx, key)
	if err != nil {
		return domain.KeyRecord{}, err
	}
	if rec.Suspended && !rec.Expired(c.clock.Now()) {
		return domain.KeyRecord{}, domain.ErrSuspended
	}
	return c.bindReplacing(ctx, key, userID, "extend")
}

// Rebind is the administrator variant of Extend.
func (c *BindingCoordinator) Rebind(ctx context.Context, key, userID string) (domain.KeyRecord, error) {
	return c.bindReplacing(ctx, key, userID, "rebind")
}

func (c *BindingCoordinator) bindReplacing(ctx context.Context, key, userID, flow string) (domain.KeyRecord, error) {
	evicted, err := c.keys.Bind(ctx, key, userID)
	if err != nil {
		return domain.KeyRecord{}, err
	}

	if err := c.invalidateAliases(ctx, userID); err != nil {
		return domain.KeyRecord{}, err
	}
	subject := domain.MaskKey(key)
	c.events.record(ctx, domain.EventKeyBound, subject, userID, map[string]any{"flow": flow})
	for _, old := range evicted {
		c.events.record(ctx, domain.EventKeyReplaced, domain.MaskKey(old), userID, map[string]any{"replaced_by": subject})
	}
	return c.keys.Lookup(ctx, key)
}

func (c *BindingCoordinator) invalidateAliases(ctx context.Context, userID string) error {
	n, err := c.aliases.InvalidateAllFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("invalidate aliases: %w", err)
	}
	if n > 0 {
		c.events.record(ctx, domain.EventAliasInvalidated, userID, userID, map[string]any{"count": n})
	}
	return nil
}
