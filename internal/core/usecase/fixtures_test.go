package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/memory"
	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

var noonUTC = domain.ExpiryPolicy{CutoffHour: 12, Location: time.UTC}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 5, day, hour, minute, 0, 0, time.UTC)
}

type stubAgentDirectory struct {
	mu          sync.Mutex
	agents      map[string]domain.Agent
	registerErr error
	registered  int
}

func newStubAgentDirectory() *stubAgentDirectory {
	return &stubAgentDirectory{agents: make(map[string]domain.Agent)}
}

func (d *stubAgentDirectory) Register(_ context.Context, agent domain.Agent) (domain.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registerErr != nil {
		return domain.Agent{}, d.registerErr
	}
	d.agents[agent.ID] = agent
	d.registered++
	return agent, nil
}

func (d *stubAgentDirectory) Get(_ context.Context, id string) (domain.Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return domain.Agent{}, domain.ErrNotFound
	}
	return agent, nil
}

func (d *stubAgentDirectory) SetStatus(_ context.Context, id string, status domain.AgentStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	agent, ok := d.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	agent.Status = status
	d.agents[id] = agent
	return nil
}

type stubEventLog struct {
	mu     sync.Mutex
	events []domain.EventEnvelope
	err    error
}

func (l *stubEventLog) Append(_ context.Context, event domain.EventEnvelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, event)
	return nil
}

func (l *stubEventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EventType)
	}
	return out
}

func (l *stubEventLog) has(eventType string) bool {
	for _, t := range l.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	clock   *clock.FakeClock
	keys    *memory.KeyStore
	aliases *memory.AliasStore
	agents  *stubAgentDirectory
	events  *stubEventLog
	binder  *BindingCoordinator
	auth    *AuthService
	keySvc  *KeyService
	links   *AliasService
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	c := clock.Fake(now)
	keys := memory.NewKeyStore(c, noonUTC)
	aliases := memory.NewAliasStore(keys, c)
	agents := newStubAgentDirectory()
	events := &stubEventLog{}
	binder := NewBindingCoordinator(keys, aliases, agents, events, c)
	return &fixture{
		clock:   c,
		keys:    keys,
		aliases: aliases,
		agents:  agents,
		events:  events,
		binder:  binder,
		auth:    NewAuthService(keys, agents, binder, c),
		keySvc:  NewKeyService(keys, aliases, events, c),
		links:   NewAliasService(aliases, agents),
	}
}

func (f *fixture) createKey(t *testing.T, name string, keyType domain.KeyType) domain.KeyRecord {
	t.Helper()
	rec, err := f.keys.Create(context.Background(), name, keyType, "")
	if err != nil {
		t.Fatalf("create key %s: %v", name, err)
	}
	return rec
}

// loginAgent creates an agent key and logs in with it, returning the key and
// the identity it was bound to.
func (f *fixture) loginAgent(t *testing.T, name string) (domain.KeyRecord, domain.Identity) {
	t.Helper()
	rec := f.createKey(t, name, domain.KeyTypeAgent)
	id, err := f.auth.Login(context.Background(), rec.Key)
	if err != nil {
		t.Fatalf("login %s: %v", name, err)
	}
	return rec, id
}
