package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

func TestAuthServiceLoginAdminDefaultIdentity(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	rec := f.createKey(t, "ops", domain.KeyTypeAdmin)

	id, err := f.auth.Login(context.Background(), "  "+rec.Key+" ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Role != domain.RoleAdmin || id.UserID != domain.DefaultAdminUserID {
		t.Fatalf("unexpected admin identity %+v", id)
	}
	if !id.ExpireAt.Equal(at(10, 12, 0)) {
		t.Fatalf("unexpected expiry %v", id.ExpireAt)
	}
	if f.agents.registered != 0 {
		t.Fatal("admin login must not register agents")
	}
}

func TestAuthServiceLoginRejectsUniformly(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	suspended := f.createKey(t, "s", domain.KeyTypeAgent)
	if err := f.keys.SetSuspended(context.Background(), suspended.Key, true); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	expired := f.createKey(t, "e", domain.KeyTypeAdmin)

	var rejected []error
	for _, key := range []string{"", "AGENT-UNKNOWN2", suspended.Key} {
		_, err := f.auth.Login(context.Background(), key)
		rejected = append(rejected, err)
	}
	f.clock.Set(at(10, 12, 1))
	_, err := f.auth.Login(context.Background(), expired.Key)
	rejected = append(rejected, err)

	for i, err := range rejected {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("case %d: expected unauthorized, got %v", i, err)
		}
		if err.Error() != ErrUnauthorized.Error() {
			t.Fatalf("case %d: rejection must not reveal its reason, got %q", i, err)
		}
	}
	if got, _ := f.keys.Lookup(context.Background(), suspended.Key); got.Bound() {
		t.Fatal("rejected login must not bind the key")
	}
}

func TestAuthServiceLoginAutoBindsAgent(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	rec := f.createKey(t, "Dana", domain.KeyTypeAgent)

	id, err := f.auth.Login(context.Background(), rec.Key)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.Role != domain.RoleAgent || id.UserID == "" || id.DisplayName != "Dana" {
		t.Fatalf("unexpected identity %+v", id)
	}

	bound, _ := f.keys.Lookup(context.Background(), rec.Key)
	if bound.BoundUserID != id.UserID {
		t.Fatalf("expected key bound to %s, got %q", id.UserID, bound.BoundUserID)
	}
	agent, err := f.agents.Get(context.Background(), id.UserID)
	if err != nil {
		t.Fatalf("agent not registered: %v", err)
	}
	if agent.Status != domain.AgentStatusOnline || agent.Name != "Dana" {
		t.Fatalf("unexpected agent %+v", agent)
	}
	if !f.events.has(domain.EventKeyBound) || !f.events.has(domain.EventAgentRegistered) {
		t.Fatalf("expected bind and registration events, got %v", f.events.types())
	}

	again, err := f.auth.Login(context.Background(), rec.Key)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if again.UserID != id.UserID {
		t.Fatalf("second login changed identity %s -> %s", id.UserID, again.UserID)
	}
	if f.agents.registered != 1 {
		t.Fatalf("expected one registration, got %d", f.agents.registered)
	}
}

func TestAuthServiceLoginReregistersMissingProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	rec := f.createKey(t, "Lee", domain.KeyTypeAgent)
	if _, err := f.keys.Bind(ctx, rec.Key, "agent-lee"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	id, err := f.auth.Login(ctx, rec.Key)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.UserID != "agent-lee" {
		t.Fatalf("expected existing binding, got %s", id.UserID)
	}
	if agent, err := f.agents.Get(ctx, "agent-lee"); err != nil || agent.Status != domain.AgentStatusOnline {
		t.Fatalf("expected online profile, got %+v err=%v", agent, err)
	}
}

func TestAuthServiceLoginSurfacesDirectoryFailure(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	f.agents.registerErr = errors.New("directory down")
	rec := f.createKey(t, "Kim", domain.KeyTypeAgent)

	_, err := f.auth.Login(context.Background(), rec.Key)
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}

	f.agents.registerErr = nil
	id, err := f.auth.Login(context.Background(), rec.Key)
	if err != nil {
		t.Fatalf("retry login: %v", err)
	}
	bound, _ := f.keys.Lookup(context.Background(), rec.Key)
	if bound.BoundUserID != id.UserID {
		t.Fatalf("retry should reuse the binding, got %s vs %s", bound.BoundUserID, id.UserID)
	}
}

func TestAuthServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	unbound := f.createKey(t, "new", domain.KeyTypeAgent)

	if _, err := f.auth.Authenticate(ctx, unbound.Key); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unbound agent key must be rejected, got %v", err)
	}
	if got, _ := f.keys.Lookup(ctx, unbound.Key); got.Bound() {
		t.Fatal("authenticate must not bind")
	}

	rec, loggedIn := f.loginAgent(t, "Ari")
	id, err := f.auth.Authenticate(ctx, rec.Key)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.UserID != loggedIn.UserID || id.Role != domain.RoleAgent {
		t.Fatalf("unexpected identity %+v", id)
	}

	admin := f.createKey(t, "root", domain.KeyTypeAdmin)
	if id, err := f.auth.Authenticate(ctx, admin.Key); err != nil || !id.IsAdmin() {
		t.Fatalf("expected admin identity, got %+v err=%v", id, err)
	}
}

func TestEndToEndScenarioA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 10, 0))

	k1 := f.createKey(t, "K1", domain.KeyTypeAgent)
	if !k1.ExpireAt.Equal(at(10, 12, 0)) {
		t.Fatalf("expected K1 to expire at noon, got %v", k1.ExpireAt)
	}

	id, err := f.auth.Login(ctx, k1.Key)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	t1, err := f.links.Link(ctx, id.UserID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !t1.ExpireAt.Equal(at(10, 12, 0)) {
		t.Fatalf("expected alias to expire at noon, got %v", t1.ExpireAt)
	}
	visit, err := f.links.Visit(ctx, t1.Token)
	if err != nil || visit.AgentID != id.UserID || visit.Name != "K1" {
		t.Fatalf("unexpected visit %+v err=%v", visit, err)
	}

	f.clock.Set(at(10, 12, 1))
	if _, err := f.aliases.Resolve(ctx, t1.Token); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected alias gone, got %v", err)
	}
	if _, err := f.links.Visit(ctx, t1.Token); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected visit to fail, got %v", err)
	}
	if _, err := f.auth.Login(ctx, k1.Key); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected login rejected, got %v", err)
	}
}
