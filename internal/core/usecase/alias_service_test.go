package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

func TestAliasServiceLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	_, id := f.loginAgent(t, "Uma")

	first, err := f.links.Link(ctx, id.UserID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	second, err := f.links.Link(ctx, id.UserID)
	if err != nil {
		t.Fatalf("link again: %v", err)
	}
	if first.Token != second.Token || len(first.Token) != domain.AliasTokenLength {
		t.Fatalf("expected same token, got %q and %q", first.Token, second.Token)
	}

	if _, err := f.links.Link(ctx, "stranger"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unbound agent, got %v", err)
	}
}

func TestAliasServiceVisit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	_, id := f.loginAgent(t, "Vik")
	link, err := f.links.Link(ctx, id.UserID)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	info, err := f.links.Visit(ctx, link.Token)
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if info.AgentID != id.UserID || info.Name != "Vik" || info.Status != domain.AgentStatusOnline {
		t.Fatalf("unexpected visitor info %+v", info)
	}

	if _, err := f.links.Visit(ctx, "zzzzzzzz"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAliasServiceVisitWithoutProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	rec := f.createKey(t, "ghost", domain.KeyTypeAgent)
	if _, err := f.keys.Bind(ctx, rec.Key, "agent-x"); err != nil {
		t.Fatal(err)
	}
	link, err := f.links.Link(ctx, "agent-x")
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	info, err := f.links.Visit(ctx, link.Token)
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if info.AgentID != "agent-x" || info.Status != domain.AgentStatusOffline {
		t.Fatalf("expected offline placeholder, got %+v", info)
	}
}
