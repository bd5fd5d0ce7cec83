package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/memory"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

type countingKeyStore struct {
	*memory.KeyStore
	sweeps atomic.Int64
	err    error
}

func (s *countingKeyStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.sweeps.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.KeyStore.DeleteExpired(ctx, now)
}

func TestCleanupSchedulerSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, at(10, 9, 0))
	_, id := f.loginAgent(t, "early")
	if _, err := f.links.Link(ctx, id.UserID); err != nil {
		t.Fatalf("link: %v", err)
	}
	f.clock.Set(at(10, 13, 0))
	f.createKey(t, "late", domain.KeyTypeAgent)

	s := NewCleanupScheduler(f.keys, f.aliases, f.events, f.clock, time.Minute)
	res, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Keys != 1 || res.Aliases != 1 {
		t.Fatalf("expected one key and one alias swept, got %+v", res)
	}
	if f.keys.Len() != 1 || f.aliases.Len() != 0 {
		t.Fatalf("unexpected store sizes keys=%d aliases=%d", f.keys.Len(), f.aliases.Len())
	}
	if !f.events.has(domain.EventKeysSwept) {
		t.Fatalf("expected sweep event, got %v", f.events.types())
	}

	before := len(f.events.types())
	res, err = s.Sweep(ctx)
	if err != nil || res.Keys != 0 || res.Aliases != 0 {
		t.Fatalf("second sweep should be empty, got %+v err=%v", res, err)
	}
	if len(f.events.types()) != before {
		t.Fatal("empty sweep must not record an event")
	}
	if m := s.Metrics(); m.KeysRemovedTotal != 1 || m.AliasesRemovedTotal != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestCleanupSchedulerKeepsKeyAtExactExpiry(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	rec := f.createKey(t, "edge", domain.KeyTypeAgent)
	f.clock.Set(rec.ExpireAt)

	s := NewCleanupScheduler(f.keys, f.aliases, nil, f.clock, time.Minute)
	res, err := s.Sweep(context.Background())
	if err != nil || res.Keys != 0 {
		t.Fatalf("key at its expiry instant must survive, got %+v err=%v", res, err)
	}
}

func TestCleanupSchedulerSweepError(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	store := &countingKeyStore{KeyStore: f.keys, err: errors.New("locked")}
	s := NewCleanupScheduler(store, f.aliases, f.events, f.clock, time.Minute)

	if _, err := s.Sweep(context.Background()); err == nil {
		t.Fatal("expected sweep error")
	}
	if s.Metrics().SweepErrorsTotal != 1 {
		t.Fatalf("expected error counted, got %+v", s.Metrics())
	}
}

func TestCleanupSchedulerStartClose(t *testing.T) {
	f := newFixture(t, at(10, 9, 0))
	store := &countingKeyStore{KeyStore: f.keys}
	s := NewCleanupScheduler(store, f.aliases, f.events, f.clock, 5*time.Millisecond)

	s.Start(context.Background())
	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for store.sweeps.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.sweeps.Load() < 2 {
		t.Fatalf("expected periodic sweeps, got %d", store.sweeps.Load())
	}

	after := store.sweeps.Load()
	time.Sleep(20 * time.Millisecond)
	if store.sweeps.Load() != after {
		t.Fatal("sweeps continued after close")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
