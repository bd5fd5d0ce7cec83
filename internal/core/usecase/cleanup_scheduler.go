package usecase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

const DefaultCleanupInterval = 60 * time.Second

// CleanupScheduler periodically evicts expired keys and aliases. Every read
// path re-checks expiry on its own, so the sweep only bounds memory.
type CleanupScheduler struct {
	keys     ports.KeyStore
	aliases  ports.AliasStore
	events   eventRecorder
	clock    clock.Clock
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	keysRemovedTotal    atomic.Int64
	aliasesRemovedTotal atomic.Int64
	sweepErrorsTotal    atomic.Int64
}

type CleanupMetrics struct {
	KeysRemovedTotal    int64
	AliasesRemovedTotal int64
	SweepErrorsTotal    int64
}

type SweepResult struct {
	Keys    int
	Aliases int
}

func NewCleanupScheduler(keys ports.KeyStore, aliases ports.AliasStore, events ports.EventLog, c clock.Clock, interval time.Duration) *CleanupScheduler {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupScheduler{
		keys:     keys,
		aliases:  aliases,
		events:   eventRecorder{log: events, clock: c},
		clock:    c,
		interval: interval,
	}
}

func (s *CleanupScheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
}

// Close stops the sweep loop and waits for an in-flight sweep to finish.
func (s *CleanupScheduler) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *CleanupScheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.Sweep(ctx); err != nil {
			log.Printf("cleanup sweep error: %v", err)
		}
	}
}

// Sweep evicts every key and alias whose expiry lies before now.
func (s *CleanupScheduler) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()

	keys, err := s.keys.DeleteExpired(ctx, now)
	if err != nil {
		s.sweepErrorsTotal.Add(1)
		return SweepResult{}, fmt.Errorf("sweep keys: %w", err)
	}
	aliases, err := s.aliases.DeleteExpired(ctx, now)
	if err != nil {
		s.sweepErrorsTotal.Add(1)
		return SweepResult{Keys: keys}, fmt.Errorf("sweep aliases: %w", err)
	}

	s.keysRemovedTotal.Add(int64(keys))
	s.aliasesRemovedTotal.Add(int64(aliases))
	if keys > 0 || aliases > 0 {
		log.Printf("cleanup sweep removed keys=%d aliases=%d", keys, aliases)
		s.events.record(ctx, domain.EventKeysSwept, "sweep", "", map[string]int{"keys": keys, "aliases": aliases})
	}
	return SweepResult{Keys: keys, Aliases: aliases}, nil
}

func (s *CleanupScheduler) Metrics() CleanupMetrics {
	return CleanupMetrics{
		KeysRemovedTotal:    s.keysRemovedTotal.Load(),
		AliasesRemovedTotal: s.aliasesRemovedTotal.Load(),
		SweepErrorsTotal:    s.sweepErrorsTotal.Load(),
	}
}
