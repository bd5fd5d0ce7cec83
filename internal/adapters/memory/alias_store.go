package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

var _ ports.AliasStore = (*AliasStore)(nil)

// AliasStore keeps short link tokens in process memory. It reads the agent's
// current key from keys when minting, and never the other way round.
type AliasStore struct {
	mu      sync.Mutex
	aliases map[string]domain.AliasRecord
	keys    ports.KeyStore
	clock   clock.Clock
	tokens  domain.TokenSource
}

type AliasStoreOption func(*AliasStore)

func WithAliasTokenSource(src domain.TokenSource) AliasStoreOption {
	return func(s *AliasStore) { s.tokens = src }
}

func NewAliasStore(keys ports.KeyStore, c clock.Clock, opts ...AliasStoreOption) *AliasStore {
	s := &AliasStore{
		aliases: make(map[string]domain.AliasRecord),
		keys:    keys,
		clock:   c,
		tokens:  domain.AliasTokenSource(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AliasStore) GetOrCreate(ctx context.Context, agentID string) (domain.AliasRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	key, err := s.keys.BoundTo(ctx, agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AliasRecord{}, domain.ErrNotFound
		}
		return domain.AliasRecord{}, fmt.Errorf("load bound key: %w", err)
	}
	if key.Expired(now) {
		return domain.AliasRecord{}, domain.ErrNotFound
	}

	for token, rec := range s.aliases {
		if rec.TargetUserID != agentID {
			continue
		}
		if rec.Expired(now) {
			delete(s.aliases, token)
			continue
		}
		return rec, nil
	}

	token, err := s.uniqueToken()
	if err != nil {
		return domain.AliasRecord{}, err
	}
	rec := domain.AliasRecord{
		Token:        token,
		TargetUserID: agentID,
		ExpireAt:     key.ExpireAt,
		CreatedAt:    now,
	}
	s.aliases[token] = rec
	return rec, nil
}

func (s *AliasStore) uniqueToken() (string, error) {
	for i := 0; i < domain.MaxGenerateAttempts; i++ {
		token, err := s.tokens()
		if err != nil {
			return "", fmt.Errorf("generate alias token: %w", err)
		}
		if _, taken := s.aliases[token]; !taken {
			return token, nil
		}
	}
	return "", domain.ErrKeySpaceExhausted
}

func (s *AliasStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.aliases[token]
	if !ok {
		return "", domain.ErrNotFound
	}
	if rec.Expired(s.clock.Now()) {
		delete(s.aliases, token)
		return "", domain.ErrNotFound
	}
	return rec.TargetUserID, nil
}

func (s *AliasStore) InvalidateAllFor(_ context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, rec := range s.aliases {
		if rec.TargetUserID == agentID {
			delete(s.aliases, token)
			removed++
		}
	}
	return removed, nil
}

func (s *AliasStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, rec := range s.aliases {
		if rec.ExpireAt.Before(now) {
			delete(s.aliases, token)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored aliases, expired ones included.
func (s *AliasStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.aliases)
}
