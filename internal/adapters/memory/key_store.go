package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

var _ ports.KeyStore = (*KeyStore)(nil)

// KeyStore keeps access keys in process memory. One mutex serializes every
// operation, so each call runs to completion without interleaving.
type KeyStore struct {
	mu     sync.Mutex
	keys   map[string]domain.KeyRecord
	clock  clock.Clock
	policy domain.ExpiryPolicy
	suffix domain.TokenSource
}

type KeyStoreOption func(*KeyStore)

// WithKeySuffixSource replaces the random suffix generator.
func WithKeySuffixSource(src domain.TokenSource) KeyStoreOption {
	return func(s *KeyStore) { s.suffix = src }
}

func NewKeyStore(c clock.Clock, policy domain.ExpiryPolicy, opts ...KeyStoreOption) *KeyStore {
	s := &KeyStore{
		keys:   make(map[string]domain.KeyRecord),
		clock:  c,
		policy: policy,
		suffix: domain.KeySuffixSource(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KeyStore) Create(_ context.Context, name string, keyType domain.KeyType, notes string) (domain.KeyRecord, error) {
	if !keyType.Valid() {
		return domain.KeyRecord{}, domain.ErrInvalidKeyType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.uniqueKey(keyType)
	if err != nil {
		return domain.KeyRecord{}, err
	}

	now := s.clock.Now()
	rec := domain.KeyRecord{
		Key:         key,
		Type:        keyType,
		DisplayName: strings.TrimSpace(name),
		Notes:       notes,
		CreatedAt:   now,
		ExpireAt:    s.policy.ExpireAt(now),
	}
	s.keys[key] = rec
	return rec, nil
}

func (s *KeyStore) uniqueKey(keyType domain.KeyType) (string, error) {
	for i := 0; i < domain.MaxGenerateAttempts; i++ {
		suffix, err := s.suffix()
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		key := domain.FormatKey(keyType, suffix)
		if _, taken := s.keys[key]; !taken {
			return key, nil
		}
	}
	return "", domain.ErrKeySpaceExhausted
}

func (s *KeyStore) Lookup(_ context.Context, key string) (domain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return domain.KeyRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *KeyStore) Bind(_ context.Context, key, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if rec.Type != domain.KeyTypeAgent {
		return nil, domain.ErrWrongType
	}
	if rec.Expired(s.clock.Now()) {
		return nil, domain.ErrExpired
	}
	if rec.Bound() {
		return nil, domain.ErrAlreadyBound
	}

	var evicted []string
	for other, otherRec := range s.keys {
		if other != key && otherRec.BoundUserID == userID {
			delete(s.keys, other)
			evicted = append(evicted, other)
		}
	}
	sort.Strings(evicted)

	rec.BoundUserID = userID
	s.keys[key] = rec
	return evicted, nil
}

func (s *KeyStore) SetSuspended(_ context.Context, key string, suspended bool) error {
	s.update(key, func(rec *domain.KeyRecord) { rec.Suspended = suspended })
	return nil
}

func (s *KeyStore) Rename(_ context.Context, key, name string) error {
	s.update(key, func(rec *domain.KeyRecord) { rec.DisplayName = strings.TrimSpace(name) })
	return nil
}

func (s *KeyStore) SetNotes(_ context.Context, key, notes string) error {
	s.update(key, func(rec *domain.KeyRecord) { rec.Notes = notes })
	return nil
}

// update applies fn to an existing record; missing keys are ignored.
func (s *KeyStore) update(key string, fn func(rec *domain.KeyRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return
	}
	fn(&rec)
	s.keys[key] = rec
}

func (s *KeyStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.keys[key]
	delete(s.keys, key)
	return ok, nil
}

func (s *KeyStore) List(_ context.Context) ([]domain.KeyRecord, error) {
	s.mu.Lock()
	out := make([]domain.KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		out = append(out, rec)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *KeyStore) BoundTo(_ context.Context, userID string) (domain.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found domain.KeyRecord
		ok    bool
	)
	for _, rec := range s.keys {
		if rec.Type != domain.KeyTypeAgent || rec.BoundUserID != userID || userID == "" {
			continue
		}
		if !ok || rec.CreatedAt.After(found.CreatedAt) {
			found, ok = rec, true
		}
	}
	if !ok {
		return domain.KeyRecord{}, domain.ErrNotFound
	}
	return found, nil
}

func (s *KeyStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.keys {
		if rec.ExpireAt.Before(now) {
			delete(s.keys, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored records, expired ones included.
func (s *KeyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
