package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

// KeyStore owns every KeyRecord. Each method is atomic with respect to all
// others. Errors other than the documented domain sentinels indicate a
// storage failure.
type KeyStore interface {
	// Create issues a new key with a unique key string and an aligned expiry.
	Create(ctx context.Context, name string, keyType domain.KeyType, notes string) (domain.KeyRecord, error)
	// Lookup is a pure read; expired records are returned as-is.
	Lookup(ctx context.Context, key string) (domain.KeyRecord, error)
	// Bind fails with ErrNotFound, ErrWrongType, ErrExpired or ErrAlreadyBound.
	// On success every other key bound to userID is deleted and returned.
	Bind(ctx context.Context, key, userID string) ([]string, error)
	SetSuspended(ctx context.Context, key string, suspended bool) error
	Rename(ctx context.Context, key, name string) error
	SetNotes(ctx context.Context, key, notes string) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]domain.KeyRecord, error)
	// BoundTo returns the agent key bound to userID, expired or not.
	BoundTo(ctx context.Context, userID string) (domain.KeyRecord, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AliasStore owns short link tokens. Alias expiry is pinned to the bound
// key at creation time.
type AliasStore interface {
	// GetOrCreate returns ErrNotFound when the agent has no live bound key.
	GetOrCreate(ctx context.Context, agentID string) (domain.AliasRecord, error)
	// Resolve deletes an expired record and reports ErrNotFound.
	Resolve(ctx context.Context, token string) (string, error)
	InvalidateAllFor(ctx context.Context, agentID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
