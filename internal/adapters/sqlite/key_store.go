package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

type accessKeyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	KeyType     string    `gorm:"column:key_type;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Notes       string    `gorm:"column:notes;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	ExpireAtMS  int64     `gorm:"column:expire_at_ms;not null"`
	BoundUserID *string   `gorm:"column:bound_user_id"`
	Suspended   bool      `gorm:"column:suspended;not null"`
}

func (accessKeyModel) TableName() string {
	return "access_keys"
}

var _ ports.KeyStore = (*KeyStore)(nil)

// KeyStore persists access keys. Every mutation runs in a write transaction
// on the single-connection writer pool.
type KeyStore struct {
	db     *gormsqlite.DB
	clock  clock.Clock
	policy domain.ExpiryPolicy
	suffix domain.TokenSource
}

type KeyStoreOption func(*KeyStore)

func WithKeySuffixSource(src domain.TokenSource) KeyStoreOption {
	return func(s *KeyStore) { s.suffix = src }
}

func NewKeyStore(db *gormsqlite.DB, c clock.Clock, policy domain.ExpiryPolicy, opts ...KeyStoreOption) *KeyStore {
	s := &KeyStore{
		db:     db,
		clock:  c,
		policy: policy,
		suffix: domain.KeySuffixSource(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KeyStore) Create(ctx context.Context, name string, keyType domain.KeyType, notes string) (domain.KeyRecord, error) {
	if !keyType.Valid() {
		return domain.KeyRecord{}, domain.ErrInvalidKeyType
	}

	now := s.clock.Now()
	rec := domain.KeyRecord{
		Type:        keyType,
		DisplayName: strings.TrimSpace(name),
		Notes:       notes,
		CreatedAt:   now,
		ExpireAt:    s.policy.ExpireAt(now),
	}

	for i := 0; i < domain.MaxGenerateAttempts; i++ {
		suffix, err := s.suffix()
		if err != nil {
			return domain.KeyRecord{}, fmt.Errorf("generate key: %w", err)
		}
		rec.Key = domain.FormatKey(keyType, suffix)

		model := toKeyModel(rec)
		var inserted bool
		err = s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
			if res.Error != nil {
				return res.Error
			}
			inserted = res.RowsAffected > 0
			return nil
		})
		if err != nil {
			return domain.KeyRecord{}, fmt.Errorf("insert key: %w", err)
		}
		if inserted {
			return rec, nil
		}
	}
	return domain.KeyRecord{}, domain.ErrKeySpaceExhausted
}

func (s *KeyStore) Lookup(ctx context.Context, key string) (domain.KeyRecord, error) {
	var model accessKeyModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key = ?", key).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.KeyRecord{}, domain.ErrNotFound
		}
		return domain.KeyRecord{}, fmt.Errorf("lookup key: %w", err)
	}
	return s.toDomain(model), nil
}

func (s *KeyStore) Bind(ctx context.Context, key, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidUserID
	}

	var evicted []string
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var model accessKeyModel
		if err := tx.Where("key = ?", key).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load key: %w", err)
		}

		rec := s.toDomain(model)
		if rec.Type != domain.KeyTypeAgent {
			return domain.ErrWrongType
		}
		if rec.Expired(s.clock.Now()) {
			return domain.ErrExpired
		}
		if rec.Bound() {
			return domain.ErrAlreadyBound
		}

		if err := tx.Model(&accessKeyModel{}).
			Where("bound_user_id = ? AND key <> ?", userID, key).
			Order("key ASC").
			Pluck("key", &evicted).Error; err != nil {
			return fmt.Errorf("load previous keys: %w", err)
		}
		if len(evicted) > 0 {
			if err := tx.Where("key IN ?", evicted).Delete(&accessKeyModel{}).Error; err != nil {
				return fmt.Errorf("evict previous keys: %w", err)
			}
		}

		if err := tx.Model(&accessKeyModel{}).Where("key = ?", key).Update("bound_user_id", userID).Error; err != nil {
			return fmt.Errorf("bind key: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

func (s *KeyStore) SetSuspended(ctx context.Context, key string, suspended bool) error {
	return s.update(ctx, key, "suspended", suspended)
}

func (s *KeyStore) Rename(ctx context.Context, key, name string) error {
	return s.update(ctx, key, "display_name", strings.TrimSpace(name))
}

func (s *KeyStore) SetNotes(ctx context.Context, key, notes string) error {
	return s.update(ctx, key, "notes", notes)
}

// update is silent when the key does not exist.
func (s *KeyStore) update(ctx context.Context, key, column string, value any) error {
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&accessKeyModel{}).Where("key = ?", key).Update(column, value).Error
	})
	if err != nil {
		return fmt.Errorf("update key %s: %w", column, err)
	}
	return nil
}

func (s *KeyStore) Delete(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("key = ?", key).Delete(&accessKeyModel{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete key: %w", err)
	}
	return deleted, nil
}

func (s *KeyStore) List(ctx context.Context) ([]domain.KeyRecord, error) {
	var models []accessKeyModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	out := make([]domain.KeyRecord, 0, len(models))
	for _, model := range models {
		out = append(out, s.toDomain(model))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *KeyStore) BoundTo(ctx context.Context, userID string) (domain.KeyRecord, error) {
	if userID == "" {
		return domain.KeyRecord{}, domain.ErrNotFound
	}
	var model accessKeyModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("bound_user_id = ? AND key_type = ?", userID, string(domain.KeyTypeAgent)).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.KeyRecord{}, domain.ErrNotFound
		}
		return domain.KeyRecord{}, fmt.Errorf("load bound key: %w", err)
	}
	return s.toDomain(model), nil
}

func (s *KeyStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var removed int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("expire_at_ms < ?", now.UnixMilli()).Delete(&accessKeyModel{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired keys: %w", err)
	}
	return int(removed), nil
}

func toKeyModel(rec domain.KeyRecord) accessKeyModel {
	model := accessKeyModel{
		Key:         rec.Key,
		KeyType:     string(rec.Type),
		DisplayName: rec.DisplayName,
		Notes:       rec.Notes,
		CreatedAt:   rec.CreatedAt.UTC(),
		ExpireAtMS:  rec.ExpireAt.UnixMilli(),
		Suspended:   rec.Suspended,
	}
	if rec.BoundUserID != "" {
		bound := rec.BoundUserID
		model.BoundUserID = &bound
	}
	return model
}

func (s *KeyStore) toDomain(model accessKeyModel) domain.KeyRecord {
	rec := domain.KeyRecord{
		Key:         model.Key,
		Type:        domain.KeyType(model.KeyType),
		DisplayName: model.DisplayName,
		Notes:       model.Notes,
		CreatedAt:   model.CreatedAt,
		ExpireAt:    fromMillis(model.ExpireAtMS, s.policy.Location),
		Suspended:   model.Suspended,
	}
	if model.BoundUserID != nil {
		rec.BoundUserID = *model.BoundUserID
	}
	return rec
}

func fromMillis(ms int64, loc *time.Location) time.Time {
	t := time.UnixMilli(ms)
	if loc == nil {
		return t.UTC()
	}
	return t.In(loc)
}
