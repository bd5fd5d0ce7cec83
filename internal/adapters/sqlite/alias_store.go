package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

type aliasModel struct {
	Token        string    `gorm:"column:token;primaryKey"`
	TargetUserID string    `gorm:"column:target_user_id;not null"`
	ExpireAtMS   int64     `gorm:"column:expire_at_ms;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (aliasModel) TableName() string {
	return "alias_tokens"
}

var _ ports.AliasStore = (*AliasStore)(nil)

// AliasStore persists short link tokens next to the keys they are pinned
// to, so minting reads the bound key in the same transaction.
type AliasStore struct {
	db       *gormsqlite.DB
	clock    clock.Clock
	location *time.Location
	tokens   domain.TokenSource
}

type AliasStoreOption func(*AliasStore)

func WithAliasTokenSource(src domain.TokenSource) AliasStoreOption {
	return func(s *AliasStore) { s.tokens = src }
}

func NewAliasStore(db *gormsqlite.DB, c clock.Clock, location *time.Location, opts ...AliasStoreOption) *AliasStore {
	s := &AliasStore{
		db:       db,
		clock:    c,
		location: location,
		tokens:   domain.AliasTokenSource(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AliasStore) GetOrCreate(ctx context.Context, agentID string) (domain.AliasRecord, error) {
	var out domain.AliasRecord
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		now := s.clock.Now()

		var key accessKeyModel
		err := tx.Where("bound_user_id = ? AND key_type = ?", agentID, string(domain.KeyTypeAgent)).First(&key).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("load bound key: %w", err)
		}
		keyExpireAt := fromMillis(key.ExpireAtMS, s.location)
		if now.After(keyExpireAt) {
			return domain.ErrNotFound
		}

		var existing aliasModel
		err = tx.Where("target_user_id = ?", agentID).First(&existing).Error
		switch {
		case err == nil:
			rec := s.toDomain(existing)
			if !rec.Expired(now) {
				out = rec
				return nil
			}
			if err := tx.Where("token = ?", existing.Token).Delete(&aliasModel{}).Error; err != nil {
				return fmt.Errorf("evict expired alias: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("load alias: %w", err)
		}

		for i := 0; i < domain.MaxGenerateAttempts; i++ {
			token, err := s.tokens()
			if err != nil {
				return fmt.Errorf("generate alias token: %w", err)
			}
			model := aliasModel{
				Token:        token,
				TargetUserID: agentID,
				ExpireAtMS:   key.ExpireAtMS,
				CreatedAt:    now.UTC(),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
			if res.Error != nil {
				return fmt.Errorf("insert alias: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				out = s.toDomain(model)
				return nil
			}
		}
		return domain.ErrKeySpaceExhausted
	})
	if err != nil {
		return domain.AliasRecord{}, err
	}
	return out, nil
}

func (s *AliasStore) Resolve(ctx context.Context, token string) (string, error) {
	var model aliasModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token = ?", token).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("resolve alias: %w", err)
	}

	if s.toDomain(model).Expired(s.clock.Now()) {
		err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
			return tx.Where("token = ? AND expire_at_ms = ?", token, model.ExpireAtMS).Delete(&aliasModel{}).Error
		})
		if err != nil {
			return "", fmt.Errorf("evict expired alias: %w", err)
		}
		return "", domain.ErrNotFound
	}
	return model.TargetUserID, nil
}

func (s *AliasStore) InvalidateAllFor(ctx context.Context, agentID string) (int, error) {
	var removed int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("target_user_id = ?", agentID).Delete(&aliasModel{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("invalidate aliases: %w", err)
	}
	return int(removed), nil
}

func (s *AliasStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var removed int64
	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("expire_at_ms < ?", now.UnixMilli()).Delete(&aliasModel{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired aliases: %w", err)
	}
	return int(removed), nil
}

func (s *AliasStore) toDomain(model aliasModel) domain.AliasRecord {
	return domain.AliasRecord{
		Token:        model.Token,
		TargetUserID: model.TargetUserID,
		ExpireAt:     fromMillis(model.ExpireAtMS, s.location),
		CreatedAt:    model.CreatedAt,
	}
}
