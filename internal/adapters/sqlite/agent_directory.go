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

type agentModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	Avatar     string    `gorm:"column:avatar;not null"`
	Status     string    `gorm:"column:status;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null"`
}

func (agentModel) TableName() string {
	return "agents"
}

var _ ports.AgentDirectory = (*AgentDirectory)(nil)

type AgentDirectory struct {
	db    *gormsqlite.DB
	clock clock.Clock
}

func NewAgentDirectory(db *gormsqlite.DB, c clock.Clock) *AgentDirectory {
	return &AgentDirectory{db: db, clock: c}
}

// Register stores agent unless a profile with the same ID exists, and
// returns whichever profile is stored afterwards.
func (d *AgentDirectory) Register(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	if agent.ID == "" {
		return domain.Agent{}, domain.ErrInvalidUserID
	}
	now := d.clock.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	if agent.LastSeenAt.IsZero() {
		agent.LastSeenAt = now
	}
	if agent.Status == "" {
		agent.Status = domain.AgentStatusOffline
	}

	var stored agentModel
	err := d.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		model := agentModel{
			ID:         agent.ID,
			Name:       agent.Name,
			Avatar:     agent.Avatar,
			Status:     string(agent.Status),
			CreatedAt:  agent.CreatedAt.UTC(),
			LastSeenAt: agent.LastSeenAt.UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", agent.ID).First(&stored).Error
	})
	if err != nil {
		return domain.Agent{}, fmt.Errorf("register agent: %w", err)
	}
	return agentToDomain(stored), nil
}

func (d *AgentDirectory) Get(ctx context.Context, id string) (domain.Agent, error) {
	var model agentModel
	err := d.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Agent{}, domain.ErrNotFound
		}
		return domain.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return agentToDomain(model), nil
}

func (d *AgentDirectory) SetStatus(ctx context.Context, id string, status domain.AgentStatus) error {
	var affected int64
	err := d.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&agentModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": string(status), "last_seen_at": d.clock.Now().UTC()})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("set agent status: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func agentToDomain(model agentModel) domain.Agent {
	return domain.Agent{
		ID:         model.ID,
		Name:       model.Name,
		Avatar:     model.Avatar,
		Status:     domain.AgentStatus(model.Status),
		CreatedAt:  model.CreatedAt,
		LastSeenAt: model.LastSeenAt,
	}
}
