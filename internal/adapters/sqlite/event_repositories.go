package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

type keyEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	EventType     string     `gorm:"column:event_type;not null"`
	SchemaVersion int        `gorm:"column:schema_version;not null"`
	Subject       string     `gorm:"column:subject;not null"`
	UserID        string     `gorm:"column:user_id;not null"`
	Actor         string     `gorm:"column:actor;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	EnvelopeJSON  string     `gorm:"column:envelope_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptMS int64      `gorm:"column:next_attempt_ms;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	OccurredAt    time.Time  `gorm:"column:occurred_at;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (keyEventModel) TableName() string {
	return "key_events"
}

var (
	_ ports.EventLog             = (*EventLog)(nil)
	_ ports.OutboxRepository     = (*OutboxRepository)(nil)
	_ ports.AuditTrailRepository = (*AuditTrailRepository)(nil)
)

// EventLog appends key-lifecycle events. Each row is read back both as an
// audit entry and as a pending outbox delivery.
type EventLog struct {
	db    *gormsqlite.DB
	clock clock.Clock
}

func NewEventLog(db *gormsqlite.DB, c clock.Clock) *EventLog {
	return &EventLog{db: db, clock: c}
}

func (l *EventLog) Append(ctx context.Context, event domain.EventEnvelope) error {
	envelope, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	now := l.clock.Now().UTC()
	model := keyEventModel{
		EventID:       event.EventID,
		EventType:     event.EventType,
		SchemaVersion: event.SchemaVersion,
		Subject:       event.Subject,
		UserID:        event.UserID,
		Actor:         event.Actor,
		Topic:         event.Topic(),
		PayloadJSON:   string(event.Payload),
		EnvelopeJSON:  string(envelope),
		Status:        domain.OutboxStatusPending,
		NextAttemptMS: now.UnixMilli(),
		OccurredAt:    event.OccurredAt.UTC(),
		CreatedAt:     now,
	}
	err = l.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

type AuditTrailRepository struct {
	db *gormsqlite.DB
}

func NewAuditTrailRepository(db *gormsqlite.DB) *AuditTrailRepository {
	return &AuditTrailRepository{db: db}
}

// List returns events newest first. AfterID is a cursor: only events with a
// smaller ID are returned.
func (r *AuditTrailRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	var rows []keyEventModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&keyEventModel{})
		if filter.EventType != "" {
			query = query.Where("event_type = ?", filter.EventType)
		}
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.AfterID > 0 {
			query = query.Where("id < ?", filter.AfterID)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Order("id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	result := make([]domain.AuditTrailEvent, 0, len(rows))
	for _, row := range rows {
		var payload json.RawMessage
		if row.PayloadJSON != "" {
			payload = json.RawMessage(row.PayloadJSON)
		}
		result = append(result, domain.AuditTrailEvent{
			ID:            row.ID,
			EventID:       row.EventID,
			EventType:     row.EventType,
			SchemaVersion: row.SchemaVersion,
			Subject:       row.Subject,
			UserID:        row.UserID,
			Actor:         row.Actor,
			Payload:       payload,
			Status:        row.Status,
			OccurredAt:    row.OccurredAt,
		})
	}
	return result, nil
}

type OutboxRepository struct {
	db    *gormsqlite.DB
	clock clock.Clock
}

func NewOutboxRepository(db *gormsqlite.DB, c clock.Clock) *OutboxRepository {
	return &OutboxRepository{db: db, clock: c}
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []keyEventModel
	now := r.clock.Now().UTC().UnixMilli()
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("status = ? AND next_attempt_ms <= ?", domain.OutboxStatusPending, now).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}

	result := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.OutboxEvent{
			ID:            row.ID,
			EventID:       row.EventID,
			Topic:         row.Topic,
			PayloadJSON:   json.RawMessage(row.EnvelopeJSON),
			Status:        row.Status,
			Attempts:      row.Attempts,
			NextAttemptAt: time.UnixMilli(row.NextAttemptMS).UTC(),
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt,
			DispatchedAt:  row.DispatchedAt,
		})
	}
	return result, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := r.clock.Now().UTC()
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&keyEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": domain.OutboxStatusDispatched, "dispatched_at": &now, "last_error": ""}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error {
	parsed, err := time.Parse(time.RFC3339Nano, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("parse next attempt: %w", err)
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&keyEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"attempts": attempts, "next_attempt_ms": parsed.UnixMilli(), "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&keyEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": domain.OutboxStatusDead, "attempts": attempts, "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox dead: %w", err)
	}
	return nil
}
