package domain

import (
	"encoding/json"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	EventKeyCreated       = "key.created"
	EventKeyUpdated       = "key.updated"
	EventKeyDeleted       = "key.deleted"
	EventKeyBound         = "key.bound"
	EventKeyReplaced      = "key.replaced"
	EventKeyRenewed       = "key.renewed"
	EventAliasInvalidated = "alias.invalidated"
	EventAgentRegistered  = "agent.registered"
	EventKeysSwept        = "keys.swept"
)

const (
	OutboxStatusPending    = "pending"
	OutboxStatusDispatched = "dispatched"
	OutboxStatusDead       = "dead"
)

// EventEnvelope is a key-lifecycle event as recorded and published.
// Subject carries a masked key or an alias token, never a raw key.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Subject       string          `json:"subject"`
	UserID        string          `json:"user_id,omitempty"`
	Actor         string          `json:"actor"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Topic is the routing key publishers receive alongside the envelope.
func (e EventEnvelope) Topic() string {
	return "deskkeys." + e.EventType
}

type AuditTrailEvent struct {
	ID            int64           `json:"id"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	Subject       string          `json:"subject"`
	UserID        string          `json:"user_id,omitempty"`
	Actor         string          `json:"actor"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        string          `json:"status"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

type AuditFilter struct {
	EventType string
	UserID    string
	AfterID   int64
	Limit     int
}
