package domain

import "time"

type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

// Agent is the directory profile behind an agent identity. The key engine
// treats the ID as opaque and only creates profiles during
// auto-bind-on-first-login.
type Agent struct {
	ID         string
	Name       string
	Avatar     string
	Status     AgentStatus
	CreatedAt  time.Time
	LastSeenAt time.Time
}
