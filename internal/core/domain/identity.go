package domain

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleAgent Role = "agent"
)

// DefaultAdminUserID identifies admin keys that were never bound.
const DefaultAdminUserID = "admin"

// Identity is what a successful login resolves a key to.
type Identity struct {
	Role        Role
	UserID      string
	DisplayName string
	Key         string
	ExpireAt    time.Time
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
