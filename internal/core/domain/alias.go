package domain

import "time"

// AliasRecord is a short link token resolving to an agent. ExpireAt is
// copied from the agent's key when the alias is minted and never moves.
type AliasRecord struct {
	Token        string
	TargetUserID string
	ExpireAt     time.Time
	CreatedAt    time.Time
}

func (a AliasRecord) Expired(now time.Time) bool {
	return now.After(a.ExpireAt)
}
