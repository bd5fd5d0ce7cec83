package domain

import (
	"fmt"
	"time"
)

const DefaultCutoffHour = 12

// ExpiryPolicy snaps key expiry to a fixed daily cutoff hour instead of a
// sliding TTL, so every key issued in the same half-day window expires at
// the same wall-clock instant.
type ExpiryPolicy struct {
	CutoffHour int
	// Location is the zone whose calendar days the cutoff is applied to.
	// Nil means the zone of the creation instant.
	Location *time.Location
}

func DefaultExpiryPolicy() ExpiryPolicy {
	return ExpiryPolicy{CutoffHour: DefaultCutoffHour, Location: time.Local}
}

func (p ExpiryPolicy) Validate() error {
	if p.CutoffHour < 0 || p.CutoffHour > 23 {
		return fmt.Errorf("cutoff hour must be within 0..23, got %d", p.CutoffHour)
	}
	return nil
}

// ExpireAt returns the cutoff boundary following now. An instant at or past
// the cutoff hour rolls over to the next calendar day, so exactly
// H:00:00.000 expires a day later.
func (p ExpiryPolicy) ExpireAt(now time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = now.Location()
	}
	local := now.In(loc)
	year, month, day := local.Date()
	if local.Hour() >= p.CutoffHour {
		day++
	}
	return time.Date(year, month, day, p.CutoffHour, 0, 0, 0, loc)
}
