package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type KeyType string

const (
	KeyTypeAdmin KeyType = "admin"
	KeyTypeAgent KeyType = "agent"
)

// MaxDisplayNameLength bounds DisplayName in runes.
const MaxDisplayNameLength = 64

// ParseKeyType accepts the wire names "admin" and "agent", case-insensitively.
func ParseKeyType(raw string) (KeyType, error) {
	switch KeyType(strings.ToLower(strings.TrimSpace(raw))) {
	case KeyTypeAdmin:
		return KeyTypeAdmin, nil
	case KeyTypeAgent:
		return KeyTypeAgent, nil
	default:
		return "", ErrInvalidKeyType
	}
}

func (t KeyType) Valid() bool {
	return t == KeyTypeAdmin || t == KeyTypeAgent
}

// Prefix is the leading segment of every key string of this type.
func (t KeyType) Prefix() string {
	return strings.ToUpper(string(t))
}

// KeyRecord is an issued access key. ExpireAt and Type never change after
// creation; BoundUserID is set at most once and a record that loses its
// binding is deleted rather than cleared.
type KeyRecord struct {
	Key         string
	Type        KeyType
	DisplayName string
	Notes       string
	CreatedAt   time.Time
	ExpireAt    time.Time
	BoundUserID string
	Suspended   bool
}

func (k KeyRecord) Expired(now time.Time) bool {
	return now.After(k.ExpireAt)
}

func (k KeyRecord) Bound() bool {
	return k.BoundUserID != ""
}

type KeyStatus string

const (
	KeyStatusExpired   KeyStatus = "expired"
	KeyStatusSuspended KeyStatus = "suspended"
	KeyStatusUsed      KeyStatus = "used"
	KeyStatusActive    KeyStatus = "active"
)

// DerivedStatus reports the effective state of k at now. Expiry wins over
// suspension, suspension wins over binding.
func DerivedStatus(k KeyRecord, now time.Time) KeyStatus {
	switch {
	case k.Expired(now):
		return KeyStatusExpired
	case k.Suspended:
		return KeyStatusSuspended
	case k.Bound():
		return KeyStatusUsed
	default:
		return KeyStatusActive
	}
}

func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return ErrInvalidName
	}
	return nil
}
