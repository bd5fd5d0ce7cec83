package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
)

const BootstrapAdminKeyName = "bootstrap"

// KeyView is a record with its status derived at read time.
type KeyView struct {
	domain.KeyRecord
	Status domain.KeyStatus
}

// KeyUpdate carries the optional fields of an administrative edit.
// Status accepts "suspended", or "active"/"used" to lift a suspension; the
// reported status is always derived again afterwards.
type KeyUpdate struct {
	DisplayName *string
	Notes       *string
	Status      *string
}

type KeyService struct {
	keys    ports.KeyStore
	aliases ports.AliasStore
	events  eventRecorder
	clock   clock.Clock
}

func NewKeyService(keys ports.KeyStore, aliases ports.AliasStore, events ports.EventLog, c clock.Clock) *KeyService {
	return &KeyService{keys: keys, aliases: aliases, events: eventRecorder{log: events, clock: c}, clock: c}
}

func (s *KeyService) Create(ctx context.Context, name string, keyType domain.KeyType, notes string) (KeyView, error) {
	if err := domain.ValidateDisplayName(name); err != nil {
		return KeyView{}, err
	}
	if !keyType.Valid() {
		return KeyView{}, domain.ErrInvalidKeyType
	}

	rec, err := s.keys.Create(ctx, name, keyType, notes)
	if err != nil {
		return KeyView{}, err
	}
	s.events.record(ctx, domain.EventKeyCreated, domain.MaskKey(rec.Key), "", map[string]any{
		"type":      rec.Type,
		"expire_at": rec.ExpireAt,
	})
	return s.view(rec), nil
}

func (s *KeyService) Get(ctx context.Context, key string) (KeyView, error) {
	rec, err := s.keys.Lookup(ctx, key)
	if err != nil {
		return KeyView{}, err
	}
	return s.view(rec), nil
}

func (s *KeyService) List(ctx context.Context) ([]KeyView, error) {
	recs, err := s.keys.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]KeyView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.view(rec))
	}
	return out, nil
}

func (s *KeyService) Update(ctx context.Context, key string, upd KeyUpdate) (KeyView, error) {
	var suspend *bool
	if upd.Status != nil {
		v, err := parseSuspension(*upd.Status)
		if err != nil {
			return KeyView{}, err
		}
		suspend = &v
	}
	if upd.DisplayName != nil {
		if err := domain.ValidateDisplayName(*upd.DisplayName); err != nil {
			return KeyView{}, err
		}
	}

	// Store mutations are silent for missing keys, so existence is checked here.
	if _, err := s.keys.Lookup(ctx, key); err != nil {
		return KeyView{}, err
	}

	changed := make([]string, 0, 3)
	if upd.DisplayName != nil {
		if err := s.keys.Rename(ctx, key, *upd.DisplayName); err != nil {
			return KeyView{}, fmt.Errorf("rename key: %w", err)
		}
		changed = append(changed, "display_name")
	}
	if upd.Notes != nil {
		if err := s.keys.SetNotes(ctx, key, *upd.Notes); err != nil {
			return KeyView{}, fmt.Errorf("set notes: %w", err)
		}
		changed = append(changed, "notes")
	}
	if suspend != nil {
		if err := s.keys.SetSuspended(ctx, key, *suspend); err != nil {
			return KeyView{}, fmt.Errorf("set suspended: %w", err)
		}
		changed = append(changed, "suspended")
	}

	rec, err := s.keys.Lookup(ctx, key)
	if err != nil {
		return KeyView{}, err
	}
	if len(changed) > 0 {
		s.events.record(ctx, domain.EventKeyUpdated, domain.MaskKey(key), rec.BoundUserID, map[string]any{
			"changed":   changed,
			"suspended": rec.Suspended,
		})
	}
	return s.view(rec), nil
}

// Delete removes a key. Aliases of the agent it was bound to go with it.
func (s *KeyService) Delete(ctx context.Context, key string) (bool, error) {
	rec, err := s.keys.Lookup(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	deleted, err := s.keys.Delete(ctx, key)
	if err != nil || !deleted {
		return deleted, err
	}
	if rec.Type == domain.KeyTypeAgent && rec.Bound() {
		if _, err := s.aliases.InvalidateAllFor(ctx, rec.BoundUserID); err != nil {
			return true, fmt.Errorf("invalidate aliases: %w", err)
		}
	}
	s.events.record(ctx, domain.EventKeyDeleted, domain.MaskKey(key), rec.BoundUserID, nil)
	return true, nil
}

// EnsureAdminKey issues an admin key when no live, unsuspended one exists.
// The second return value reports whether a key was created.
func (s *KeyService) EnsureAdminKey(ctx context.Context) (domain.KeyRecord, bool, error) {
	recs, err := s.keys.List(ctx)
	if err != nil {
		return domain.KeyRecord{}, false, err
	}
	now := s.clock.Now()
	for _, rec := range recs {
		if rec.Type == domain.KeyTypeAdmin && !rec.Suspended && !rec.Expired(now) {
			return rec, false, nil
		}
	}

	view, err := s.Create(ctx, BootstrapAdminKeyName, domain.KeyTypeAdmin, "issued at startup")
	if err != nil {
		return domain.KeyRecord{}, false, fmt.Errorf("issue bootstrap admin key: %w", err)
	}
	log.Printf("bootstrap admin key issued key=%s expire_at=%s", view.Key, view.ExpireAt.Format("2006-01-02T15:04:05Z07:00"))
	return view.KeyRecord, true, nil
}

func (s *KeyService) view(rec domain.KeyRecord) KeyView {
	return KeyView{KeyRecord: rec, Status: domain.DerivedStatus(rec, s.clock.Now())}
}

func parseSuspension(status string) (bool, error) {
	switch domain.KeyStatus(strings.ToLower(strings.TrimSpace(status))) {
	case domain.KeyStatusSuspended:
		return true, nil
	case domain.KeyStatusActive, domain.KeyStatusUsed:
		return false, nil
	default:
		return false, domain.ErrInvalidStatus
	}
}
