package usecase

import (
	"context"
	"testing"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

type auditRepoStub struct {
	filters []domain.AuditFilter
}

func (r *auditRepoStub) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	r.filters = append(r.filters, filter)
	return nil, nil
}

func TestAuditServiceNormalizesFilter(t *testing.T) {
	repo := &auditRepoStub{}
	s := NewAuditService(repo)

	cases := []struct {
		in   domain.AuditFilter
		want domain.AuditFilter
	}{
		{in: domain.AuditFilter{}, want: domain.AuditFilter{Limit: 100}},
		{in: domain.AuditFilter{Limit: 5000, AfterID: -3}, want: domain.AuditFilter{Limit: 1000}},
		{in: domain.AuditFilter{EventType: " key.bound ", UserID: " a1 ", Limit: 7, AfterID: 9}, want: domain.AuditFilter{EventType: "key.bound", UserID: "a1", Limit: 7, AfterID: 9}},
	}
	for i, tc := range cases {
		if _, err := s.List(context.Background(), tc.in); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got := repo.filters[i]; got != tc.want {
			t.Fatalf("case %d: expected %+v, got %+v", i, tc.want, got)
		}
	}
}
