package domain

import (
	"testing"
	"time"
)

func TestExpiryPolicyExpireAt(t *testing.T) {
	policy := ExpiryPolicy{CutoffHour: 12, Location: time.UTC}
	day := func(d, h, m, s, ns int) time.Time {
		return time.Date(2026, 5, d, h, m, s, ns, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "midnight", now: day(10, 0, 0, 0, 0), want: day(10, 12, 0, 0, 0)},
		{name: "morning", now: day(10, 10, 0, 0, 0), want: day(10, 12, 0, 0, 0)},
		{name: "just before cutoff", now: day(10, 11, 59, 59, 999999999), want: day(10, 12, 0, 0, 0)},
		{name: "exactly at cutoff", now: day(10, 12, 0, 0, 0), want: day(11, 12, 0, 0, 0)},
		{name: "afternoon", now: day(10, 15, 30, 0, 0), want: day(11, 12, 0, 0, 0)},
		{name: "last second of day", now: day(10, 23, 59, 59, 0), want: day(11, 12, 0, 0, 0)},
		{name: "month rollover", now: time.Date(2026, 5, 31, 13, 0, 0, 0, time.UTC), want: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		if got := policy.ExpireAt(tt.now); !got.Equal(tt.want) {
			t.Fatalf("%s: expire at %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExpiryPolicySameWindowSameBoundary(t *testing.T) {
	policy := ExpiryPolicy{CutoffHour: 12, Location: time.UTC}
	first := policy.ExpireAt(time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC))
	for _, h := range []int{13, 17, 20, 23} {
		got := policy.ExpireAt(time.Date(2026, 5, 10, h, 45, 0, 0, time.UTC))
		if !got.Equal(first) {
			t.Fatalf("hour %d: expected shared boundary %v, got %v", h, first, got)
		}
	}
	next := policy.ExpireAt(time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC))
	if !next.Equal(first) {
		t.Fatalf("early next day should share boundary %v, got %v", first, next)
	}
}

func TestExpiryPolicyUsesConfiguredLocation(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	policy := ExpiryPolicy{CutoffHour: 12, Location: zone}

	// 10:00 UTC is 13:00 in UTC+3, past the cutoff there.
	got := policy.ExpireAt(time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC))
	want := time.Date(2026, 5, 11, 12, 0, 0, 0, zone)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpiryPolicyNilLocationFollowsInstant(t *testing.T) {
	policy := ExpiryPolicy{CutoffHour: 18}
	got := policy.ExpireAt(time.Date(2026, 5, 10, 17, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExpiryPolicyValidate(t *testing.T) {
	for _, h := range []int{0, 12, 23} {
		if err := (ExpiryPolicy{CutoffHour: h}).Validate(); err != nil {
			t.Fatalf("hour %d should be valid: %v", h, err)
		}
	}
	for _, h := range []int{-1, 24} {
		if err := (ExpiryPolicy{CutoffHour: h}).Validate(); err == nil {
			t.Fatalf("hour %d should be rejected", h)
		}
	}
}
