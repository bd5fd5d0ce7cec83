package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)

	event := domain.EventEnvelope{
		EventID:       "evt-1",
		EventType:     domain.EventKeyBound,
		SchemaVersion: 1,
		Subject:       "AGENT-AB******",
		UserID:        "agent-1",
		Actor:         "system",
	}
	if err := pub.Publish(context.Background(), event.Topic(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if topic := gotHeaders.Get(HeaderTopic); topic != "deskkeys.key.bound" {
		t.Errorf("%s = %q, want deskkeys.key.bound", HeaderTopic, topic)
	}
	if et := gotHeaders.Get(HeaderEventType); et != domain.EventKeyBound {
		t.Errorf("%s = %q", HeaderEventType, et)
	}
	if id := gotHeaders.Get(HeaderEventID); id != "evt-1" {
		t.Errorf("%s = %q", HeaderEventID, id)
	}
	if !Verify([]byte(secret), gotBody, gotHeaders.Get(HeaderSignature)) {
		t.Errorf("signature %q does not verify", gotHeaders.Get(HeaderSignature))
	}
	if Verify([]byte("other"), gotBody, gotHeaders.Get(HeaderSignature)) {
		t.Error("signature must not verify under a different secret")
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != event.EventID || decoded.Subject != event.Subject {
		t.Errorf("unexpected body %+v", decoded)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-2", EventType: domain.EventKeyDeleted, SchemaVersion: 1}

	err := pub.Publish(context.Background(), event.Topic(), event)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code 500, got: %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-3", EventType: domain.EventKeyCreated, SchemaVersion: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, event.Topic(), event)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}

func TestVerifyRejectsMalformedHeaders(t *testing.T) {
	body := []byte(`{}`)
	for _, h := range []string{"", "sha256=", "md5=abc", Sign([]byte("k"), body)} {
		if Verify([]byte("k"), body, h) {
			t.Errorf("header %q should not verify", h)
		}
	}
}
