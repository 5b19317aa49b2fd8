package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func TestBuildAuditEventIncludesRequiredFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	req.Header.Set("X-Request-Id", "req-test-1")
	req.RemoteAddr = "127.0.0.1:12345"

	ev := BuildAuditEvent(req, AuditInput{
		EventName:   "auth.login",
		ActorUserID: "42",
		TargetType:  "user",
		TargetID:    "42",
		Action:      "login",
		Outcome:     "success",
		Reason:      "credentials_valid",
	})

	if ev.EventVersion != 1 {
		t.Fatalf("expected event version 1, got %d", ev.EventVersion)
	}
	if ev.ActorIP != "127.0.0.1" {
		t.Fatalf("unexpected actor ip: %s", ev.ActorIP)
	}
	if ev.RequestID != "req-test-1" {
		t.Fatalf("unexpected request id: %s", ev.RequestID)
	}
	if _, err := time.Parse(time.RFC3339, ev.TS); err != nil {
		t.Fatalf("expected RFC3339 ts, got %q err=%v", ev.TS, err)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestBuildAuditEventDefaultsUnknownActor(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	ev := BuildAuditEvent(req, AuditInput{EventName: "auth.login", Action: "login", Outcome: "failure", Reason: "account_locked"})
	if ev.ActorUserID != "unknown" {
		t.Fatalf("expected unknown actor placeholder, got %+v", ev)
	}
	if _, err := uuid.Parse(ev.RequestID); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", ev.RequestID)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestBuildAuditEventPrefersChiRequestID(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/admin/users", nil)
	req.Header.Set("X-Request-Id", "from-header")
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "from-chi"))
	if got := BuildAuditEvent(req, AuditInput{EventName: "admin.user.create"}).RequestID; got != "from-chi" {
		t.Fatalf("expected chi request id, got %q", got)
	}
}

func TestAuditEventValidateRejectsMissingEventName(t *testing.T) {
	ev := AuditEvent{
		EventVersion: 1,
		ActorUserID:  "42",
		ActorIP:      "127.0.0.1",
		TargetType:   "user",
		TargetID:     "42",
		Action:       "login",
		Outcome:      "success",
		Reason:       "ok",
		RequestID:    "req-1",
		TS:           time.Now().UTC().Format(time.RFC3339),
	}
	if err := ev.Validate(); err == nil {
		t.Fatal("expected validation error for missing event_name")
	}
}
