package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestModelRunsActionAndRendersResult(t *testing.T) {
	m := model{
		title:   "admin reset-password",
		timeout: time.Second,
		action: func(context.Context) ([]string, error) {
			return []string{"user: ops@example.com", SecretPrefix + "abc"}, nil
		},
	}
	if !strings.Contains(m.View(), "working") {
		t.Fatalf("expected pending view, got %q", m.View())
	}
	msg := m.Init()()
	next, _ := m.Update(msg)
	view := next.(model).View()
	if !strings.Contains(view, "OK") || !strings.Contains(view, "ops@example.com") || !strings.Contains(view, "abc") {
		t.Fatalf("unexpected view %q", view)
	}
}

func TestModelRendersFailure(t *testing.T) {
	m := model{title: "admin status", timeout: time.Second, action: func(context.Context) ([]string, error) {
		return nil, errors.New("db unreachable")
	}}
	next, _ := m.Update(m.Init()())
	view := next.(model).View()
	if !strings.Contains(view, "FAILED") || !strings.Contains(view, "db unreachable") {
		t.Fatalf("unexpected view %q", view)
	}
}
