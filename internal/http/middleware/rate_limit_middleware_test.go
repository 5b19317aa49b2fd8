package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.retryAfter, s.err
}

func serveLimited(rl *RateLimiter, remoteAddr string) *httptest.ResponseRecorder {
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLocalFixedWindowLimiter(t *testing.T) {
	l := NewLocalFixedWindowLimiter()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "auth:203.0.113.7", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d should pass: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, retry, _ := l.Allow(ctx, "auth:203.0.113.7", 3, time.Minute)
	if ok {
		t.Fatal("expected fourth request denied")
	}
	if retry != time.Minute {
		t.Fatalf("expected full window retry, got %v", retry)
	}
	if ok, _, _ := l.Allow(ctx, "auth:198.51.100.1", 3, time.Minute); !ok {
		t.Fatal("expected other client unaffected")
	}

	now = now.Add(time.Minute)
	if ok, _, _ := l.Allow(ctx, "auth:203.0.113.7", 3, time.Minute); !ok {
		t.Fatal("expected new window to admit request")
	}
}

func TestRateLimiterRejectsWithRetryAfter(t *testing.T) {
	stub := &stubLimiter{allowed: false, retryAfter: 12 * time.Second}
	rr := serveLimited(NewRateLimiter(stub, 5, time.Minute, FailClosed, "auth"), "203.0.113.7:5555")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "12" {
		t.Fatalf("expected Retry-After 12, got %q", got)
	}
	if len(stub.keys) != 1 || stub.keys[0] != "auth:203.0.113.7" {
		t.Fatalf("expected key scoped to client ip, got %v", stub.keys)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	stub := &stubLimiter{err: errors.New("redis down")}
	if rr := serveLimited(NewRateLimiter(stub, 5, time.Minute, FailOpen, ""), "203.0.113.7:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("fail open should pass request, got %d", rr.Code)
	}
	if rr := serveLimited(NewRateLimiter(stub, 5, time.Minute, FailClosed, ""), "203.0.113.7:1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed should reject request, got %d", rr.Code)
	}
}

func TestRateLimiterDisabledWhenLimitZero(t *testing.T) {
	stub := &stubLimiter{}
	if rr := serveLimited(NewRateLimiter(stub, 0, time.Minute, FailClosed, ""), "203.0.113.7:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
	if len(stub.keys) != 0 {
		t.Fatal("limiter must not be consulted when disabled")
	}
}

func TestClientIPKeyAndRetryAfterHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "bad-addr"
	if got := clientIPKey(req); got != "bad-addr" {
		t.Fatalf("expected raw remote addr fallback, got %q", got)
	}
	if retryAfterHeader(0) != "1" || retryAfterHeader(1500*time.Millisecond) != "2" {
		t.Fatal("unexpected retry-after rounding")
	}
}
