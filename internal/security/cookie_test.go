package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewCookieManagerSameSiteMapping(t *testing.T) {
	if got := NewCookieManager("", true, "strict").SameSite; got != http.SameSiteStrictMode {
		t.Fatalf("strict mapping mismatch: %v", got)
	}
	if got := NewCookieManager("", true, "none").SameSite; got != http.SameSiteNoneMode {
		t.Fatalf("none mapping mismatch: %v", got)
	}
	if got := NewCookieManager("", true, "unexpected").SameSite; got != http.SameSiteLaxMode {
		t.Fatalf("default mapping mismatch: %v", got)
	}
}

func TestCookieManagerSessionCookieFlags(t *testing.T) {
	mgr := NewCookieManager("example.com", true, "strict")
	rr := httptest.NewRecorder()
	mgr.SetSessionCookies(rr, "tok", "csrf", 2*time.Hour)

	cookies := map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		cookies[c.Name] = c
	}
	session := cookies[SessionCookieName]
	if session == nil || session.Value != "tok" || session.Path != "/" || !session.HttpOnly || !session.Secure || session.Domain != "example.com" || session.MaxAge != 7200 {
		t.Fatalf("unexpected session cookie: %#v", session)
	}
	csrf := cookies[CSRFCookieName]
	if csrf == nil || csrf.Value != "csrf" || csrf.HttpOnly || !csrf.Secure {
		t.Fatalf("unexpected csrf cookie: %#v", csrf)
	}
}

func TestCookieManagerClearSessionCookies(t *testing.T) {
	mgr := NewCookieManager("example.com", false, "lax")
	rr := httptest.NewRecorder()
	mgr.ClearSessionCookies(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected two cleared cookies, got %#v", cookies)
	}
	for _, c := range cookies {
		if c.MaxAge != -1 || c.Value != "" {
			t.Fatalf("expected cleared cookie, got %#v", c)
		}
	}
}

func TestGetCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "x"})

	if got := GetCookie(req, SessionCookieName); got != "x" {
		t.Fatalf("unexpected cookie value %q", got)
	}
	if got := GetCookie(req, "missing"); got != "" {
		t.Fatalf("expected empty cookie value for missing cookie, got %q", got)
	}
}
