package security

import (
	"net/http"
	"strings"
	"time"
)

const (
	SessionCookieName = "session_token"
	CSRFCookieName    = "csrf_token"
	CSRFHeaderName    = "X-CSRF-Token"
)

type CookieManager struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(domain string, secure bool, sameSite string) *CookieManager {
	mode := http.SameSiteLaxMode
	switch strings.ToLower(sameSite) {
	case "strict":
		mode = http.SameSiteStrictMode
	case "none":
		mode = http.SameSiteNoneMode
	}
	return &CookieManager{Domain: domain, Secure: secure, SameSite: mode}
}

// SetSessionCookies writes the HttpOnly session cookie and the script-readable
// CSRF cookie that cookie-authenticated writes must echo in X-CSRF-Token.
func (m *CookieManager) SetSessionCookies(w http.ResponseWriter, token, csrf string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	http.SetCookie(w, m.cookie(SessionCookieName, token, maxAge, true))
	http.SetCookie(w, m.cookie(CSRFCookieName, csrf, maxAge, false))
}

func (m *CookieManager) ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie(SessionCookieName, "", -1, true))
	http.SetCookie(w, m.cookie(CSRFCookieName, "", -1, false))
}

func (m *CookieManager) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	}
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
