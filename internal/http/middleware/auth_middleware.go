package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/http/response"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/security"
)

type contextKey string

const (
	ClaimsContextKey     contextKey = "claims"
	authSourceContextKey contextKey = "auth_source"
)

const (
	AuthSourceCookie = "cookie"
	AuthSourceBearer = "bearer"
)

// SessionValidator confirms a signed session still matches the stored user
// and returns that user. It fails with security.ErrSessionRevoked once the
// session has been retired.
type SessionValidator interface {
	ValidateSession(ctx context.Context, userID, sessionVersion uint) (*domain.User, error)
}

// AuthMiddleware accepts the session cookie first and falls back to an
// Authorization bearer header. With a validator, every request is checked
// against the user row and the admin and must-change claims are replaced by
// the stored flags.
func AuthMiddleware(jwtMgr *security.JWTManager, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := sessionToken(r)
			if raw == "" {
				observability.RecordSessionTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing session token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				observability.RecordSessionTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
				return
			}
			if sessions != nil {
				uid, _ := claims.UserID()
				user, err := sessions.ValidateSession(r.Context(), uid, claims.SessionVersion)
				switch {
				case errors.Is(err, security.ErrSessionRevoked):
					observability.RecordSessionTokenValidation(r.Context(), "revoked", source)
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid session token", nil)
					return
				case err != nil:
					observability.RecordSessionTokenValidation(r.Context(), "error", source)
					response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "session check unavailable", nil)
					return
				}
				claims.Admin = user.IsAdmin
				claims.MustChangePassword = user.MustChangePassword
			}
			observability.RecordSessionTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, authSourceContextKey, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) (string, string) {
	if raw := security.GetCookie(r, security.SessionCookieName); raw != "" {
		return raw, AuthSourceCookie
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:]), AuthSourceBearer
	}
	return "", ""
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func AuthSourceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(authSourceContextKey).(string)
	return s
}

// RequirePasswordCurrent blocks sessions still flagged must_change_password.
// Routes a rotating user needs (me, change-password, logout) are mounted
// outside it.
func RequirePasswordCurrent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
			return
		}
		if claims.MustChangePassword {
			observability.RecordPasswordChangeGate(r.Context(), "blocked")
			response.Error(w, r, http.StatusForbidden, "PASSWORD_CHANGE_REQUIRED", "password change required", nil)
			return
		}
		observability.RecordPasswordChangeGate(r.Context(), "allowed")
		next.ServeHTTP(w, r)
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
			return
		}
		if !claims.Admin {
			observability.RecordMiddlewareValidationEvent(r.Context(), "admin", "forbidden")
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "administrator access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
