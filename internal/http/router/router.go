package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/observation-service/internal/health"
	"github.com/sandeepkv93/observation-service/internal/http/handler"
	"github.com/sandeepkv93/observation-service/internal/http/middleware"
	"github.com/sandeepkv93/observation-service/internal/http/response"
	"github.com/sandeepkv93/observation-service/internal/security"
)

type Dependencies struct {
	AuthHandler     *handler.AuthHandler
	AdminHandler    *handler.AdminHandler
	JWTManager      *security.JWTManager
	Sessions        middleware.SessionValidator
	CORSOrigins     []string
	AuthRateLimiter AuthRateLimiterFunc
	Readiness       *health.ProbeRunner
	EnableOTelHTTP  bool
}

// AuthRateLimiterFunc throttles the unauthenticated credential endpoints.
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = func(next http.Handler) http.Handler { return next }
	}
	authenticated := middleware.AuthMiddleware(dep.JWTManager, dep.Sessions)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Get("/resume", dep.AuthHandler.Resume)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(authenticated, middleware.CSRFMiddleware).Post("/change-password", dep.AuthHandler.ChangePassword)
		})

		// Reachable while a password change is pending.
		r.With(authenticated).Get("/me", dep.AuthHandler.Me)

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequirePasswordCurrent)
			r.Use(middleware.RequireAdmin)
			r.Use(middleware.CSRFMiddleware)
			r.Get("/users", dep.AdminHandler.ListUsers)
			r.Post("/users", dep.AdminHandler.CreateUser)
			r.Post("/users/{id}/reset-password", dep.AdminHandler.ResetPassword)
			r.Patch("/users/{id}", dep.AdminHandler.UpdateUser)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
