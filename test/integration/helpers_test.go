package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sandeepkv93/observation-service/internal/config"
	"github.com/sandeepkv93/observation-service/internal/database"
	"github.com/sandeepkv93/observation-service/internal/health"
	"github.com/sandeepkv93/observation-service/internal/http/handler"
	"github.com/sandeepkv93/observation-service/internal/http/middleware"
	"github.com/sandeepkv93/observation-service/internal/http/router"
	"github.com/sandeepkv93/observation-service/internal/repository"
	"github.com/sandeepkv93/observation-service/internal/security"
	"github.com/sandeepkv93/observation-service/internal/service"
)

const testSessionSecret = "integration-session-secret-0123456789"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sessionPayload struct {
	SessionToken       string `json:"session_token"`
	CSRFToken          string `json:"csrf_token"`
	ResumeURL          string `json:"resume_url"`
	MustChangePassword bool   `json:"must_change_password"`
	User               struct {
		ID      uint   `json:"id"`
		Email   string `json:"email"`
		IsAdmin bool   `json:"is_admin"`
	} `json:"user"`
}

// testServer runs the full router over a real listener. Login attempts,
// continuity tokens and rate limits live in miniredis so the Redis code paths
// are exercised end to end.
type testServer struct {
	baseURL string
	db      *gorm.DB
	redis   *miniredis.Miniredis
}

func newTestServer(t *testing.T, db *gorm.DB) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := security.NewPasswordHasher("pbkdf2_sha256", 1000)
	require.NoError(t, err)
	_, err = database.Bootstrap(context.Background(), db, hasher, "admin", "admin")
	require.NoError(t, err)

	jwtMgr := security.NewJWTManager("observation-service", "observation-service-api", testSessionSecret)
	authSvc := service.NewAuthService(
		repository.NewUserRepository(db),
		hasher,
		service.NewRedisLoginAttemptGuard(client, "it", service.DefaultLoginPolicy()),
		service.NewContinuityService(service.NewRedisContinuityTokenStore(client, "it"), time.Hour),
		service.NewTokenService(jwtMgr, time.Hour),
	)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.Handle("/", router.NewRouter(router.Dependencies{
		AuthHandler:  handler.NewAuthHandler(authSvc, security.NewCookieManager("", false, "lax"), srv.URL),
		AdminHandler: handler.NewAdminHandler(authSvc),
		JWTManager:   jwtMgr,
		Sessions:     authSvc,
		CORSOrigins:  []string{"http://localhost:3000"},
		AuthRateLimiter: middleware.NewRateLimiter(
			middleware.NewRedisFixedWindowLimiter(client, "it"), 100, time.Minute, middleware.FailClosed, "auth",
		).Middleware(),
		Readiness: health.NewProbeRunner(time.Second, 0,
			health.NewDBChecker(db), health.NewSchemaChecker(db), health.NewRedisChecker(client)),
	}))
	return &testServer{baseURL: srv.URL, db: db, redis: mr}
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.Config{DatabaseURL: filepath.Join(t.TempDir(), "integration.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// browser is a cookie-carrying client, the way the web UI talks to the API.
type browser struct {
	t      *testing.T
	client *http.Client
	csrf   string
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, client: &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(method, target string, body any) (*http.Response, apiEnvelope) {
	b.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, target, rdr)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.csrf != "" {
		req.Header.Set(security.CSRFHeaderName, b.csrf)
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	var env apiEnvelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(raw) > 0 {
		require.NoError(b.t, json.Unmarshal(raw, &env), "body: %s", raw)
	}
	return resp, env
}

func (b *browser) session(env apiEnvelope) sessionPayload {
	b.t.Helper()
	var s sessionPayload
	require.NoError(b.t, json.Unmarshal(env.Data, &s))
	if s.CSRFToken != "" {
		b.csrf = s.CSRFToken
	}
	return s
}

func (b *browser) login(baseURL, email, password string) (*http.Response, apiEnvelope) {
	b.t.Helper()
	return b.do(http.MethodPost, baseURL+"/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

func resumeParam(t *testing.T, resumeURL string) string {
	t.Helper()
	u, err := url.Parse(resumeURL)
	require.NoError(t, err)
	return u.Query().Get("t")
}
