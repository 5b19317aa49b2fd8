package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/observation-service/internal/app"
	"github.com/sandeepkv93/observation-service/internal/config"
	"github.com/sandeepkv93/observation-service/internal/database"
	"github.com/sandeepkv93/observation-service/internal/health"
	"github.com/sandeepkv93/observation-service/internal/http/handler"
	"github.com/sandeepkv93/observation-service/internal/http/middleware"
	"github.com/sandeepkv93/observation-service/internal/http/router"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/repository"
	"github.com/sandeepkv93/observation-service/internal/security"
	"github.com/sandeepkv93/observation-service/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	provideObservabilityRuntime,
	provideAppLogger,
)

var RuntimeInfraSet = wire.NewSet(
	provideRuntimeDB,
	provideRedisClient,
	provideReadinessProbeRunner,
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewContinuityTokenRepository,
)

var SecuritySet = wire.NewSet(
	provideJWTManager,
	provideCookieManager,
	providePasswordHasher,
)

var ServiceSet = wire.NewSet(
	provideLoginAttemptGuard,
	provideContinuityTokenStore,
	provideContinuityService,
	provideTokenService,
	service.NewAuthService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.UserAdminServiceInterface), new(*service.AuthService)),
	wire.Bind(new(middleware.SessionValidator), new(*service.AuthService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewAdminHandler,
	provideAuthRateLimiter,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(provideApp)

func provideObservabilityRuntime(cfg *config.Config) (*observability.Runtime, error) {
	bootstrapLogger := observability.NewBootstrapLogger(cfg)
	return observability.InitRuntime(context.Background(), cfg, bootstrapLogger)
}

func provideAppLogger(cfg *config.Config, runtime *observability.Runtime) *slog.Logger {
	return observability.InitLogger(cfg, runtime.LoggerProvider)
}

func providePasswordHasher(cfg *config.Config) (*security.PasswordHasher, error) {
	return security.NewPasswordHasher(cfg.PasswordHashAlgorithm, cfg.PasswordHashIterations)
}

// provideRuntimeDB opens the store and runs bootstrap so the API never
// serves against a missing schema or an empty users table.
func provideRuntimeDB(cfg *config.Config, hasher *security.PasswordHasher, logger *slog.Logger) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := database.Bootstrap(ctx, db, hasher, cfg.InitialAdminEmail, cfg.InitialAdminPassword)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if report.AdminCreated {
		logger.Warn("initial administrator created; password change required on first login", "email", report.AdminEmail)
	} else {
		logger.Info("bootstrap complete", "users", report.UserCount)
	}
	return db, nil
}

func usesRedis(cfg *config.Config) bool {
	return cfg.StateStoreBackend == "redis" || cfg.ContinuityStoreBackend == "redis"
}

func provideRedisClient(cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	if !usesRedis(cfg) {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	observability.InstrumentRedisClient(client, logger)
	return client
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.SessionIssuer, cfg.SessionAudience, cfg.SessionSecret)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.CookieDomain, cfg.CookieSecure, cfg.CookieSameSite)
}

func loginPolicy(cfg *config.Config) service.LoginPolicy {
	return service.LoginPolicy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginAttemptWindow,
		LockDuration: cfg.LoginLockDuration,
	}
}

func provideLoginAttemptGuard(cfg *config.Config, redisClient redis.UniversalClient) service.LoginAttemptGuard {
	if cfg.StateStoreBackend == "redis" && redisClient != nil {
		return service.NewRedisLoginAttemptGuard(redisClient, cfg.RedisPrefix, loginPolicy(cfg))
	}
	return service.NewInMemoryLoginAttemptGuard(loginPolicy(cfg))
}

func provideContinuityTokenStore(cfg *config.Config, redisClient redis.UniversalClient, repo *repository.GormContinuityTokenRepository) service.ContinuityTokenStore {
	switch cfg.ContinuityStoreBackend {
	case "redis":
		if redisClient != nil {
			return service.NewRedisContinuityTokenStore(redisClient, cfg.RedisPrefix)
		}
	case "database":
		return service.NewDBContinuityTokenStore(repo)
	}
	return service.NewInMemoryContinuityTokenStore()
}

func provideContinuityService(cfg *config.Config, store service.ContinuityTokenStore) *service.ContinuityService {
	return service.NewContinuityService(store, cfg.ContinuityTokenTTL)
}

func provideTokenService(cfg *config.Config, jwt *security.JWTManager) *service.TokenService {
	return service.NewTokenService(jwt, cfg.SessionTTL)
}

func provideAuthHandler(authSvc service.AuthServiceInterface, cookieMgr *security.CookieManager, cfg *config.Config) *handler.AuthHandler {
	return handler.NewAuthHandler(authSvc, cookieMgr, cfg.PublicBaseURL)
}

func provideAuthRateLimiter(cfg *config.Config, redisClient redis.UniversalClient) router.AuthRateLimiterFunc {
	mode := middleware.FailClosed
	if cfg.RateLimitFailOpen {
		mode = middleware.FailOpen
	}
	var limiter middleware.Limiter = middleware.NewLocalFixedWindowLimiter()
	if cfg.StateStoreBackend == "redis" && redisClient != nil {
		limiter = middleware.NewRedisFixedWindowLimiter(redisClient, cfg.RedisPrefix)
	}
	return middleware.NewRateLimiter(limiter, cfg.AuthRateLimitPerMinute, time.Minute, mode, "auth").Middleware()
}

func provideRouterDependencies(
	authHandler *handler.AuthHandler,
	adminHandler *handler.AdminHandler,
	jwt *security.JWTManager,
	sessions middleware.SessionValidator,
	authRateLimiter router.AuthRateLimiterFunc,
	readiness *health.ProbeRunner,
	cfg *config.Config,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:     authHandler,
		AdminHandler:    adminHandler,
		JWTManager:      jwt,
		Sessions:        sessions,
		CORSOrigins:     cfg.CORSAllowedOrigins,
		AuthRateLimiter: authRateLimiter,
		Readiness:       readiness,
		EnableOTelHTTP:  cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func provideReadinessProbeRunner(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(
		cfg.ReadinessProbeTimeout,
		0,
		health.NewDBChecker(db),
		health.NewSchemaChecker(db),
		health.NewRedisChecker(redisClient),
	)
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
) *app.App {
	return app.New(cfg, logger, server, runtime, db, redisClient)
}
