package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string
	HTTPPort      string
	PublicBaseURL string

	DatabaseURL string

	InitialAdminEmail    string
	InitialAdminPassword string

	PasswordHashAlgorithm  string
	PasswordHashIterations int

	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration
	LoginLockDuration  time.Duration

	ContinuityTokenTTL time.Duration

	AuthRateLimitPerMinute int
	RateLimitFailOpen      bool

	SessionIssuer   string
	SessionAudience string
	SessionSecret   string
	SessionTTL      time.Duration

	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     string
	CORSAllowedOrigins []string

	StateStoreBackend      string
	ContinuityStoreBackend string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	RedisPrefix            string

	ReadinessProbeTimeout        time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSamplingRatio    float64
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELLogLevel              string
}

func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	localLike := isLocalLikeEnv(env)

	cfg := &Config{
		Env:                    env,
		HTTPPort:               getEnv("HTTP_PORT", "8080"),
		PublicBaseURL:          strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseURL:            getEnv("DATABASE_URL", "observations.db"),
		InitialAdminEmail:      getEnv("INITIAL_ADMIN_EMAIL", "admin"),
		InitialAdminPassword:   getEnv("INITIAL_ADMIN_PASSWORD", "admin"),
		PasswordHashAlgorithm:  strings.ToLower(getEnv("PASSWORD_HASH_ALGORITHM", "pbkdf2_sha256")),
		PasswordHashIterations: getEnvInt("PASSWORD_HASH_ITERATIONS", 310000),
		LoginMaxAttempts:       getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
		AuthRateLimitPerMinute: getEnvInt("AUTH_RATE_LIMIT_PER_MIN", 30),
		RateLimitFailOpen:      getEnvBool("RATE_LIMIT_FAIL_OPEN", localLike),
		SessionIssuer:          getEnv("SESSION_ISSUER", "observation-service"),
		SessionAudience:        getEnv("SESSION_AUDIENCE", "observation-service-api"),
		SessionSecret:          os.Getenv("SESSION_SECRET"),
		CookieDomain:           os.Getenv("COOKIE_DOMAIN"),
		CookieSecure:           getEnvBool("COOKIE_SECURE", !localLike),
		CookieSameSite:         strings.ToLower(getEnv("COOKIE_SAMESITE", "lax")),
		CORSAllowedOrigins:     splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		StateStoreBackend:      strings.ToLower(getEnv("STATE_STORE_BACKEND", "memory")),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		RedisPrefix:            getEnv("REDIS_PREFIX", "obs"),

		OTELServiceName:          getEnv("OTEL_SERVICE_NAME", "observation-service"),
		OTELEnvironment:          getEnv("OTEL_ENVIRONMENT", env),
		OTELExporterOTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELTraceSamplingRatio:   getEnvFloat("OTEL_TRACE_SAMPLING_RATIO", 1.0),
		OTELMetricsEnabled:       getEnvBool("OTEL_METRICS_ENABLED", !localLike),
		OTELTracingEnabled:       getEnvBool("OTEL_TRACING_ENABLED", !localLike),
		OTELLogsEnabled:          getEnvBool("OTEL_LOGS_ENABLED", !localLike),
		OTELLogLevel:             strings.ToLower(getEnv("OTEL_LOG_LEVEL", "info")),
	}
	cfg.ContinuityStoreBackend = strings.ToLower(getEnv("CONTINUITY_STORE_BACKEND", cfg.StateStoreBackend))
	if cfg.SessionSecret == "" && localLike {
		cfg.SessionSecret = "dev-only-session-secret-change-me-please"
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"LOGIN_ATTEMPT_WINDOW", "60s", &cfg.LoginAttemptWindow},
		{"LOGIN_LOCK_DURATION", "300s", &cfg.LoginLockDuration},
		{"CONTINUITY_TOKEN_TTL", "1h", &cfg.ContinuityTokenTTL},
		{"SESSION_TTL", "15m", &cfg.SessionTTL},
		{"READINESS_PROBE_TIMEOUT", "1s", &cfg.ReadinessProbeTimeout},
		{"SHUTDOWN_TIMEOUT", "20s", &cfg.ShutdownTimeout},
		{"SHUTDOWN_HTTP_DRAIN_TIMEOUT", "10s", &cfg.ShutdownHTTPDrainTimeout},
		{"SHUTDOWN_OBSERVABILITY_TIMEOUT", "8s", &cfg.ShutdownObservabilityTimeout},
		{"OTEL_METRICS_EXPORT_INTERVAL", "10s", &cfg.OTELMetricsExportInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies base rules everywhere and stricter ones outside
// local-like environments.
func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if strings.TrimSpace(c.InitialAdminEmail) == "" {
		errs = append(errs, "INITIAL_ADMIN_EMAIL must not be empty")
	}
	if c.InitialAdminPassword == "" {
		errs = append(errs, "INITIAL_ADMIN_PASSWORD must not be empty")
	}
	switch c.PasswordHashAlgorithm {
	case "pbkdf2_sha256":
		if c.PasswordHashIterations < 1000 {
			errs = append(errs, "PASSWORD_HASH_ITERATIONS must be >= 1000")
		}
	case "argon2id":
	default:
		errs = append(errs, "PASSWORD_HASH_ALGORITHM must be one of pbkdf2_sha256, argon2id")
	}
	if c.LoginMaxAttempts <= 0 {
		errs = append(errs, "LOGIN_MAX_ATTEMPTS must be > 0")
	}
	if c.LoginAttemptWindow <= 0 {
		errs = append(errs, "LOGIN_ATTEMPT_WINDOW must be > 0")
	}
	if c.LoginLockDuration <= 0 {
		errs = append(errs, "LOGIN_LOCK_DURATION must be > 0")
	}
	if c.AuthRateLimitPerMinute < 0 {
		errs = append(errs, "AUTH_RATE_LIMIT_PER_MIN must be >= 0")
	}
	if c.ContinuityTokenTTL <= 0 || c.ContinuityTokenTTL > 24*time.Hour {
		errs = append(errs, "CONTINUITY_TOKEN_TTL must be between 1s and 24h")
	}
	if len(c.SessionSecret) < 32 {
		errs = append(errs, "SESSION_SECRET must be at least 32 chars")
	}
	if c.SessionTTL <= 0 || c.SessionTTL > time.Hour {
		errs = append(errs, "SESSION_TTL must be between 1s and 1h")
	}
	switch c.CookieSameSite {
	case "lax", "strict", "none":
	default:
		errs = append(errs, "COOKIE_SAMESITE must be one of lax, strict, none")
	}
	switch c.StateStoreBackend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when STATE_STORE_BACKEND=redis")
		}
	default:
		errs = append(errs, "STATE_STORE_BACKEND must be one of memory, redis")
	}
	switch c.ContinuityStoreBackend {
	case "memory", "database":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when CONTINUITY_STORE_BACKEND=redis")
		}
	default:
		errs = append(errs, "CONTINUITY_STORE_BACKEND must be one of memory, redis, database")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if c.ShutdownObservabilityTimeout <= 0 || c.ShutdownObservabilityTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_OBSERVABILITY_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}

	if !isLocalLikeEnv(c.Env) {
		if !c.CookieSecure {
			errs = append(errs, "COOKIE_SECURE must be true outside development")
		}
		if c.CookieSameSite == "none" {
			errs = append(errs, "COOKIE_SAMESITE=none is not allowed outside development")
		}
		if c.PasswordHashAlgorithm == "pbkdf2_sha256" && c.PasswordHashIterations < 100000 {
			errs = append(errs, "PASSWORD_HASH_ITERATIONS must be >= 100000 outside development")
		}
		if c.InitialAdminPassword == "admin" {
			errs = append(errs, "INITIAL_ADMIN_PASSWORD must be changed from the default outside development")
		}
		if !strings.HasPrefix(c.PublicBaseURL, "https://") {
			errs = append(errs, "PUBLIC_BASE_URL must use https outside development")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// UsesSQLite reports whether DatabaseURL names a sqlite file rather than a
// postgres DSN.
func (c *Config) UsesSQLite() bool {
	u := strings.ToLower(c.DatabaseURL)
	return !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") && !strings.Contains(u, "host=")
}

func isLocalLikeEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
