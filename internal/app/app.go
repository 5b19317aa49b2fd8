package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sandeepkv93/observation-service/internal/config"
	"github.com/sandeepkv93/observation-service/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{Config: cfg, Logger: logger, Server: server, Observability: runtime, DB: db, Redis: redisClient}
}

// Run serves until ctx is cancelled or the listener fails, then shuts
// everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("server starting", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutdown started")
		return a.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown drains HTTP, flushes telemetry and closes the stores. Every step
// runs even if an earlier one failed.
func (a *App) Shutdown(ctx context.Context) error {
	total := durationOr(a.shutdownTimeout(), 20*time.Second)
	totalCtx, totalCancel := context.WithTimeout(ctx, total)
	defer totalCancel()

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(totalCtx, durationOr(a.httpDrainTimeout(), 10*time.Second))
	if err := a.Server.Shutdown(httpCtx); err != nil {
		a.Logger.Error("failed to shutdown http server", "error", err)
		errs = append(errs, err)
	}
	httpCancel()

	if a.Observability != nil {
		obsCtx, obsCancel := context.WithTimeout(totalCtx, durationOr(a.observabilityTimeout(), 8*time.Second))
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Error("failed to shutdown observability", "error", err)
			errs = append(errs, err)
		}
		obsCancel()
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Error("failed to close database connection", "error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config == nil {
		return 0
	}
	return a.Config.ShutdownTimeout
}

func (a *App) httpDrainTimeout() time.Duration {
	if a.Config == nil {
		return 0
	}
	return a.Config.ShutdownHTTPDrainTimeout
}

func (a *App) observabilityTimeout() time.Duration {
	if a.Config == nil {
		return 0
	}
	return a.Config.ShutdownObservabilityTimeout
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
