package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"

	"github.com/sandeepkv93/observation-service/internal/config"
	"github.com/sandeepkv93/observation-service/internal/database"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/repository"
	"github.com/sandeepkv93/observation-service/internal/security"
	"github.com/sandeepkv93/observation-service/internal/service"
	"github.com/sandeepkv93/observation-service/internal/tools/common"
	"github.com/sandeepkv93/observation-service/internal/tools/ui"
)

const toolName = "admin"

// Defaults for create-user: the command exists to provision operators.
const defaultFullName = "Administrator"

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

// env is what every subcommand needs once configuration is loaded. redis and
// meters are only set when the configuration asks for them.
type env struct {
	cfg    *config.Config
	db     *gorm.DB
	hasher *security.PasswordHasher
	redis  redis.UniversalClient
	meters *sdkmetric.MeterProvider
}

func (e *env) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if e.meters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = e.meters.Shutdown(ctx)
		cancel()
	}
}

func (e *env) service() *service.AuthService {
	return service.NewAuthService(repository.NewUserRepository(e.db), e.hasher, nil, e.continuity(), nil)
}

// continuity reaches the shared continuity store so credential changes made
// here retire outstanding tokens. A memory store lives inside the API
// process and is out of reach.
func (e *env) continuity() *service.ContinuityService {
	var store service.ContinuityTokenStore
	switch e.cfg.ContinuityStoreBackend {
	case "database":
		store = service.NewDBContinuityTokenStore(repository.NewContinuityTokenRepository(e.db))
	case "redis":
		if e.redis == nil {
			return nil
		}
		store = service.NewRedisContinuityTokenStore(e.redis, e.cfg.RedisPrefix)
	default:
		return nil
	}
	return service.NewContinuityService(store, e.cfg.ContinuityTokenTTL)
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Account administration for the observation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newBootstrapCommand(opts),
		newStatusCommand(opts),
		newCreateUserCommand(opts),
		newResetPasswordCommand(opts),
	)
	return cmd
}

func newBootstrapCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Migrate the schema and create the initial administrator if no users exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.OutOrStdout(), opts, "bootstrap", func(ctx context.Context, e *env) ([]string, error) {
				return bootstrap(ctx, e)
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report database reachability and account counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.OutOrStdout(), opts, "status", status)
		},
	}
}

func newCreateUserCommand(opts *options) *cobra.Command {
	var in createUserInput
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, or reset an existing one with --reset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.OutOrStdout(), opts, "create-user", func(ctx context.Context, e *env) ([]string, error) {
				return createUser(ctx, e, in)
			})
		},
	}
	cmd.Flags().StringVar(&in.email, "email", "", "login identity")
	cmd.Flags().StringVar(&in.fullName, "full-name", defaultFullName, "display name")
	cmd.Flags().StringVar(&in.password, "password", "", "initial password; generated when empty")
	cmd.Flags().BoolVar(&in.admin, "admin", true, "grant administrator rights; --admin=false for a regular account")
	cmd.Flags().BoolVar(&in.reset, "reset", false, "reset the password when the account already exists")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetPasswordCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Issue a temporary password that must be changed on next login",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.OutOrStdout(), opts, "reset-password", func(ctx context.Context, e *env) ([]string, error) {
				return resetPassword(ctx, e, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login identity")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func bootstrap(ctx context.Context, e *env) ([]string, error) {
	report, err := database.Bootstrap(ctx, e.db, e.hasher, e.cfg.InitialAdminEmail, e.cfg.InitialAdminPassword)
	if err != nil {
		return nil, err
	}
	details := []string{"schema migrated", "users: " + strconv.FormatInt(report.UserCount, 10)}
	if report.AdminCreated {
		details = append(details, "initial administrator created: "+report.AdminEmail, "password change required on first login")
	} else {
		details = append(details, "users already present; no administrator created")
	}
	return details, nil
}

func status(ctx context.Context, e *env) ([]string, error) {
	sqlDB, err := e.db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	count, err := repository.NewUserRepository(e.db).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users (has bootstrap run?): %w", err)
	}
	return []string{
		"database reachable",
		"users: " + strconv.FormatInt(count, 10),
		"continuity store: " + e.cfg.ContinuityStoreBackend,
		"login guard store: " + e.cfg.StateStoreBackend,
	}, nil
}

type createUserInput struct {
	email    string
	fullName string
	password string
	admin    bool
	reset    bool
}

func createUser(ctx context.Context, e *env, in createUserInput) ([]string, error) {
	if in.fullName == "" {
		in.fullName = defaultFullName
	}
	svc := e.service()
	created, err := svc.CreateUser(ctx, service.CreateUserInput{
		Email:    in.email,
		FullName: in.fullName,
		IsAdmin:  in.admin,
		Password: in.password,
	})
	if errors.Is(err, service.ErrEmailExists) && in.reset {
		return resetPassword(ctx, e, in.email)
	}
	if err != nil {
		return nil, err
	}
	details := []string{
		"user: " + created.User.Email,
		"id: " + strconv.FormatUint(uint64(created.User.ID), 10),
		"admin: " + strconv.FormatBool(created.User.IsAdmin),
	}
	if created.TempPassword != "" {
		details = append(details, ui.SecretPrefix+created.TempPassword)
	}
	return details, nil
}

func resetPassword(ctx context.Context, e *env, email string) ([]string, error) {
	user, err := repository.NewUserRepository(e.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", service.ErrUserNotFound, email)
		}
		return nil, err
	}
	temp, err := e.service().ResetPassword(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return []string{"user: " + user.Email, "password reset; change required on next login", ui.SecretPrefix + temp}, nil
}

// execute runs one subcommand and records its outcome and duration under
// the tool.command metrics.
func execute(out io.Writer, opts *options, command string, fn func(context.Context, *env) ([]string, error)) error {
	title := toolName + " " + command
	action := func(ctx context.Context) ([]string, error) {
		e, err := loadEnv(ctx, opts.envFile)
		if err != nil {
			observability.RecordToolCommandRun(ctx, toolName, command, "error")
			return nil, err
		}
		defer e.close()

		start := time.Now()
		details, err := fn(ctx, e)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		observability.RecordToolCommandRun(ctx, toolName, command, outcome)
		observability.RecordToolCommandDuration(ctx, toolName, command, outcome, time.Since(start))
		return details, err
	}

	var (
		details []string
		err     error
	)
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		details, err = action(ctx)
		cancel()
		common.WriteCIResult(out, err == nil, title, details, err)
	} else {
		details, err = ui.Run(title, opts.timeout, action)
	}
	return err
}

func loadEnv(ctx context.Context, envFile string) (*env, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	hasher, err := security.NewPasswordHasher(cfg.PasswordHashAlgorithm, cfg.PasswordHashIterations)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, db: db, hasher: hasher}
	if cfg.ContinuityStoreBackend == "redis" {
		e.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	if cfg.OTELMetricsEnabled {
		// stdout carries the command result.
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		mp, err := observability.InitMetrics(ctx, cfg, logger)
		if err != nil {
			e.close()
			return nil, err
		}
		e.meters = mp
	}
	return e, nil
}
