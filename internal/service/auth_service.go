package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/repository"
	"github.com/sandeepkv93/observation-service/internal/security"
)

var (
	ErrAccountLocked          = errors.New("account temporarily locked")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailExists            = errors.New("email already registered")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidContinuityToken = errors.New("invalid or expired continuity token")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionRevoked         = security.ErrSessionRevoked
)

// AuthService is the authentication core. Identities are emails exactly as
// submitted; nothing here folds case or trims.
type AuthService struct {
	users      repository.UserRepository
	hasher     *security.PasswordHasher
	guard      LoginAttemptGuard
	continuity *ContinuityService
	tokens     *TokenService
	now        func() time.Time
}

type LoginResult struct {
	User                *domain.User `json:"user"`
	SessionToken        string       `json:"-"`
	SessionExpiresAt    time.Time    `json:"session_expires_at"`
	ContinuityToken     string       `json:"-"`
	ContinuityExpiresAt time.Time    `json:"continuity_expires_at,omitempty"`
}

type CreateUserInput struct {
	Email       string
	FullName    string
	IsAdmin     bool
	CreatedByID *uint
	// Password is used verbatim when set; otherwise a temporary one is generated.
	Password string
}

type CreatedUser struct {
	User         *domain.User
	TempPassword string
}

func NewAuthService(
	users repository.UserRepository,
	hasher *security.PasswordHasher,
	guard LoginAttemptGuard,
	continuity *ContinuityService,
	tokens *TokenService,
) *AuthService {
	if guard == nil {
		guard = NoopLoginAttemptGuard{}
	}
	return &AuthService{
		users:      users,
		hasher:     hasher,
		guard:      guard,
		continuity: continuity,
		tokens:     tokens,
		now:        time.Now,
	}
}

// Authenticate checks the lock before touching the user table. Unknown
// emails and inactive accounts return ErrInvalidCredentials without counting
// a failure; only a wrong password against an existing row counts.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := observability.StartAuthSpan(ctx, "authenticate")
	user, err := s.authenticate(ctx, email, password)
	observability.EndAuthSpan(span, err)
	return user, err
}

func (s *AuthService) authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	locked, err := s.guard.IsLocked(ctx, email)
	if err != nil {
		observability.RecordAuthLogin(ctx, "password", "error")
		return nil, fmt.Errorf("check login lock: %w", err)
	}
	if locked {
		observability.RecordAuthLogin(ctx, "password", "locked")
		return nil, ErrAccountLocked
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin(ctx, "password", "unknown_user")
			return nil, ErrInvalidCredentials
		}
		observability.RecordAuthLogin(ctx, "password", "error")
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		if _, err := s.guard.RecordFailure(ctx, email); err != nil {
			observability.RecordAuthLogin(ctx, "password", "error")
			return nil, fmt.Errorf("record login failure: %w", err)
		}
		observability.RecordAuthLogin(ctx, "password", "bad_password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		observability.RecordAuthLogin(ctx, "password", "inactive")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	err = s.users.Transaction(ctx, func(tx repository.UserRepository) error {
		if s.hasher.NeedsRehash(user.PasswordHash) {
			hash, err := s.hasher.Hash(password)
			if err != nil {
				return err
			}
			if err := tx.ReplacePasswordHash(ctx, user.ID, hash); err != nil {
				return err
			}
			user.PasswordHash = hash
			observability.RecordPasswordEvent(ctx, "rehash", "success")
		}
		return tx.TouchLastLogin(ctx, user.ID, now)
	})
	if err != nil {
		observability.RecordAuthLogin(ctx, "password", "error")
		return nil, fmt.Errorf("record login: %w", err)
	}
	if err := s.guard.Clear(ctx, email); err != nil {
		observability.RecordAuthLogin(ctx, "password", "error")
		return nil, fmt.Errorf("clear login failures: %w", err)
	}
	user.LastLoginAt = &now
	observability.RecordAuthLogin(ctx, "password", "success")
	return user, nil
}

// Login authenticates and issues both a session token and a continuity
// token. It is the only path that mints continuity tokens.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, tokenExp, err := s.continuity.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue continuity token: %w", err)
	}
	res, err := s.sessionFor(user)
	if err != nil {
		return nil, err
	}
	res.ContinuityToken = token
	res.ContinuityExpiresAt = tokenExp
	return res, nil
}

// Resume exchanges a live continuity token for a fresh session token. The
// continuity token itself is left as is.
func (s *AuthService) Resume(ctx context.Context, token string) (*LoginResult, error) {
	ctx, span := observability.StartAuthSpan(ctx, "resume")
	res, err := s.resume(ctx, token)
	observability.EndAuthSpan(span, err)
	return res, err
}

func (s *AuthService) resume(ctx context.Context, token string) (*LoginResult, error) {
	userID, ok, err := s.continuity.Redeem(ctx, token)
	if err != nil {
		observability.RecordAuthLogin(ctx, "continuity", "error")
		return nil, fmt.Errorf("redeem continuity token: %w", err)
	}
	if !ok {
		observability.RecordAuthLogin(ctx, "continuity", "rejected")
		return nil, ErrInvalidContinuityToken
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin(ctx, "continuity", "rejected")
			return nil, ErrInvalidContinuityToken
		}
		observability.RecordAuthLogin(ctx, "continuity", "error")
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		observability.RecordAuthLogin(ctx, "continuity", "inactive")
		return nil, ErrInvalidContinuityToken
	}
	observability.RecordAuthLogin(ctx, "continuity", "success")
	return s.sessionFor(user)
}

// Session re-signs a session token from the stored user row.
func (s *AuthService) Session(ctx context.Context, userID uint) (*LoginResult, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return s.sessionFor(user)
}

// ValidateSession checks a presented session against the stored user. A
// password reset or change, or a deactivation, bumps the stored version and
// so retires every token signed earlier. The returned row carries the live
// admin and must-change flags.
func (s *AuthService) ValidateSession(ctx context.Context, userID, sessionVersion uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive || user.SessionVersion != sessionVersion {
		return nil, ErrSessionRevoked
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*domain.User, error) {
	return s.findUser(ctx, userID)
}

func (s *AuthService) Logout(ctx context.Context, continuityToken string) error {
	if err := s.continuity.Revoke(ctx, continuityToken); err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return fmt.Errorf("revoke continuity token: %w", err)
	}
	observability.RecordAuthLogout(ctx, "success")
	return nil
}

// CreateUser never touches an existing row: a taken email, whether seen up
// front or raced at insert time, yields ErrEmailExists.
func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*CreatedUser, error) {
	if in.Email == "" || strings.TrimSpace(in.FullName) == "" {
		observability.RecordAdminUserMutation(ctx, "create", "rejected")
		return nil, fmt.Errorf("%w: email and full name are required", ErrInvalidInput)
	}

	password := in.Password
	generated := password == ""
	if generated {
		var err error
		password, err = security.NewTempPassword()
		if err != nil {
			observability.RecordAdminUserMutation(ctx, "create", "error")
			return nil, err
		}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		observability.RecordAdminUserMutation(ctx, "create", "error")
		return nil, err
	}

	user := &domain.User{
		Email:              in.Email,
		FullName:           in.FullName,
		PasswordHash:       hash,
		IsActive:           true,
		IsAdmin:            in.IsAdmin,
		MustChangePassword: true,
		CreatedByID:        in.CreatedByID,
	}
	err = s.users.Transaction(ctx, func(tx repository.UserRepository) error {
		if in.CreatedByID != nil {
			if _, err := tx.FindByID(ctx, *in.CreatedByID); err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					return fmt.Errorf("%w: creator %d does not exist", ErrInvalidInput, *in.CreatedByID)
				}
				return err
			}
		}
		if _, err := tx.FindByEmail(ctx, in.Email); err == nil {
			return ErrEmailExists
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		if err := tx.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return ErrEmailExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailExists):
			observability.RecordAdminUserMutation(ctx, "create", "conflict")
			return nil, err
		case errors.Is(err, ErrInvalidInput):
			observability.RecordAdminUserMutation(ctx, "create", "rejected")
			return nil, err
		default:
			observability.RecordAdminUserMutation(ctx, "create", "error")
			return nil, fmt.Errorf("create user: %w", err)
		}
	}
	observability.RecordAdminUserMutation(ctx, "create", "success")

	out := &CreatedUser{User: user}
	if generated {
		out.TempPassword = password
	}
	return out, nil
}

// ResetPassword replaces the password with a fresh temporary one and forces
// rotation. Callers enforce who may do this.
func (s *AuthService) ResetPassword(ctx context.Context, userID uint) (string, error) {
	temp, err := security.NewTempPassword()
	if err != nil {
		observability.RecordPasswordEvent(ctx, "reset", "error")
		return "", err
	}
	if err := s.setPassword(ctx, "reset", userID, temp, true); err != nil {
		return "", err
	}
	return temp, nil
}

// ChangePassword stores newPassword and clears the must-change flag. There
// is no strength policy beyond rejecting an empty value.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, newPassword string) error {
	if newPassword == "" {
		observability.RecordPasswordEvent(ctx, "change", "rejected")
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	return s.setPassword(ctx, "change", userID, newPassword, false)
}

func (s *AuthService) ListUsers(ctx context.Context, req repository.PageRequest) (repository.PageResult[domain.User], error) {
	return s.users.ListPaged(ctx, req)
}

func (s *AuthService) SetAdmin(ctx context.Context, userID uint, admin bool) (*domain.User, error) {
	return s.toggle(ctx, "set_admin", userID, func(tx repository.UserRepository, at time.Time) error {
		return tx.SetAdmin(ctx, userID, admin, at)
	})
}

// SetActive(false) also drops the user's continuity tokens.
func (s *AuthService) SetActive(ctx context.Context, userID uint, active bool) (*domain.User, error) {
	user, err := s.toggle(ctx, "set_active", userID, func(tx repository.UserRepository, at time.Time) error {
		return tx.SetActive(ctx, userID, active, at)
	})
	if err != nil {
		return nil, err
	}
	if !active {
		if err := s.revokeContinuity(ctx, userID); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *AuthService) toggle(ctx context.Context, action string, userID uint, fn func(repository.UserRepository, time.Time) error) (*domain.User, error) {
	var updated *domain.User
	err := s.users.Transaction(ctx, func(tx repository.UserRepository) error {
		if err := fn(tx, s.now().UTC()); err != nil {
			return err
		}
		u, err := tx.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAdminUserMutation(ctx, action, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordAdminUserMutation(ctx, action, "error")
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	observability.RecordAdminUserMutation(ctx, action, "success")
	return updated, nil
}

func (s *AuthService) setPassword(ctx context.Context, action string, userID uint, password string, mustChange bool) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		observability.RecordPasswordEvent(ctx, action, "error")
		return err
	}
	err = s.users.Transaction(ctx, func(tx repository.UserRepository) error {
		return tx.SetPassword(ctx, userID, hash, mustChange, s.now().UTC())
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordPasswordEvent(ctx, action, "not_found")
			return ErrUserNotFound
		}
		observability.RecordPasswordEvent(ctx, action, "error")
		return fmt.Errorf("%s password: %w", action, err)
	}
	if err := s.revokeContinuity(ctx, userID); err != nil {
		observability.RecordPasswordEvent(ctx, action, "error")
		return err
	}
	observability.RecordPasswordEvent(ctx, action, "success")
	return nil
}

func (s *AuthService) revokeContinuity(ctx context.Context, userID uint) error {
	if s.continuity == nil {
		return nil
	}
	if err := s.continuity.RevokeUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke continuity tokens: %w", err)
	}
	return nil
}

func (s *AuthService) findUser(ctx context.Context, userID uint) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *AuthService) sessionFor(user *domain.User) (*LoginResult, error) {
	session, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &LoginResult{
		User:             user,
		SessionToken:     session.Token,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}
