package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"

	"gorm.io/gorm"
)

//go:generate mockgen -source=user_repository.go -destination=gomock/mock_user_repository.go -package=repogomock

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Count(ctx context.Context) (int64, error)
	ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.User], error)
	// SetPassword and SetActive bump session_version, invalidating every
	// session token signed before the change.
	SetPassword(ctx context.Context, id uint, hash string, mustChange bool, at time.Time) error
	ReplacePasswordHash(ctx context.Context, id uint, hash string) error
	TouchLastLogin(ctx context.Context, id uint, at time.Time) error
	SetAdmin(ctx context.Context, id uint, admin bool, at time.Time) error
	SetActive(ctx context.Context, id uint, active bool, at time.Time) error
	// Transaction runs fn against a repository bound to a single database
	// transaction; fn's error rolls it back.
	Transaction(ctx context.Context, fn func(UserRepository) error) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, r.lookupErr(ctx, "find_by_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}

// FindByEmail matches the stored email exactly; no case folding or trimming.
func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, r.lookupErr(ctx, "find_by_email", err)
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_email", "success")
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			observability.RecordRepositoryOperation(ctx, "user", "create", "conflict")
			return ErrDuplicateEmail
		}
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "count", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "count", "success")
	return n, nil
}

func (r *GormUserRepository) ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.User], error) {
	req = req.Normalized()
	base := r.db.WithContext(ctx).Model(&domain.User{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	var users []domain.User
	if err := base.Order("email asc").Offset(req.Offset()).Limit(req.PageSize).Find(&users).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "list_paged", "error")
		return PageResult[domain.User]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "list_paged", "success")
	return newPageResult(req, total, users), nil
}

func (r *GormUserRepository) SetPassword(ctx context.Context, id uint, hash string, mustChange bool, at time.Time) error {
	return r.update(ctx, "set_password", id, map[string]any{
		"password_hash":        hash,
		"must_change_password": mustChange,
		"session_version":      gorm.Expr("session_version + ?", 1),
		"updated_at":           at,
	})
}

// ReplacePasswordHash swaps the stored hash for an equivalent one under a
// newer policy. Flags and updated_at stay untouched.
func (r *GormUserRepository) ReplacePasswordHash(ctx context.Context, id uint, hash string) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).UpdateColumn("password_hash", hash)
	return r.checkAffected(ctx, "replace_password_hash", res)
}

// TouchLastLogin records a sign-in without counting as a profile change, so
// updated_at is left alone.
func (r *GormUserRepository) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).UpdateColumn("last_login_at", at)
	return r.checkAffected(ctx, "touch_last_login", res)
}

func (r *GormUserRepository) SetAdmin(ctx context.Context, id uint, admin bool, at time.Time) error {
	return r.update(ctx, "set_admin", id, map[string]any{"is_admin": admin, "updated_at": at})
}

func (r *GormUserRepository) SetActive(ctx context.Context, id uint, active bool, at time.Time) error {
	return r.update(ctx, "set_active", id, map[string]any{
		"is_active":       active,
		"session_version": gorm.Expr("session_version + ?", 1),
		"updated_at":      at,
	})
}

func (r *GormUserRepository) Transaction(ctx context.Context, fn func(UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormUserRepository{db: tx})
	})
}

func (r *GormUserRepository) update(ctx context.Context, op string, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	return r.checkAffected(ctx, op, res)
}

func (r *GormUserRepository) checkAffected(ctx context.Context, op string, res *gorm.DB) error {
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return nil
}

func (r *GormUserRepository) lookupErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "error")
	return err
}
