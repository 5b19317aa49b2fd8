package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"

	"gorm.io/gorm"
)

// GormContinuityTokenRepository persists continuity tokens in login_tokens so
// they survive restarts. Rows are keyed by token hash.
type GormContinuityTokenRepository struct{ db *gorm.DB }

func NewContinuityTokenRepository(db *gorm.DB) *GormContinuityTokenRepository {
	return &GormContinuityTokenRepository{db: db}
}

func (r *GormContinuityTokenRepository) Save(ctx context.Context, token domain.ContinuityToken) error {
	if err := r.db.WithContext(ctx).Create(&token).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "continuity_token", "save", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "continuity_token", "save", "success")
	return nil
}

func (r *GormContinuityTokenRepository) Find(ctx context.Context, tokenHash string) (*domain.ContinuityToken, error) {
	var t domain.ContinuityToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "continuity_token", "find", "not_found")
			return nil, ErrContinuityTokenNotFound
		}
		observability.RecordRepositoryOperation(ctx, "continuity_token", "find", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "continuity_token", "find", "success")
	return &t, nil
}

func (r *GormContinuityTokenRepository) Delete(ctx context.Context, tokenHash string) error {
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&domain.ContinuityToken{}).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "continuity_token", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "continuity_token", "delete", "success")
	return nil
}

func (r *GormContinuityTokenRepository) DeleteByUser(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.ContinuityToken{}).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "continuity_token", "delete_by_user", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "continuity_token", "delete_by_user", "success")
	return nil
}

// DeleteExpired removes rows whose expiry is at or before now.
func (r *GormContinuityTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.ContinuityToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "continuity_token", "delete_expired", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "continuity_token", "delete_expired", "success")
	return res.RowsAffected, nil
}
