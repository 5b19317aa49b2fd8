package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/repository"
	"github.com/sandeepkv93/observation-service/internal/security"
)

const DefaultContinuityTokenTTL = time.Hour

// ContinuityService issues and redeems the short-lived bearer tokens that
// let a reloaded client resume a session. Redemption never creates,
// refreshes or replaces a token.
type ContinuityService struct {
	store ContinuityTokenStore
	ttl   time.Duration
	now   func() time.Time
}

func NewContinuityService(store ContinuityTokenStore, ttl time.Duration) *ContinuityService {
	if ttl <= 0 {
		ttl = DefaultContinuityTokenTTL
	}
	return &ContinuityService{store: store, ttl: ttl, now: time.Now}
}

// Issue mints a token for userID valid for the configured TTL.
func (s *ContinuityService) Issue(ctx context.Context, userID uint) (string, time.Time, error) {
	raw, err := security.NewContinuityToken()
	if err != nil {
		observability.RecordContinuityEvent(ctx, "issue", "error")
		return "", time.Time{}, err
	}
	now := s.now().UTC()
	token := domain.ContinuityToken{
		TokenHash: hashToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.Save(ctx, token); err != nil {
		observability.RecordContinuityEvent(ctx, "issue", "error")
		return "", time.Time{}, err
	}
	observability.RecordContinuityEvent(ctx, "issue", "success")
	return raw, token.ExpiresAt, nil
}

// Redeem reports the owning user of a live token. Unknown and expired tokens
// both yield ok=false; expired entries are deleted when seen.
func (s *ContinuityService) Redeem(ctx context.Context, raw string) (uint, bool, error) {
	if raw == "" {
		observability.RecordContinuityEvent(ctx, "redeem", "unknown")
		return 0, false, nil
	}
	key := hashToken(raw)
	t, err := s.store.Find(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrContinuityTokenNotFound) {
			observability.RecordContinuityEvent(ctx, "redeem", "unknown")
			return 0, false, nil
		}
		observability.RecordContinuityEvent(ctx, "redeem", "error")
		return 0, false, err
	}
	if t.ExpiredAt(s.now()) {
		if err := s.store.Delete(ctx, key); err != nil {
			observability.RecordContinuityEvent(ctx, "redeem", "error")
			return 0, false, fmt.Errorf("drop expired continuity token: %w", err)
		}
		observability.RecordContinuityEvent(ctx, "redeem", "expired")
		return 0, false, nil
	}
	observability.RecordContinuityEvent(ctx, "redeem", "success")
	return t.UserID, true, nil
}

func (s *ContinuityService) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if err := s.store.Delete(ctx, hashToken(raw)); err != nil {
		observability.RecordContinuityEvent(ctx, "revoke", "error")
		return err
	}
	observability.RecordContinuityEvent(ctx, "revoke", "success")
	return nil
}

// RevokeUser drops every continuity token held by userID. Credential and
// status changes call it so a leaked resume URL dies with the old password.
func (s *ContinuityService) RevokeUser(ctx context.Context, userID uint) error {
	if err := s.store.DeleteByUser(ctx, userID); err != nil {
		observability.RecordContinuityEvent(ctx, "revoke_user", "error")
		return err
	}
	observability.RecordContinuityEvent(ctx, "revoke_user", "success")
	return nil
}
