package service

import (
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/security"
)

// TokenService signs session JWTs from the current user row, so admin and
// must-change flags always reflect what the database says at issue time.
type TokenService struct {
	jwtMgr     *security.JWTManager
	sessionTTL time.Duration
}

// DefaultSessionTTL keeps a stolen session token short lived; the
// continuity token covers longer absences.
const DefaultSessionTTL = 15 * time.Minute

type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

func NewTokenService(jwtMgr *security.JWTManager, sessionTTL time.Duration) *TokenService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &TokenService{jwtMgr: jwtMgr, sessionTTL: sessionTTL}
}

func (s *TokenService) Issue(user *domain.User) (SessionToken, error) {
	token, exp, err := s.jwtMgr.SignAccessToken(security.AccessSubject{
		UserID:             user.ID,
		SessionVersion:     user.SessionVersion,
		Admin:              user.IsAdmin,
		MustChangePassword: user.MustChangePassword,
	}, s.sessionTTL)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: token, ExpiresAt: exp}, nil
}

func (s *TokenService) TTL() time.Duration { return s.sessionTTL }
