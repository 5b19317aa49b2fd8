package domain

import "time"

// ContinuityToken lets a reloaded client resume its session without
// re-entering credentials. Only the SHA-256 of the bearer value is persisted.
type ContinuityToken struct {
	TokenHash string    `gorm:"primaryKey;size:64" json:"-"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ContinuityToken) TableName() string { return "login_tokens" }

func (t ContinuityToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
