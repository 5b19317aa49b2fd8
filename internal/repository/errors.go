package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrDuplicateEmail          = errors.New("email already exists")
	ErrContinuityTokenNotFound = errors.New("continuity token not found")
)

// isDuplicateKey matches gorm's translated error and the raw driver text,
// since TranslateError is only honoured by dialects that implement it.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
