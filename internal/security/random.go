package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	TempPasswordBytes    = 10
	ContinuityTokenBytes = 32
)

// NewRandomString returns n bytes from crypto/rand encoded as unpadded
// base64url.
func NewRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random string length must be > 0")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func NewTempPassword() (string, error) { return NewRandomString(TempPasswordBytes) }

func NewContinuityToken() (string, error) { return NewRandomString(ContinuityTokenBytes) }
