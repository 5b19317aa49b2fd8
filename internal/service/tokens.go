package service

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashToken keys stored state by digest so raw identities and bearer
// tokens never appear in Redis keys or database rows.
func hashToken(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
