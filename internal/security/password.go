package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

type HashAlgorithm string

const (
	AlgorithmPBKDF2SHA256 HashAlgorithm = "pbkdf2_sha256"
	AlgorithmArgon2ID     HashAlgorithm = "argon2id"
)

const (
	DefaultPBKDF2Iterations = 310000

	saltLen = 16
	keyLen  = 32

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 2

	// Upper bounds on stored parameters; anything larger is treated as a
	// corrupt or hostile hash instead of being computed.
	maxPBKDF2Iterations = 10_000_000
	maxArgonTime        = 16
	maxArgonMemory      = 1 << 20
	minStoredKeyLen     = 16
	maxStoredKeyLen     = 64
)

var ErrMalformedHash = errors.New("malformed password hash")

// PasswordHash is the parsed form of a stored credential. It is serialized
// to a string only when written to or read from the users table.
type PasswordHash struct {
	Algorithm  HashAlgorithm
	Iterations uint32
	Memory     uint32
	Threads    uint8
	Salt       []byte
	Key        []byte
}

// ParsePasswordHash accepts
//
//	pbkdf2_sha256$<iterations>$<b64 salt>$<b64 key>
//	$argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<b64 salt>$<b64 key>
func ParsePasswordHash(encoded string) (PasswordHash, error) {
	switch {
	case strings.HasPrefix(encoded, string(AlgorithmPBKDF2SHA256)+"$"):
		return parsePBKDF2(encoded)
	case strings.HasPrefix(encoded, "$"+string(AlgorithmArgon2ID)+"$"):
		return parseArgon2(encoded)
	default:
		return PasswordHash{}, ErrMalformedHash
	}
}

func parsePBKDF2(encoded string) (PasswordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 {
		return PasswordHash{}, ErrMalformedHash
	}
	iterations, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || iterations == 0 || iterations > maxPBKDF2Iterations {
		return PasswordHash{}, ErrMalformedHash
	}
	salt, err := decodeB64(parts[2])
	if err != nil || len(salt) == 0 {
		return PasswordHash{}, ErrMalformedHash
	}
	key, err := decodeB64(parts[3])
	if err != nil || len(key) < minStoredKeyLen || len(key) > maxStoredKeyLen {
		return PasswordHash{}, ErrMalformedHash
	}
	return PasswordHash{
		Algorithm:  AlgorithmPBKDF2SHA256,
		Iterations: uint32(iterations),
		Salt:       salt,
		Key:        key,
	}, nil
}

func parseArgon2(encoded string) (PasswordHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return PasswordHash{}, ErrMalformedHash
	}
	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return PasswordHash{}, ErrMalformedHash
	}
	if timeCost == 0 || timeCost > maxArgonTime || memory == 0 || memory > maxArgonMemory || threads == 0 {
		return PasswordHash{}, ErrMalformedHash
	}
	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) == 0 {
		return PasswordHash{}, ErrMalformedHash
	}
	key, err := decodeB64(parts[5])
	if err != nil || len(key) < minStoredKeyLen || len(key) > maxStoredKeyLen {
		return PasswordHash{}, ErrMalformedHash
	}
	return PasswordHash{
		Algorithm:  AlgorithmArgon2ID,
		Iterations: timeCost,
		Memory:     memory,
		Threads:    threads,
		Salt:       salt,
		Key:        key,
	}, nil
}

func (h PasswordHash) String() string {
	switch h.Algorithm {
	case AlgorithmArgon2ID:
		return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
			h.Memory, h.Iterations, h.Threads,
			base64.RawStdEncoding.EncodeToString(h.Salt),
			base64.RawStdEncoding.EncodeToString(h.Key))
	default:
		return fmt.Sprintf("%s$%d$%s$%s",
			AlgorithmPBKDF2SHA256, h.Iterations,
			base64.StdEncoding.EncodeToString(h.Salt),
			base64.StdEncoding.EncodeToString(h.Key))
	}
}

func (h PasswordHash) derive(password string) []byte {
	switch h.Algorithm {
	case AlgorithmArgon2ID:
		return argon2.IDKey([]byte(password), h.Salt, h.Iterations, h.Memory, h.Threads, uint32(len(h.Key)))
	default:
		return pbkdf2.Key([]byte(password), h.Salt, int(h.Iterations), len(h.Key), sha256.New)
	}
}

// PasswordHasher produces hashes under the configured policy and verifies
// hashes produced under any supported policy.
type PasswordHasher struct {
	algorithm  HashAlgorithm
	iterations uint32
}

func NewPasswordHasher(algorithm string, iterations int) (*PasswordHasher, error) {
	alg := HashAlgorithm(strings.ToLower(strings.TrimSpace(algorithm)))
	switch alg {
	case "":
		alg = AlgorithmPBKDF2SHA256
	case AlgorithmPBKDF2SHA256, AlgorithmArgon2ID:
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", algorithm)
	}
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	if iterations > maxPBKDF2Iterations {
		return nil, fmt.Errorf("password hash iterations %d exceed %d", iterations, maxPBKDF2Iterations)
	}
	return &PasswordHasher{algorithm: alg, iterations: uint32(iterations)}, nil
}

func (h *PasswordHasher) Algorithm() HashAlgorithm { return h.algorithm }

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	ph := h.policy()
	ph.Salt = salt
	ph.Key = make([]byte, keyLen)
	ph.Key = ph.derive(password)
	return ph.String(), nil
}

// Verify recomputes the key with the parameters embedded in encoded.
// Malformed hashes never verify.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	ph, err := ParsePasswordHash(encoded)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(ph.derive(password), ph.Key) == 1
}

// NeedsRehash reports whether encoded was produced under a different
// algorithm or cost than the current policy.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	ph, err := ParsePasswordHash(encoded)
	if err != nil {
		return true
	}
	want := h.policy()
	if ph.Algorithm != want.Algorithm || len(ph.Key) != keyLen {
		return true
	}
	switch ph.Algorithm {
	case AlgorithmArgon2ID:
		return ph.Iterations != want.Iterations || ph.Memory != want.Memory || ph.Threads != want.Threads
	default:
		return ph.Iterations != want.Iterations
	}
}

func (h *PasswordHasher) policy() PasswordHash {
	if h.algorithm == AlgorithmArgon2ID {
		return PasswordHash{Algorithm: AlgorithmArgon2ID, Iterations: argonTime, Memory: argonMemory, Threads: argonThreads}
	}
	return PasswordHash{Algorithm: AlgorithmPBKDF2SHA256, Iterations: h.iterations}
}

func decodeB64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
