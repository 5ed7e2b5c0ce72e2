package hashing

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Digest modes.
const (
	DigestSHA256   = "sha256"
	DigestArgon2ID = "argon2id"
)

const argon2Prefix = "$argon2id$"

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DigestPassword returns the lowercase hex SHA-256 of plaintext.
// Unsalted and deterministic: stored staff digests were produced this way.
func DigestPassword(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// HashPassword produces a digest for storage using the configured mode.
func (p *Provider) HashPassword(plaintext string) (string, error) {
	if p.mode != DigestArgon2ID {
		return DigestPassword(plaintext), nil
	}

	salt := make([]byte, p.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, p.params.Iterations, p.params.Memory, p.params.Parallelism, p.params.KeyLength)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		p.params.Memory, p.params.Iterations, p.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks plaintext against a stored digest of either format.
// Legacy hex digests compare case-insensitively.
func (p *Provider) VerifyPassword(plaintext, stored string) (bool, error) {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return false, nil
	}
	if strings.HasPrefix(stored, argon2Prefix) {
		return verifyArgon2(plaintext, stored)
	}

	computed := DigestPassword(plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(stored))) == 1, nil
}

func verifyArgon2(plaintext, encoded string) (bool, error) {
	// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrInvalidHash
	}
	if version != argon2.Version {
		return false, ErrIncompatibleVersion
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
