package hashing

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

// Provider computes password digests and message signatures.
type Provider struct {
	cell   *SecretCell
	mode   string
	params Argon2Params
}

func NewProvider(cfg *config.Config, cell *SecretCell) *Provider {
	mode := DigestSHA256
	if cfg.Auth.PasswordDigest == DigestArgon2ID {
		mode = DigestArgon2ID
	}
	return &Provider{
		cell: cell,
		mode: mode,
		params: Argon2Params{
			Memory:      uint32(cfg.Auth.Argon2Memory),
			Iterations:  uint32(cfg.Auth.Argon2Time),
			Parallelism: uint8(cfg.Auth.Argon2Parallelism),
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

// Sign returns the unpadded base64url HMAC-SHA256 of message.
func (p *Provider) Sign(ctx context.Context, message string) (string, error) {
	key, err := p.cell.Get(ctx)
	if err != nil {
		return "", err
	}

	sig, err := jwt.SigningMethodHS256.Sign(message, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

// Mode reports the digest mode used for new passwords.
func (p *Provider) Mode() string {
	return p.mode
}
