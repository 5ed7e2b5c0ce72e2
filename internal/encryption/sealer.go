package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

const (
	kmsPrefix = "kms:v1:"
	gcmPrefix = "gcm:v1:"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// KMSAPI is the subset of the KMS client used for sealing.
type KMSAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Sealer protects small secrets at rest. Sealed values carry a scheme prefix
// so a store can hold KMS, AES-GCM or (for development) plain values.
type Sealer struct {
	kmsClient KMSAPI
	keyID     string
	localKey  []byte
}

// NewSealer prefers KMS when enabled, then a local AES-256 key, and falls back
// to plain storage when neither is configured.
func NewSealer(cfg *config.Config, kmsClient KMSAPI) (*Sealer, error) {
	s := &Sealer{}
	if cfg.KMS.Enabled {
		if kmsClient == nil || cfg.KMS.KeyID == "" {
			return nil, fmt.Errorf("kms enabled without client or key id")
		}
		s.kmsClient = kmsClient
		s.keyID = cfg.KMS.KeyID
		return s, nil
	}

	if cfg.Auth.SealingKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Auth.SealingKey)
		if err != nil {
			return nil, fmt.Errorf("invalid sealing key encoding: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("sealing key must be 32 bytes, got %d", len(key))
		}
		s.localKey = key
	}
	return s, nil
}

// Scheme names the sealing method new values use.
func (s *Sealer) Scheme() string {
	switch {
	case s.kmsClient != nil:
		return "kms"
	case s.localKey != nil:
		return "aes-gcm"
	default:
		return "plain"
	}
}

func (s *Sealer) Seal(ctx context.Context, plaintext string) (string, error) {
	switch {
	case s.kmsClient != nil:
		out, err := s.kmsClient.Encrypt(ctx, &kms.EncryptInput{
			KeyId:     aws.String(s.keyID),
			Plaintext: []byte(plaintext),
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
		}
		return kmsPrefix + base64.StdEncoding.EncodeToString(out.CiphertextBlob), nil

	case s.localKey != nil:
		gcm, err := newGCM(s.localKey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
		}
		nonce := make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
		}
		sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
		return gcmPrefix + base64.StdEncoding.EncodeToString(sealed), nil

	default:
		return plaintext, nil
	}
}

func (s *Sealer) Open(ctx context.Context, sealed string) (string, error) {
	switch {
	case strings.HasPrefix(sealed, kmsPrefix):
		if s.kmsClient == nil {
			return "", fmt.Errorf("%w: value sealed with kms but kms is disabled", ErrDecryptionFailed)
		}
		blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, kmsPrefix))
		if err != nil {
			return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
		}
		out, err := s.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: blob,
			KeyId:          aws.String(s.keyID),
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		return string(out.Plaintext), nil

	case strings.HasPrefix(sealed, gcmPrefix):
		if s.localKey == nil {
			return "", fmt.Errorf("%w: value sealed with a local key but none is configured", ErrDecryptionFailed)
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, gcmPrefix))
		if err != nil {
			return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
		}
		gcm, err := newGCM(s.localKey)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		if len(raw) < gcm.NonceSize() {
			return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
		}
		nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
		plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		return string(plaintext), nil

	default:
		return sealed, nil
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
