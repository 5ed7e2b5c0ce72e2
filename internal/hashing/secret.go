package hashing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

// minSecretLength is the shortest secret accepted from the store or env.
const minSecretLength = 32

var ErrSecretUnavailable = errors.New("signing secret unavailable")

// SecretStore persists the process-wide signing secret.
type SecretStore interface {
	// GetSecret returns repository.ErrNotFound when no secret was stored yet.
	GetSecret(ctx context.Context) (string, error)
	// SetSecretIfAbsent stores value only if nothing is stored and reports
	// whether the write happened.
	SetSecretIfAbsent(ctx context.Context, value string) (bool, error)
}

// SecretCell initializes the signing secret at most once per process.
// Failed initializations are retried on the next call. Reads after
// initialization do not take the lock.
type SecretCell struct {
	store    SecretStore
	override string
	logger   *zap.Logger

	secret atomic.Pointer[[]byte]
	mu     sync.Mutex
}

// NewSecretCell returns a cell backed by store. A non-empty override is used
// verbatim and the store is never consulted.
func NewSecretCell(store SecretStore, override string, logger *zap.Logger) *SecretCell {
	return &SecretCell{store: store, override: override, logger: logger}
}

// Get returns the secret, generating and persisting it on first use.
func (c *SecretCell) Get(ctx context.Context) ([]byte, error) {
	if secret := c.secret.Load(); secret != nil {
		return *secret, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if secret := c.secret.Load(); secret != nil {
		return *secret, nil
	}

	var value string
	switch {
	case c.override != "":
		if len(c.override) < minSecretLength {
			return nil, fmt.Errorf("%w: override shorter than %d characters", ErrSecretUnavailable, minSecretLength)
		}
		value = c.override
	case c.store == nil:
		return nil, fmt.Errorf("%w: no secret store configured", ErrSecretUnavailable)
	default:
		loaded, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		value = loaded
	}

	secret := []byte(value)
	c.secret.Store(&secret)
	return secret, nil
}

func (c *SecretCell) load(ctx context.Context) (string, error) {
	stored, err := c.store.GetSecret(ctx)
	switch {
	case err == nil && len(stored) >= minSecretLength:
		return stored, nil
	case err == nil:
		return "", fmt.Errorf("%w: stored secret is too short", ErrSecretUnavailable)
	case !errors.Is(err, repository.ErrNotFound):
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}

	generated := GenerateSecret()
	applied, err := c.store.SetSecretIfAbsent(ctx, generated)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}
	if applied {
		c.logger.Info("Signing secret generated and persisted")
		return generated, nil
	}

	// Another instance won the race; use what it stored.
	stored, err = c.store.GetSecret(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}
	return stored, nil
}

// GenerateSecret returns two random UUIDs and a millisecond timestamp, hyphens removed.
func GenerateSecret() string {
	raw := uuid.NewString() + uuid.NewString() + strconv.FormatInt(time.Now().UnixMilli(), 10)
	return strings.ReplaceAll(raw, "-", "")
}
