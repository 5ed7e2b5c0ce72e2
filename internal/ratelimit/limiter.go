// Package ratelimit implements a fixed-window counter with temporary lockout,
// keyed by category and a normalized identifier.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

const (
	counterPrefix = "rl:"
	lockoutPrefix = "rl_lock:"

	// counterTTLMargin keeps a counter alive slightly past its window.
	counterTTLMargin = 60 * time.Second
	maxIdentifierLen = 128
)

var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Store is the volatile key/value store backing the limiter.
type Store interface {
	// Get returns repository.ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
	// Update applies fn atomically to the current value (nil when absent).
	// A nil result from fn leaves the key untouched.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error
}

type Rule struct {
	Max     int
	Window  time.Duration
	Lockout time.Duration
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Time
}

type window struct {
	WindowStart int64 `json:"windowStart"`
	Count       int   `json:"count"`
}

type lockout struct {
	UnlockAt int64 `json:"unlockAt"`
}

type Limiter struct {
	store  Store
	rules  map[string]Rule
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, rules map[string]Rule, logger *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		rules:  rules,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RulesFromConfig converts the configured categories.
func RulesFromConfig(cfg *config.Config) map[string]Rule {
	rules := make(map[string]Rule, len(cfg.RateLimits))
	for category, r := range cfg.RateLimits {
		rules[category] = Rule{Max: r.Max, Window: r.Window, Lockout: r.Lockout}
	}
	return rules
}

// Check counts one attempt for identifier in category.
//
// Unknown categories are always allowed. When the store fails the result is
// Allowed with an error wrapping ErrStoreUnavailable; callers decide whether
// to honour it.
func (l *Limiter) Check(ctx context.Context, category, identifier string) (Result, error) {
	rule, ok := l.rules[category]
	if !ok {
		return Result{Allowed: true}, nil
	}

	id := Normalize(identifier)
	now := l.now()
	lockKey := lockoutKey(category, id)

	raw, err := l.store.Get(ctx, lockKey)
	switch {
	case err == nil:
		var lk lockout
		if json.Unmarshal(raw, &lk) == nil && lk.UnlockAt > now.UnixMilli() {
			return Result{Allowed: false, RetryAfter: time.UnixMilli(lk.UnlockAt)}, nil
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return l.failOpen(category, id, err)
	}

	var (
		result   Result
		exceeded bool
	)
	err = l.store.Update(ctx, counterKey(category, id), rule.Window+counterTTLMargin, func(current []byte) ([]byte, error) {
		exceeded = false

		var w window
		if current == nil || json.Unmarshal(current, &w) != nil {
			w = window{}
		}
		if w.WindowStart == 0 || now.UnixMilli()-w.WindowStart > rule.Window.Milliseconds() {
			w = window{WindowStart: now.UnixMilli()}
		}

		w.Count++
		if w.Count > rule.Max {
			exceeded = true
			return nil, nil
		}

		result = Result{Allowed: true, Remaining: rule.Max - w.Count}
		return json.Marshal(w)
	})
	if err != nil {
		return l.failOpen(category, id, err)
	}

	if !exceeded {
		return result, nil
	}

	duration := rule.Lockout
	if duration <= 0 {
		duration = rule.Window
	}
	unlockAt := now.Add(duration)
	payload, _ := json.Marshal(lockout{UnlockAt: unlockAt.UnixMilli()})
	if err := l.store.PutWithTTL(ctx, lockKey, payload, duration); err != nil {
		return l.failOpen(category, id, err)
	}

	l.logger.Warn("Rate limit exceeded, lockout applied",
		zap.String("category", category),
		zap.String("identifier", id),
		zap.Time("unlock_at", unlockAt),
		zap.String("tag", "rate_limited"),
	)

	return Result{Allowed: false, RetryAfter: unlockAt}, nil
}

// Reset clears both the counter and any lockout for identifier.
func (l *Limiter) Reset(ctx context.Context, category, identifier string) error {
	id := Normalize(identifier)
	if err := l.store.Remove(ctx, counterKey(category, id), lockoutKey(category, id)); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (l *Limiter) failOpen(category, id string, err error) (Result, error) {
	l.logger.Error("Rate limit store failed, allowing request",
		zap.String("category", category),
		zap.String("identifier", id),
		zap.Error(err),
	)
	return Result{Allowed: true}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Normalize trims, lowercases and restricts identifier to [a-z0-9@._-],
// replacing anything else with '_', capped at 128 characters.
func Normalize(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	var b strings.Builder
	b.Grow(len(identifier))
	for _, r := range identifier {
		if b.Len() == maxIdentifierLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '@', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func counterKey(category, id string) string {
	return counterPrefix + category + ":" + id
}

func lockoutKey(category, id string) string {
	return lockoutPrefix + category + ":" + id
}
