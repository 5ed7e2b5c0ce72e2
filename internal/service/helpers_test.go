package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/hashing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository/memory"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
)

const (
	staffEmail    = "ana@escritorio.com.br"
	staffPassword = "s3nha-forte"
	clientDoc     = "12345678901"
	clientEmail   = "joao@cliente.com"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *captureAudit) Record(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *captureAudit) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}

type captureNotifier struct {
	mu   sync.Mutex
	to   string
	name string
	code string
	sent int
	err  error
}

func (n *captureNotifier) SendCode(_ context.Context, address, displayName, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.to, n.name, n.code = address, displayName, code
	n.sent++
	return nil
}

// stubLimiter answers every check the same way.
type stubLimiter struct {
	result ratelimit.Result
	err    error
}

func (l *stubLimiter) Check(context.Context, string, string) (ratelimit.Result, error) {
	return l.result, l.err
}

func (l *stubLimiter) Reset(context.Context, string, string) error { return nil }

// brokenAccounts fails every lookup.
type brokenAccounts struct {
	*memory.AccountStore
}

var errStoreDown = errors.New("store down")

func (brokenAccounts) FindByEmail(context.Context, string) (*models.Account, error) {
	return nil, errStoreDown
}

func (brokenAccounts) FindByDocumentID(context.Context, string) (*models.Account, error) {
	return nil, errStoreDown
}

// failingUpdates rejects every partial write.
type failingUpdates struct {
	*memory.AccountStore
}

func (failingUpdates) UpdateFields(context.Context, string, models.AccountUpdate) error {
	return errStoreDown
}

// overlappingReads holds each document lookup until every expected lookup
// has read the account, so concurrent validations see the same pending code.
type overlappingReads struct {
	*memory.AccountStore
	inFlight *sync.WaitGroup
}

func (o overlappingReads) FindByDocumentID(ctx context.Context, documentID string) (*models.Account, error) {
	account, err := o.AccountStore.FindByDocumentID(ctx, documentID)
	o.inFlight.Done()
	o.inFlight.Wait()
	return account, err
}

type failingIssuer struct{}

func (failingIssuer) Issue(context.Context, string, string, string, string) (string, *token.Claims, error) {
	return "", nil, hashing.ErrSecretUnavailable
}

type failingCodes struct{}

func (failingCodes) Generate() (string, error) {
	return "", errors.New("entropy exhausted")
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			StaffTokenTTL:     8 * time.Hour,
			ClientTokenTTL:    2 * time.Hour,
			PasswordDigest:    hashing.DigestSHA256,
			MinPasswordLength: 8,
			Argon2Memory:      1024,
			Argon2Time:        1,
			Argon2Parallelism: 1,
		},
		OTP: config.OTPConfig{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 30},
		RateLimits: map[string]config.RateLimitRule{
			config.RateLimitLogin:   {Max: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute},
			config.RateLimitOTPSend: {Max: 3, Window: 15 * time.Minute, Lockout: 15 * time.Minute},
		},
	}
}

type harness struct {
	cfg       *config.Config
	clock     *fakeClock
	accounts  *memory.AccountStore
	provider  *hashing.Provider
	tokens    *token.Service
	audit     *captureAudit
	notifier  *captureNotifier
	creds     *CredentialService
	challenge *ChallengeService
	staffID   string
	clientID  string
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	h := &harness{
		cfg:      cfg,
		clock:    &fakeClock{t: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)},
		accounts: memory.NewAccountStore(),
		audit:    &captureAudit{},
		notifier: &captureNotifier{},
	}

	store := memory.NewVolatileStore().WithClock(h.clock.Now)
	limiter := ratelimit.New(store, ratelimit.RulesFromConfig(cfg), zap.NewNop(), ratelimit.WithClock(h.clock.Now))
	cell := hashing.NewSecretCell(nil, strings.Repeat("k", 48), zap.NewNop())
	h.provider = hashing.NewProvider(cfg, cell)
	h.tokens = token.NewService(cfg, h.provider, token.WithClock(h.clock.Now))

	h.creds = NewCredentialService(cfg, h.accounts, limiter, h.tokens, h.provider, h.audit, zap.NewNop())
	h.creds.now = h.clock.Now
	h.challenge = NewChallengeService(cfg, h.accounts, limiter, h.tokens, h.notifier, NewCodeGenerator(cfg.OTP.Length), h.audit, zap.NewNop())
	h.challenge.now = h.clock.Now

	ctx := context.Background()
	staff := &models.Account{
		Kind:           models.KindStaff,
		Email:          staffEmail,
		DisplayName:    "Ana Lima",
		PasswordDigest: hashing.DigestPassword(staffPassword),
		Role:           models.RoleLawyer,
		Status:         models.StatusActive,
	}
	require.NoError(t, h.accounts.Create(ctx, staff))
	h.staffID = staff.ID

	client := &models.Account{
		Kind:        models.KindClient,
		Email:       clientEmail,
		DocumentID:  clientDoc,
		DisplayName: "João Souza",
		Role:        models.RoleClient,
		Status:      models.StatusActive,
	}
	require.NoError(t, h.accounts.Create(ctx, client))
	h.clientID = client.ID
	return h
}

func (h *harness) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := h.accounts.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a
}
