package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/hashing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
)

func TestLoginIssuesVerifiableToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.creds.Login(ctx, "  ANA@Escritorio.com.br ", staffPassword)
	require.NoError(t, err)

	assert.Equal(t, h.staffID, res.Identity.ID)
	assert.Equal(t, models.RoleLawyer, res.Identity.Role)
	assert.Equal(t, h.clock.Now().Add(8*time.Hour), res.ExpiresAt)

	claims, err := h.tokens.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, h.staffID, claims.Subject)
	assert.Equal(t, staffEmail, claims.Email)
	assert.Equal(t, models.RoleLawyer, claims.Role)

	stored := h.account(t, h.staffID)
	require.NotNil(t, stored.LastAccessAt)
	assert.Equal(t, h.clock.Now(), *stored.LastAccessAt)

	last := h.audit.last()
	assert.Equal(t, audit.ActionLogin, last.Action)
	assert.Equal(t, audit.OutcomeSuccess, last.Outcome)
}

func TestLoginDigestComparisonIgnoresCase(t *testing.T) {
	h := newHarness(t)
	upper := strings.ToUpper(hashing.DigestPassword(staffPassword))
	require.NoError(t, h.accounts.UpdateFields(context.Background(), h.staffID, models.AccountUpdate{PasswordDigest: &upper}))

	_, err := h.creds.Login(context.Background(), staffEmail, staffPassword)
	assert.NoError(t, err)
}

func TestLoginRejections(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		setup    func(h *harness)
		wantErr  error
		wantTag  string
	}{
		{name: "missing email", password: "x", wantErr: ErrInvalidInput, wantTag: audit.TagMissingInput},
		{name: "missing password", email: staffEmail, wantErr: ErrInvalidInput, wantTag: audit.TagMissingInput},
		{name: "unknown email", email: "ghost@escritorio.com.br", password: staffPassword, wantErr: ErrInvalidCredentials, wantTag: audit.TagUnknownAccount},
		{name: "wrong password", email: staffEmail, password: "errada", wantErr: ErrInvalidCredentials, wantTag: audit.TagWrongPassword},
		{name: "client account", email: clientEmail, password: "anything", wantErr: ErrInvalidCredentials, wantTag: audit.TagUnknownAccount},
		{
			name: "inactive account", email: staffEmail, password: staffPassword,
			setup: func(h *harness) {
				status := models.StatusInactive
				require.NoError(t, h.accounts.UpdateFields(context.Background(), h.staffID, models.AccountUpdate{Status: &status}))
			},
			wantErr: ErrAccountDisabled, wantTag: audit.TagAccountInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			res, err := h.creds.Login(context.Background(), tt.email, tt.password)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)

			last := h.audit.last()
			assert.Equal(t, tt.wantTag, last.Tag)
			assert.NotEqual(t, audit.OutcomeSuccess, last.Outcome)
			if tt.password != "" {
				assert.NotContains(t, last.Detail, tt.password)
			}
		})
	}
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.creds.Login(ctx, staffEmail, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	_, err := h.creds.Login(ctx, staffEmail, staffPassword)
	require.ErrorIs(t, err, ErrTooManyAttempts)
	var rl *RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, h.clock.Now().Add(15*time.Minute).UnixMilli(), rl.RetryAfter.UnixMilli())
	assert.Equal(t, audit.TagRateLimited, h.audit.last().Tag)

	h.clock.Advance(14 * time.Minute)
	_, err = h.creds.Login(ctx, staffEmail, staffPassword)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	h.clock.Advance(time.Minute + time.Second)
	_, err = h.creds.Login(ctx, staffEmail, staffPassword)
	assert.NoError(t, err)
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := h.creds.Login(ctx, staffEmail, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := h.creds.Login(ctx, staffEmail, staffPassword)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.creds.Login(ctx, staffEmail, "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d after reset", i+1)
	}
	_, err = h.creds.Login(ctx, staffEmail, "wrong-password")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestLoginFailsOpenWhenLimiterStoreIsDown(t *testing.T) {
	h := newHarness(t)
	h.creds.limiter = &stubLimiter{
		result: ratelimit.Result{Allowed: true},
		err:    ratelimit.ErrStoreUnavailable,
	}

	_, err := h.creds.Login(context.Background(), staffEmail, staffPassword)
	assert.NoError(t, err)
}

func TestLoginAccountStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.creds.accounts = brokenAccounts{h.accounts}

	_, err := h.creds.Login(context.Background(), staffEmail, staffPassword)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestLoginTokenFailureIsAudited(t *testing.T) {
	h := newHarness(t)
	h.creds.tokens = failingIssuer{}

	_, err := h.creds.Login(context.Background(), staffEmail, staffPassword)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
	assert.Equal(t, audit.TagStoreError, h.audit.last().Tag)
	assert.Equal(t, "token", h.audit.last().Detail)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.creds.ChangePassword(ctx, h.staffID, staffPassword, "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = h.creds.ChangePassword(ctx, h.staffID, "not-the-password", "nova-senha-123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = h.creds.ChangePassword(ctx, "missing-id", staffPassword, "nova-senha-123")
	assert.ErrorIs(t, err, ErrNotFound)

	err = h.creds.ChangePassword(ctx, h.clientID, "x", "nova-senha-123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, h.creds.ChangePassword(ctx, h.staffID, staffPassword, "nova-senha-123"))
	assert.Equal(t, hashing.DigestPassword("nova-senha-123"), h.account(t, h.staffID).PasswordDigest)
	assert.Equal(t, audit.ActionPasswordChange, h.audit.last().Action)

	_, err = h.creds.Login(ctx, staffEmail, staffPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.creds.Login(ctx, staffEmail, "nova-senha-123")
	assert.NoError(t, err)
}

func TestChangePasswordWithArgon2Digest(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Auth.PasswordDigest = hashing.DigestArgon2ID
	})
	ctx := context.Background()

	// legacy digest still logs in
	_, err := h.creds.Login(ctx, staffEmail, staffPassword)
	require.NoError(t, err)

	require.NoError(t, h.creds.ChangePassword(ctx, h.staffID, staffPassword, "nova-senha-123"))
	assert.True(t, strings.HasPrefix(h.account(t, h.staffID).PasswordDigest, "$argon2id$"))

	_, err = h.creds.Login(ctx, staffEmail, "nova-senha-123")
	assert.NoError(t, err)
}

func TestServiceFactorySingletons(t *testing.T) {
	h := newHarness(t)
	f := NewServiceFactory(h.cfg, h.accounts, &stubLimiter{result: ratelimit.Result{Allowed: true}},
		h.tokens, h.provider, h.notifier, h.audit, zap.NewNop())

	assert.Same(t, f.CredentialService(), f.CredentialService())
	assert.Same(t, f.ChallengeService(), f.ChallengeService())
}
