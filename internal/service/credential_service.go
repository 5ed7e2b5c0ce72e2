package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// LoginResult is returned by both staff and client logins.
type LoginResult struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Identity  models.Identity `json:"user"`
}

// CredentialService authenticates staff accounts by email and password.
type CredentialService struct {
	accounts    AccountStore
	limiter     RateLimiter
	tokens      TokenIssuer
	hasher      PasswordHasher
	audit       AuditRecorder
	logger      *zap.Logger
	minPassword int
	now         func() time.Time
}

func NewCredentialService(
	cfg *config.Config,
	accounts AccountStore,
	limiter RateLimiter,
	tokens TokenIssuer,
	hasher PasswordHasher,
	recorder AuditRecorder,
	logger *zap.Logger,
) *CredentialService {
	return &CredentialService{
		accounts:    accounts,
		limiter:     limiter,
		tokens:      tokens,
		hasher:      hasher,
		audit:       recorder,
		logger:      logger,
		minPassword: cfg.Auth.MinPasswordLength,
		now:         time.Now,
	}
}

// Login verifies email and password and issues a staff token. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagMissingInput, "")
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	if err := s.checkLimit(ctx, email); err != nil {
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeBlocked, audit.TagRateLimited, "")
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagUnknownAccount, "")
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("Account lookup failed", util.Email("email", email), util.ErrorField(err))
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagStoreError, "")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	if account.Kind != models.KindStaff {
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagUnknownAccount, "not a staff account")
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive() {
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagAccountInactive, string(account.Status))
		return nil, ErrAccountDisabled
	}

	ok, err := s.hasher.VerifyPassword(password, account.PasswordDigest)
	if err != nil {
		s.logger.Error("Stored password digest is unreadable",
			util.String("account_id", account.ID),
			util.ErrorField(err))
	}
	if !ok {
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagWrongPassword, "")
		return nil, ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, config.RateLimitLogin, email); err != nil {
		s.logger.Warn("Failed to reset login rate limit", util.Email("email", email), util.ErrorField(err))
	}

	raw, claims, err := s.tokens.Issue(ctx, account.ID, account.Email, account.DisplayName, account.Role)
	if err != nil {
		s.logger.Error("Token issue failed", util.String("account_id", account.ID), util.ErrorField(err))
		s.record(ctx, email, audit.ActionLogin, audit.OutcomeFailure, audit.TagStoreError, "token")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	now := s.now().UTC()
	if err := s.accounts.UpdateFields(ctx, account.ID, models.AccountUpdate{LastAccessAt: &now}); err != nil {
		s.logger.Warn("Failed to stamp last access", util.String("account_id", account.ID), util.ErrorField(err))
	}

	s.record(ctx, email, audit.ActionLogin, audit.OutcomeSuccess, audit.TagOK, account.Role)
	return &LoginResult{
		Token:     raw,
		ExpiresAt: time.UnixMilli(claims.ExpiresAt).UTC(),
		Identity:  account.Identity(),
	}, nil
}

// ChangePassword replaces the digest of a staff account after checking the
// current password. Attempts count against the login limit.
func (s *CredentialService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if accountID == "" || current == "" || next == "" {
		return fmt.Errorf("%w: current and new password are required", ErrInvalidInput)
	}
	if len(next) < s.minPassword {
		return fmt.Errorf("%w: new password must have at least %d characters", ErrInvalidInput, s.minPassword)
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	if account.Kind != models.KindStaff {
		return fmt.Errorf("%w: only staff accounts have passwords", ErrInvalidInput)
	}

	if err := s.checkLimit(ctx, account.Email); err != nil {
		s.record(ctx, account.Email, audit.ActionPasswordChange, audit.OutcomeBlocked, audit.TagRateLimited, "")
		return err
	}

	ok, err := s.hasher.VerifyPassword(current, account.PasswordDigest)
	if err != nil {
		s.logger.Error("Stored password digest is unreadable",
			util.String("account_id", account.ID),
			util.ErrorField(err))
	}
	if !ok {
		s.record(ctx, account.Email, audit.ActionPasswordChange, audit.OutcomeFailure, audit.TagWrongPassword, "")
		return ErrInvalidCredentials
	}

	digest, err := s.hasher.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to digest password: %w", err)
	}
	if err := s.accounts.UpdateFields(ctx, account.ID, models.AccountUpdate{PasswordDigest: &digest}); err != nil {
		return fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	if err := s.limiter.Reset(ctx, config.RateLimitLogin, account.Email); err != nil {
		s.logger.Warn("Failed to reset login rate limit", util.Email("email", account.Email), util.ErrorField(err))
	}
	s.record(ctx, account.Email, audit.ActionPasswordChange, audit.OutcomeSuccess, audit.TagOK, "")
	return nil
}

// checkLimit applies the login category. A limiter store failure is logged
// and the attempt proceeds.
func (s *CredentialService) checkLimit(ctx context.Context, email string) error {
	res, err := s.limiter.Check(ctx, config.RateLimitLogin, email)
	if err != nil {
		s.logger.Warn("Login rate limit unavailable, allowing attempt",
			util.Email("email", email),
			util.ErrorField(err))
		return nil
	}
	if !res.Allowed {
		return &RateLimitError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func (s *CredentialService) record(ctx context.Context, actor, action string, outcome audit.Outcome, tag, detail string) {
	s.audit.Record(ctx, audit.Event{
		Actor:   actor,
		Action:  action,
		Outcome: outcome,
		Tag:     tag,
		Detail:  detail,
	})
}
