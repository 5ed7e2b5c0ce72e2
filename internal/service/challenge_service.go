package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// CodeDispatch describes where a code was sent without revealing the address.
type CodeDispatch struct {
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ChallengeService logs clients in with one-time codes stored on the account.
// The attempt budget is durable and independent of the rate limiter: waiting
// out a lockout does not restore guesses against the same code.
type ChallengeService struct {
	accounts    AccountStore
	limiter     RateLimiter
	tokens      TokenIssuer
	notifier    Notifier
	codes       CodeGenerator
	audit       AuditRecorder
	logger      *zap.Logger
	codeTTL     time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewChallengeService(
	cfg *config.Config,
	accounts AccountStore,
	limiter RateLimiter,
	tokens TokenIssuer,
	notifier Notifier,
	codes CodeGenerator,
	recorder AuditRecorder,
	logger *zap.Logger,
) *ChallengeService {
	return &ChallengeService{
		accounts:    accounts,
		limiter:     limiter,
		tokens:      tokens,
		notifier:    notifier,
		codes:       codes,
		audit:       recorder,
		logger:      logger,
		codeTTL:     cfg.OTP.TTL,
		maxAttempts: cfg.OTP.MaxAttempts,
		now:         time.Now,
	}
}

// RequestCode issues a new code for the client identified by documentID,
// replacing any previous one, and hands it to the notifier.
func (s *ChallengeService) RequestCode(ctx context.Context, documentID string) (*CodeDispatch, error) {
	doc := util.DigitsOnly(documentID)
	masked := util.MaskDocument(doc)
	if !util.IsDocumentID(doc) {
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagMissingInput, "")
		return nil, fmt.Errorf("%w: document must have 11 or 14 digits", ErrInvalidInput)
	}

	res, err := s.limiter.Check(ctx, config.RateLimitOTPSend, doc)
	if err != nil {
		// fails closed, unlike login
		s.logger.Error("Code dispatch rate limit unavailable", util.Document("document", doc), util.ErrorField(err))
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagStoreError, "rate limit")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	if !res.Allowed {
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeBlocked, audit.TagRateLimited, "")
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	}

	account, err := s.findClient(ctx, doc, audit.ActionCodeRequest)
	if err != nil {
		return nil, err
	}
	if account.IsBlocked() {
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeBlocked, audit.TagAccountBlocked, "")
		return nil, ErrAccountLocked
	}
	if !account.IsActive() {
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagAccountInactive, "")
		return nil, ErrAccountDisabled
	}
	if strings.TrimSpace(account.Email) == "" {
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagNoEmail, "")
		return nil, fmt.Errorf("%w: no email on file for this client", ErrInvalidInput)
	}

	code, err := s.codes.Generate()
	if err != nil {
		s.logger.Error("Access code generation failed", util.ErrorField(err))
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagStoreError, "generate")
		return nil, err
	}
	expiresAt := s.now().UTC().Add(s.codeTTL)
	zero := 0
	update := models.AccountUpdate{
		OTPCode:      &code,
		OTPExpiresAt: &expiresAt,
		OTPAttempts:  &zero,
	}
	if err := s.accounts.UpdateFields(ctx, account.ID, update); err != nil {
		s.logger.Error("Failed to store access code", util.String("account_id", account.ID), util.ErrorField(err))
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagStoreError, "persist")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	if err := s.notifier.SendCode(ctx, account.Email, account.DisplayName, code); err != nil {
		s.logger.Error("Failed to dispatch access code", util.Document("document", doc), util.ErrorField(err))
		s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeFailure, audit.TagDispatchFailed, "")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	s.record(ctx, masked, audit.ActionCodeRequest, audit.OutcomeSuccess, audit.TagOK, "")
	return &CodeDispatch{
		Destination: util.MaskEmail(account.Email),
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateCode checks a submitted code and issues a client token on match.
// Wrong guesses consume the account's attempt budget; once it is spent the
// account is blocked.
func (s *ChallengeService) ValidateCode(ctx context.Context, documentID, code string) (*LoginResult, error) {
	doc := util.DigitsOnly(documentID)
	masked := util.MaskDocument(doc)
	code = strings.TrimSpace(code)
	if !util.IsDocumentID(doc) || code == "" {
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagMissingInput, "")
		return nil, fmt.Errorf("%w: document and code are required", ErrInvalidInput)
	}

	account, err := s.findClient(ctx, doc, audit.ActionCodeValidate)
	if err != nil {
		return nil, err
	}
	if account.IsBlocked() {
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeBlocked, audit.TagAccountBlocked, "")
		return nil, ErrAccountLocked
	}
	if account.OTPAttempts >= s.maxAttempts {
		return nil, s.block(ctx, account, masked)
	}
	if !account.IsActive() {
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagAccountInactive, "")
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if account.OTPCode == "" || account.OTPExpiresAt == nil || now.After(*account.OTPExpiresAt) {
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagCodeExpired, "")
		return nil, ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(account.OTPCode)) != 1 {
		attempts, err := s.accounts.IncrementOTPAttempts(ctx, account.ID)
		if err != nil {
			s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagStoreError, "attempts")
			return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
		}
		remaining := s.maxAttempts - attempts
		if remaining <= 0 {
			return nil, s.block(ctx, account, masked)
		}
		s.logger.Warn("Wrong access code",
			util.Document("document", doc),
			util.Int("remaining", remaining),
			util.String("tag", audit.TagWrongCode))
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagWrongCode,
			fmt.Sprintf("remaining=%d", remaining))
		return nil, &CodeMismatchError{Remaining: remaining}
	}

	consumed, err := s.accounts.ConsumeOTPCode(ctx, account.ID, account.OTPCode, now)
	if err != nil {
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagStoreError, "consume")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	if !consumed {
		// a concurrent request used or replaced the code first
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagCodeExpired, "already used")
		return nil, ErrCodeExpired
	}

	raw, claims, err := s.tokens.Issue(ctx, account.ID, account.Email, account.DisplayName, token.RoleClient)
	if err != nil {
		s.logger.Error("Token issue failed", util.String("account_id", account.ID), util.ErrorField(err))
		s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeFailure, audit.TagStoreError, "token")
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	s.record(ctx, masked, audit.ActionCodeValidate, audit.OutcomeSuccess, audit.TagOK, "")
	identity := account.Identity()
	identity.Role = token.RoleClient
	return &LoginResult{
		Token:     raw,
		ExpiresAt: time.UnixMilli(claims.ExpiresAt).UTC(),
		Identity:  identity,
	}, nil
}

func (s *ChallengeService) findClient(ctx context.Context, doc, action string) (*models.Account, error) {
	account, err := s.accounts.FindByDocumentID(ctx, doc)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("Client not found", util.Document("document", doc), util.String("action", action))
			s.record(ctx, util.MaskDocument(doc), action, audit.OutcomeFailure, audit.TagUnknownAccount, "")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	if account.Kind != models.KindClient {
		s.record(ctx, util.MaskDocument(doc), action, audit.OutcomeFailure, audit.TagUnknownAccount, "not a client account")
		return nil, ErrNotFound
	}
	return account, nil
}

// block moves the account to the blocked status. Only an administrator can
// reactivate it.
func (s *ChallengeService) block(ctx context.Context, account *models.Account, masked string) error {
	status := models.StatusBlocked
	if err := s.accounts.UpdateFields(ctx, account.ID, models.AccountUpdate{Status: &status}); err != nil {
		return fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}
	s.logger.Warn("Client account blocked after exhausting code attempts",
		util.String("account_id", account.ID),
		util.String("document", masked),
		util.String("tag", audit.TagAttemptsExhausted))
	s.record(ctx, masked, audit.ActionAccountLocked, audit.OutcomeBlocked, audit.TagAttemptsExhausted, "")
	return ErrAccountLocked
}

func (s *ChallengeService) record(ctx context.Context, actor, action string, outcome audit.Outcome, tag, detail string) {
	s.audit.Record(ctx, audit.Event{
		Actor:   actor,
		Action:  action,
		Outcome: outcome,
		Tag:     tag,
		Detail:  detail,
	})
}
