package service

import (
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/config"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	cfg      *config.Config
	accounts AccountStore
	limiter  RateLimiter
	tokens   TokenIssuer
	hasher   PasswordHasher
	notifier Notifier
	codes    CodeGenerator
	audit    AuditRecorder
	logger   *zap.Logger

	credentialService *CredentialService
	challengeService  *ChallengeService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	cfg *config.Config,
	accounts AccountStore,
	limiter RateLimiter,
	tokens TokenIssuer,
	hasher PasswordHasher,
	notifier Notifier,
	recorder AuditRecorder,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		cfg:      cfg,
		accounts: accounts,
		limiter:  limiter,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		codes:    NewCodeGenerator(cfg.OTP.Length),
		audit:    recorder,
		logger:   logger,
	}
}

// CredentialService returns the staff login service (singleton)
func (f *ServiceFactory) CredentialService() *CredentialService {
	if f.credentialService == nil {
		f.credentialService = NewCredentialService(
			f.cfg,
			f.accounts,
			f.limiter,
			f.tokens,
			f.hasher,
			f.audit,
			f.logger.Named("credentials"),
		)
	}
	return f.credentialService
}

// ChallengeService returns the client code service (singleton)
func (f *ServiceFactory) ChallengeService() *ChallengeService {
	if f.challengeService == nil {
		f.challengeService = NewChallengeService(
			f.cfg,
			f.accounts,
			f.limiter,
			f.tokens,
			f.notifier,
			f.codes,
			f.audit,
			f.logger.Named("challenge"),
		)
	}
	return f.challengeService
}
