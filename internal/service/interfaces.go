package service

import (
	"context"
	"time"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/audit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/ratelimit"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/token"
)

// AccountStore is the durable account collaborator. Lookups return
// repository.ErrNotFound for unknown keys.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByDocumentID(ctx context.Context, documentID string) (*models.Account, error)
	UpdateFields(ctx context.Context, id string, update models.AccountUpdate) error
	IncrementOTPAttempts(ctx context.Context, id string) (int, error)
	// ConsumeOTPCode clears the pending code, its expiry and the attempt
	// counter only if the stored code still equals code. It reports whether
	// the code was consumed by this call.
	ConsumeOTPCode(ctx context.Context, id, code string, at time.Time) (bool, error)
}

type RateLimiter interface {
	Check(ctx context.Context, category, identifier string) (ratelimit.Result, error)
	Reset(ctx context.Context, category, identifier string) error
}

type TokenIssuer interface {
	Issue(ctx context.Context, accountID, email, name, role string) (string, *token.Claims, error)
}

type PasswordHasher interface {
	HashPassword(plaintext string) (string, error)
	VerifyPassword(plaintext, stored string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

type Notifier interface {
	SendCode(ctx context.Context, address, displayName, code string) error
}

type CodeGenerator interface {
	Generate() (string, error)
}
