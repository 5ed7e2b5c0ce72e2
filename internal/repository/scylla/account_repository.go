package scylla

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/bucketing"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

const maxCASRetries = 5

// AccountRepository stores accounts partitioned by a murmur3 bucket of the id,
// with lookup tables for email and document id.
type AccountRepository struct {
	client  *ScyllaClient
	buckets *bucketing.BucketingManager
}

func NewAccountRepository(client *ScyllaClient, buckets *bucketing.BucketingManager) *AccountRepository {
	return &AccountRepository{client: client, buckets: buckets}
}

// indexClaim is one lookup row that must be unique across accounts.
type indexClaim struct {
	field   string
	key     string
	claim   string
	release string
}

// lookupClaims lists the lookup rows account needs, in claim order.
func lookupClaims(account *models.Account) []indexClaim {
	var claims []indexClaim
	if account.Email != "" {
		claims = append(claims, indexClaim{"email", account.Email, claimEmailIndex, releaseEmailIndex})
	}
	if account.DocumentID != "" {
		claims = append(claims, indexClaim{"document", account.DocumentID, claimDocumentIndex, releaseDocumentIndex})
	}
	return claims
}

// Create claims the email and document lookup rows with lightweight
// transactions, then writes the account row. A lookup row held by another
// account yields repository.ErrConflict and releases the rows claimed so far.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Bucket = r.buckets.AccountBucket(account.ID)

	var claimed []indexClaim
	for _, c := range lookupClaims(account) {
		applied, err := r.client.Query(ctx, c.claim, c.key, account.Bucket, account.ID).
			MapScanCAS(map[string]interface{}{})
		if err == nil && applied {
			claimed = append(claimed, c)
			continue
		}
		r.releaseClaims(ctx, claimed, account.ID)
		if err != nil {
			util.Error("Failed to claim account index",
				zap.String("account_id", account.ID),
				zap.String("index", c.field),
				zap.Error(err))
			return fmt.Errorf("failed to claim %s index: %w", c.field, err)
		}
		return fmt.Errorf("%w: %s already registered", repository.ErrConflict, c.field)
	}

	err := r.client.Query(ctx, insertAccount,
		account.Bucket, account.ID, string(account.Kind), account.Email, account.DocumentID,
		account.DisplayName, account.PasswordDigest, account.Role, string(account.Status),
		account.OTPCode, account.OTPExpiresAt, account.OTPAttempts, account.LastAccessAt,
		account.CreatedAt, account.UpdatedAt).Exec()
	if err != nil {
		r.releaseClaims(ctx, claimed, account.ID)
		util.Error("Failed to create account",
			zap.String("account_id", account.ID),
			util.Email("email", account.Email),
			zap.Error(err))
		return fmt.Errorf("failed to create account: %w", err)
	}

	util.Info("Account created",
		zap.String("account_id", account.ID),
		zap.String("kind", string(account.Kind)),
		zap.Int("bucket", account.Bucket))
	return nil
}

func (r *AccountRepository) releaseClaims(ctx context.Context, claimed []indexClaim, id string) {
	for _, c := range claimed {
		if _, err := r.client.Query(ctx, c.release, c.key, id).MapScanCAS(map[string]interface{}{}); err != nil {
			util.Warn("Failed to release account index",
				zap.String("account_id", id),
				zap.String("index", c.field),
				zap.Error(err))
		}
	}
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, r.buckets.AccountBucket(id), id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findByIndex(ctx, selectByEmail, email)
}

func (r *AccountRepository) FindByDocumentID(ctx context.Context, documentID string) (*models.Account, error) {
	return r.findByIndex(ctx, selectByDocument, documentID)
}

func (r *AccountRepository) findByIndex(ctx context.Context, stmt, key string) (*models.Account, error) {
	var (
		bucket int
		id     string
	)
	err := r.client.ScanWithRetry(r.client.Query(ctx, stmt, key), &bucket, &id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve account index: %w", err)
	}
	return r.get(ctx, bucket, id)
}

func (r *AccountRepository) get(ctx context.Context, bucket int, id string) (*models.Account, error) {
	var (
		a                      models.Account
		kind, status           string
		otpExpires, lastAccess time.Time
		otpAttempts            *int
	)
	err := r.client.ScanWithRetry(r.client.Query(ctx, selectAccount, bucket, id),
		&a.Bucket, &a.ID, &kind, &a.Email, &a.DocumentID, &a.DisplayName,
		&a.PasswordDigest, &a.Role, &status, &a.OTPCode, &otpExpires, &otpAttempts,
		&lastAccess, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, repository.ErrNotFound
		}
		util.Error("Failed to load account", zap.String("account_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	a.Kind = models.AccountKind(kind)
	a.Status = models.AccountStatus(status)
	if otpAttempts != nil {
		a.OTPAttempts = *otpAttempts
	}
	if !otpExpires.IsZero() {
		a.OTPExpiresAt = &otpExpires
	}
	if !lastAccess.IsZero() {
		a.LastAccessAt = &lastAccess
	}
	return &a, nil
}

// UpdateFields writes only the columns set in update.
func (r *AccountRepository) UpdateFields(ctx context.Context, id string, update models.AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	assignments, values := buildAccountUpdate(update, time.Now().UTC())
	stmt := "UPDATE accounts SET " + strings.Join(assignments, ", ") +
		" WHERE account_bucket = ? AND account_id = ? IF EXISTS"
	values = append(values, r.buckets.AccountBucket(id), id)

	applied, err := r.client.Query(ctx, stmt, values...).MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to update account", zap.String("account_id", id), zap.Error(err))
		return fmt.Errorf("failed to update account: %w", err)
	}
	if !applied {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementOTPAttempts bumps the counter with a compare-and-set loop and
// returns the new value.
func (r *AccountRepository) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	bucket := r.buckets.AccountBucket(id)

	for i := 0; i < maxCASRetries; i++ {
		var current *int
		if err := r.client.ScanWithRetry(r.client.Query(ctx, selectOTPAttempts, bucket, id), &current); err != nil {
			if err == gocql.ErrNotFound {
				return 0, repository.ErrNotFound
			}
			return 0, fmt.Errorf("failed to read otp attempts: %w", err)
		}

		next := 1
		query := r.client.Query(ctx, casOTPAttemptsFromNull, next, time.Now().UTC(), bucket, id)
		if current != nil {
			next = *current + 1
			query = r.client.Query(ctx, casOTPAttempts, next, time.Now().UTC(), bucket, id, *current)
		}

		applied, err := query.MapScanCAS(map[string]interface{}{})
		if err != nil {
			return 0, fmt.Errorf("failed to increment otp attempts: %w", err)
		}
		if applied {
			return next, nil
		}
	}

	util.Warn("OTP attempt counter kept conflicting", zap.String("account_id", id))
	return 0, repository.ErrConflict
}

// ConsumeOTPCode clears the pending code with a lightweight transaction so a
// code is accepted at most once across instances.
func (r *AccountRepository) ConsumeOTPCode(ctx context.Context, id, code string, at time.Time) (bool, error) {
	if code == "" {
		return false, nil
	}
	query := r.client.Query(ctx, casConsumeOTPCode, at, time.Now().UTC(), r.buckets.AccountBucket(id), id, code)
	applied, err := query.MapScanCAS(map[string]interface{}{})
	if err != nil {
		util.Error("Failed to consume otp code", zap.String("account_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to consume otp code: %w", err)
	}
	return applied, nil
}

func (r *AccountRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

func buildAccountUpdate(u models.AccountUpdate, now time.Time) ([]string, []interface{}) {
	var (
		assignments []string
		values      []interface{}
	)
	set := func(column string, value interface{}) {
		assignments = append(assignments, column+" = ?")
		values = append(values, value)
	}

	if u.PasswordDigest != nil {
		set("password_digest", *u.PasswordDigest)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.OTPCode != nil {
		set("otp_code", *u.OTPCode)
	}
	if u.ClearOTPExpiry {
		set("otp_expires_at", nil)
	} else if u.OTPExpiresAt != nil {
		set("otp_expires_at", *u.OTPExpiresAt)
	}
	if u.OTPAttempts != nil {
		set("otp_attempts", *u.OTPAttempts)
	}
	if u.LastAccessAt != nil {
		set("last_access_at", *u.LastAccessAt)
	}
	set("updated_at", now)

	return assignments, values
}
