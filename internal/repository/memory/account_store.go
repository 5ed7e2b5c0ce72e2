package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

// AccountStore keeps accounts in maps indexed by id, email and document.
// Returned accounts are copies.
type AccountStore struct {
	mu         sync.RWMutex
	byID       map[string]*models.Account
	byEmail    map[string]string
	byDocument map[string]string
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*models.Account),
		byEmail:    make(map[string]string),
		byDocument: make(map[string]string),
	}
}

// Create inserts account, assigning an id if it has none.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := s.byID[account.ID]; exists {
		return fmt.Errorf("%w: account %s already exists", repository.ErrConflict, account.ID)
	}
	if account.Email != "" {
		if _, exists := s.byEmail[account.Email]; exists {
			return fmt.Errorf("%w: email already registered", repository.ErrConflict)
		}
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	stored := copyAccount(account)
	s.byID[stored.ID] = stored
	if stored.Email != "" {
		s.byEmail[stored.Email] = stored.ID
	}
	if stored.DocumentID != "" {
		s.byDocument[stored.DocumentID] = stored.ID
	}
	return nil
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAccount(account), nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAccount(s.byID[id]), nil
}

func (s *AccountStore) FindByDocumentID(ctx context.Context, documentID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDocument[documentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyAccount(s.byID[id]), nil
}

func (s *AccountStore) UpdateFields(ctx context.Context, id string, update models.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	update.Apply(account)
	account.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *AccountStore) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	account.OTPAttempts++
	account.UpdatedAt = time.Now().UTC()
	return account.OTPAttempts, nil
}

func (s *AccountStore) ConsumeOTPCode(ctx context.Context, id, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if code == "" || account.OTPCode != code {
		return false, nil
	}
	account.OTPCode = ""
	account.OTPExpiresAt = nil
	account.OTPAttempts = 0
	lastAccess := at
	account.LastAccessAt = &lastAccess
	account.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *AccountStore) HealthCheck(ctx context.Context) error {
	return nil
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	if a.OTPExpiresAt != nil {
		t := *a.OTPExpiresAt
		c.OTPExpiresAt = &t
	}
	if a.LastAccessAt != nil {
		t := *a.LastAccessAt
		c.LastAccessAt = &t
	}
	return &c
}
