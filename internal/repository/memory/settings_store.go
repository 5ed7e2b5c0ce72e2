package memory

import (
	"context"
	"sync"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

// SettingsStore holds the signing secret for single-process deployments.
type SettingsStore struct {
	mu     sync.Mutex
	secret string
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

func (s *SettingsStore) GetSecret(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret == "" {
		return "", repository.ErrNotFound
	}
	return s.secret, nil
}

func (s *SettingsStore) SetSecretIfAbsent(ctx context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.secret != "" {
		return false, nil
	}
	s.secret = value
	return true, nil
}
