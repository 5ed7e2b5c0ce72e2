package encryption

import "context"

// SecretStore mirrors hashing.SecretStore.
type SecretStore interface {
	GetSecret(ctx context.Context) (string, error)
	SetSecretIfAbsent(ctx context.Context, value string) (bool, error)
}

// SealedSecretStore seals the signing secret before it reaches inner.
type SealedSecretStore struct {
	inner  SecretStore
	sealer *Sealer
}

func NewSealedSecretStore(inner SecretStore, sealer *Sealer) *SealedSecretStore {
	return &SealedSecretStore{inner: inner, sealer: sealer}
}

func (s *SealedSecretStore) GetSecret(ctx context.Context) (string, error) {
	sealed, err := s.inner.GetSecret(ctx)
	if err != nil {
		return "", err
	}
	return s.sealer.Open(ctx, sealed)
}

func (s *SealedSecretStore) SetSecretIfAbsent(ctx context.Context, value string) (bool, error) {
	sealed, err := s.sealer.Seal(ctx, value)
	if err != nil {
		return false, err
	}
	return s.inner.SetSecretIfAbsent(ctx, sealed)
}
