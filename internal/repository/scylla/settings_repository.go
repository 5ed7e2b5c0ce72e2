package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

const signingSecretSetting = "signing_secret"

// SettingsRepository persists process-wide settings shared by all instances.
type SettingsRepository struct {
	client *ScyllaClient
}

func NewSettingsRepository(client *ScyllaClient) *SettingsRepository {
	return &SettingsRepository{client: client}
}

func (r *SettingsRepository) GetSecret(ctx context.Context) (string, error) {
	var value string
	query := r.client.Query(ctx, selectSetting, signingSecretSetting).SerialConsistency(gocql.LocalSerial)
	if err := r.client.ScanWithRetry(query, &value); err != nil {
		if err == gocql.ErrNotFound {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("failed to read signing secret: %w", err)
	}
	if value == "" {
		return "", repository.ErrNotFound
	}
	return value, nil
}

// SetSecretIfAbsent relies on a lightweight transaction so concurrent
// instances agree on a single secret.
func (r *SettingsRepository) SetSecretIfAbsent(ctx context.Context, value string) (bool, error) {
	applied, err := r.client.Query(ctx, insertSettingIfAbsent, signingSecretSetting, value, time.Now().UTC()).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return false, fmt.Errorf("failed to store signing secret: %w", err)
	}
	if !applied {
		util.Info("Signing secret already present, keeping stored value")
	}
	return applied, nil
}
