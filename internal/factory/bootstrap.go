package factory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/models"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/util"
)

// seedBootstrapAdmin creates the first staff administrator when
// BOOTSTRAP_ADMIN_EMAIL and BOOTSTRAP_ADMIN_PASSWORD are set and no account
// with that email exists.
func (f *Factory) seedBootstrapAdmin(ctx context.Context) error {
	boot := f.config.Bootstrap
	email := util.NormalizeEmail(boot.AdminEmail)
	if email == "" || boot.AdminPassword == "" {
		return nil
	}
	if len(boot.AdminPassword) < f.config.Auth.MinPasswordLength {
		return fmt.Errorf("bootstrap password shorter than %d characters", f.config.Auth.MinPasswordLength)
	}

	_, err := f.accountRepository.FindByEmail(ctx, email)
	switch {
	case err == nil:
		util.Debug("Bootstrap admin already present", util.Email("email", email))
		return nil
	case !errors.Is(err, repository.ErrNotFound):
		return err
	}

	digest, err := f.provider.HashPassword(boot.AdminPassword)
	if err != nil {
		return err
	}

	name := boot.AdminName
	if name == "" {
		name = "Administrator"
	}
	now := time.Now().UTC()
	admin := &models.Account{
		ID:             uuid.NewString(),
		Kind:           models.KindStaff,
		Email:          email,
		DisplayName:    name,
		PasswordDigest: digest,
		Role:           models.RoleAdmin,
		Status:         models.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := f.accountRepository.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil
		}
		return err
	}

	util.Info("Bootstrap admin created", util.Email("email", email), util.String("account_id", admin.ID))
	return nil
}
