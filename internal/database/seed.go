package database

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/repository"
)

// SeedReport summarizes what a seed run changed.
type SeedReport struct {
	CreatedAdmins int
	Noop          bool
}

const defaultBootstrapEmail = "admin@evehealth.example"

// SeedSync ensures at least one active admin exists so a fresh deployment
// can be signed into. Running it again is a no-op.
func SeedSync(ctx context.Context, db *gorm.DB, adminEmail string) (*SeedReport, error) {
	email := strings.ToLower(strings.TrimSpace(adminEmail))
	if email == "" {
		email = defaultBootstrapEmail
	}

	repo := repository.NewAdminUserRepository(db)
	report := &SeedReport{}
	count, err := repo.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		report.Noop = true
		return report, nil
	}

	admin := domain.AdminUser{
		ID:       uuid.NewString(),
		Name:     "Bootstrap Admin",
		Email:    email,
		Role:     domain.RoleAdmin,
		IsActive: true,
	}
	if err := repo.Create(ctx, &admin); err != nil {
		return nil, err
	}
	report.CreatedAdmins = 1
	return report, nil
}

// ActivateAdminEmail flips a roster entry back to active by email.
// Returns repository.ErrAdminUserNotFound when no entry has the email.
func ActivateAdminEmail(ctx context.Context, db *gorm.DB, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return errors.New("email is required")
	}

	repo := repository.NewAdminUserRepository(db)
	admin, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	return repo.SetActive(ctx, admin.ID, true)
}
