package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/observability"
	"github.com/evehealth/eve-auth-service/internal/repository"
)

// Verification errors carry the exact strings the dashboard shows, so the
// login view can distinguish "request access" from "account disabled".
var (
	ErrAdminNotFound      = errors.New("Admin Account not found!")
	ErrAccountDeactivated = errors.New("User account is deactivated")
	ErrVerificationFailed = errors.New("access verification failed")
)

// AccessVerifier decides whether an authenticated identity may use the
// dashboard. It only reads the admin roster; it never mutates it.
type AccessVerifier interface {
	VerifyAdminAccess(ctx context.Context, userID string) (*domain.AdminUser, error)
}

type accessVerifier struct {
	repo   repository.AdminUserRepository
	logger *slog.Logger
}

func NewAccessVerifier(repo repository.AdminUserRepository, logger *slog.Logger) AccessVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &accessVerifier{repo: repo, logger: logger}
}

func (v *accessVerifier) VerifyAdminAccess(ctx context.Context, userID string) (*domain.AdminUser, error) {
	user, err := v.repo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrAdminUserNotFound) {
		observability.RecordAuthEvent(ctx, "verify_admin_access", "not_found")
		return nil, ErrAdminNotFound
	}
	if err != nil {
		// Datastore failures never reach the caller raw.
		v.logger.Error("admin access lookup failed", "user_id", userID, "error", err)
		observability.RecordAuthEvent(ctx, "verify_admin_access", "error")
		return nil, ErrVerificationFailed
	}
	if !user.IsActive {
		observability.RecordAuthEvent(ctx, "verify_admin_access", "deactivated")
		return nil, ErrAccountDeactivated
	}
	observability.RecordAuthEvent(ctx, "verify_admin_access", "success")
	return user, nil
}
