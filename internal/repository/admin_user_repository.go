package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/observability"
)

var ErrAdminUserNotFound = errors.New("admin user not found")

const (
	defaultRosterPage     = 1
	defaultRosterPageSize = 20
	maxRosterPageSize     = 100
)

// RosterQuery selects one page of the roster. Out-of-range values are
// clamped, so handlers can pass query params through unchecked.
type RosterQuery struct {
	Page     int
	PageSize int
}

func (q RosterQuery) clamped() RosterQuery {
	if q.Page < 1 {
		q.Page = defaultRosterPage
	}
	if q.PageSize < 1 {
		q.PageSize = defaultRosterPageSize
	}
	if q.PageSize > maxRosterPageSize {
		q.PageSize = maxRosterPageSize
	}
	return q
}

// RosterPage is one email-ordered page of roster entries plus the paging
// metadata the dashboard table renders.
type RosterPage struct {
	Items      []domain.AdminUser
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// AdminUserRepository reads and mutates the admin roster backing access
// verification. Lookups by ID use the identity provider's user UUID.
type AdminUserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.AdminUser, error)
	FindByEmail(ctx context.Context, email string) (*domain.AdminUser, error)
	List(ctx context.Context, query RosterQuery) (RosterPage, error)
	CountByRole(ctx context.Context, role domain.AdminRole) (int64, error)
	Create(ctx context.Context, user *domain.AdminUser) error
	SetActive(ctx context.Context, id string, active bool) error
}

type adminUserRepository struct {
	db *gorm.DB
}

func NewAdminUserRepository(db *gorm.DB) AdminUserRepository {
	return &adminUserRepository{db: db}
}

func (r *adminUserRepository) FindByID(ctx context.Context, id string) (*domain.AdminUser, error) {
	var user domain.AdminUser
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_id", "not_found")
		return nil, ErrAdminUserNotFound
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_id", "error")
		return nil, fmt.Errorf("find admin user by id: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_id", "success")
	return &user, nil
}

func (r *adminUserRepository) FindByEmail(ctx context.Context, email string) (*domain.AdminUser, error) {
	var user domain.AdminUser
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_email", "not_found")
		return nil, ErrAdminUserNotFound
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_email", "error")
		return nil, fmt.Errorf("find admin user by email: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "admin_user", "find_by_email", "success")
	return &user, nil
}

func (r *adminUserRepository) List(ctx context.Context, query RosterQuery) (RosterPage, error) {
	q := query.clamped()

	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.AdminUser{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "list", "error")
		return RosterPage{}, fmt.Errorf("count admin users: %w", err)
	}

	var users []domain.AdminUser
	err := r.db.WithContext(ctx).
		Order("email asc").
		Limit(q.PageSize).
		Offset((q.Page - 1) * q.PageSize).
		Find(&users).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "list", "error")
		return RosterPage{}, fmt.Errorf("list admin users: %w", err)
	}

	pages := int(total / int64(q.PageSize))
	if total%int64(q.PageSize) != 0 {
		pages++
	}

	observability.RecordRepositoryOperation(ctx, "admin_user", "list", "success")
	return RosterPage{
		Items:      users,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: pages,
	}, nil
}

func (r *adminUserRepository) CountByRole(ctx context.Context, role domain.AdminRole) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.AdminUser{}).
		Where("role = ?", role).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "count_by_role", "error")
		return 0, fmt.Errorf("count admin users by role: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "admin_user", "count_by_role", "success")
	return count, nil
}

func (r *adminUserRepository) Create(ctx context.Context, user *domain.AdminUser) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "create", "error")
		return fmt.Errorf("create admin user: %w", err)
	}
	observability.RecordRepositoryOperation(ctx, "admin_user", "create", "success")
	return nil
}

func (r *adminUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).
		Model(&domain.AdminUser{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "admin_user", "set_active", "error")
		return fmt.Errorf("set admin user active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "admin_user", "set_active", "not_found")
		return ErrAdminUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "admin_user", "set_active", "success")
	return nil
}
