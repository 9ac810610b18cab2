package repository

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evehealth/eve-auth-service/internal/domain"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Doctor{},
		&domain.AdminUser{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func seedAdminUser(t *testing.T, db *gorm.DB, id, email string, role domain.AdminRole, active bool) *domain.AdminUser {
	t.Helper()
	user := &domain.AdminUser{
		ID:       id,
		Name:     strings.Split(email, "@")[0],
		Email:    email,
		Role:     role,
		IsActive: active,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed admin user %s: %v", email, err)
	}
	return user
}
