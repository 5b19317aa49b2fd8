package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"
	"github.com/sandeepkv93/observation-service/internal/security"

	"gorm.io/gorm"
)

const bootstrapAdminFullName = "Administrator"

type BootstrapReport struct {
	Migrated     bool   `json:"migrated"`
	AdminCreated bool   `json:"admin_created"`
	AdminEmail   string `json:"admin_email,omitempty"`
	UserCount    int64  `json:"user_count"`
	Noop         bool   `json:"noop"`
}

// Bootstrap migrates the schema and, only when the users table is empty,
// creates one administrator that must rotate its password on first login.
func Bootstrap(ctx context.Context, db *gorm.DB, hasher *security.PasswordHasher, adminEmail, adminPassword string) (*BootstrapReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "bootstrap", time.Since(start))
	}()

	if adminEmail == "" || adminPassword == "" {
		observability.RecordDatabaseStartupEvent(ctx, "bootstrap", "error")
		return nil, errors.New("bootstrap admin email and password are required")
	}
	if err := Migrate(db.WithContext(ctx)); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "bootstrap", "error")
		return nil, fmt.Errorf("migrate: %w", err)
	}
	report := &BootstrapReport{Migrated: true}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.User{}).Count(&report.UserCount).Error; err != nil {
			return err
		}
		if report.UserCount > 0 {
			return nil
		}
		hash, err := hasher.Hash(adminPassword)
		if err != nil {
			return err
		}
		admin := domain.User{
			Email:              adminEmail,
			PasswordHash:       hash,
			FullName:           bootstrapAdminFullName,
			IsActive:           true,
			IsAdmin:            true,
			MustChangePassword: true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		report.AdminCreated = true
		report.AdminEmail = adminEmail
		report.UserCount = 1
		return nil
	})
	if err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "bootstrap", "error")
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	report.Noop = !report.AdminCreated
	observability.RecordDatabaseStartupEvent(ctx, "bootstrap", "success")
	return report, nil
}
