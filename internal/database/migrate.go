package database

import (
	"context"
	"time"

	"github.com/sandeepkv93/observation-service/internal/domain"
	"github.com/sandeepkv93/observation-service/internal/observability"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "migrate", time.Since(start))
	}()
	err := db.AutoMigrate(
		&domain.User{},
		&domain.ContinuityToken{},
		&domain.SchoolYear{},
		&domain.Person{},
		&domain.Category{},
		&domain.Observation{},
	)
	if err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "success")
	return nil
}
