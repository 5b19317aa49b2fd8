package database

import (
	"context"
	"time"

	"github.com/sandeepkv93/observation-service/internal/config"
	"github.com/sandeepkv93/observation-service/internal/observability"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres for URL/keyword DSNs and to a sqlite file
// otherwise. Duplicate-key errors are translated to gorm.ErrDuplicatedKey.
func Open(cfg *config.Config) (*gorm.DB, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "open", time.Since(start))
	}()

	dialector := postgres.Open(cfg.DatabaseURL)
	if cfg.UsesSQLite() {
		dialector = sqlite.Open(cfg.DatabaseURL)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "open", "error")
		return nil, err
	}
	if cfg.UsesSQLite() {
		// sqlite permits one writer at a time.
		sqlDB, err := db.DB()
		if err != nil {
			observability.RecordDatabaseStartupEvent(context.Background(), "open", "error")
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "open", "success")
	return db, nil
}
