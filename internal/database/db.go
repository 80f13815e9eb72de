package database

import (
	"fmt"

	"procurement-backend/internal/config"
	"procurement-backend/internal/logger"
	"procurement-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to Postgres, or to a SQLite file when the DSN starts with
// "sqlite:", and migrates the document table.
func Open(cfg *config.Config, log *logger.Logger) (*gorm.DB, error) {
	log = logger.OrNop(log)

	level := gormlogger.Warn
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		level = gormlogger.Error
	}
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(level)}

	var (
		dialector gorm.Dialector
		driver    string
	)
	if cfg.UsesSQLite() {
		dialector, driver = sqlite.Open(cfg.SQLitePath()), "sqlite"
	} else {
		dialector, driver = postgres.Open(cfg.DatabaseDSN), "postgres"
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// one writer at a time, otherwise concurrent batches hit SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Document{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("database ready", "driver", driver)
	return db, nil
}
