package config

import (
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	pgrepo "github.com/openprep/openprep/internal/repositories/postgres"
)

var PostgresDB *gorm.DB

// InitPostgres opens the resume profile store and migrates it. It returns
// ErrNotConfigured when POSTGRES_URI is unset.
func InitPostgres() error {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		return fmt.Errorf("POSTGRES_URI: %w", ErrNotConfigured)
	}
	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := pgrepo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate resume profiles: %w", err)
	}

	PostgresDB = db
	return nil
}
