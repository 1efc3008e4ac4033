package database

import (
	"fmt"
	"time"

	"pragrisk/internal/config"
	"pragrisk/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open connects to the configured database, retrying while it comes up.
func Open(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		log.Info().Msgf("trying to connect to DB (attempt %d/%d)...", i, attempts)

		db, err = gorm.Open(dialector(cfg), Config(log))
		if err == nil {
			log.Info().Str("driver", cfg.Driver).Msg("connected to DB successfully")
			break
		}

		log.Warn().Err(err).Msg("failed to connect to DB")
		if i < attempts {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to db after %d attempts: %w", attempts, err)
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// one writer; nested connections would deadlock on the file lock
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func dialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Driver == "sqlite" {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.Open(cfg.DSN)
}

// Config is the gorm configuration shared by the server and the tests.
func Config(log zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(log, 200*time.Millisecond),
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Mitigation{}, "Vulnerabilities", &models.MitigationVulnerability{}); err != nil {
		return fmt.Errorf("setup join table: %w", err)
	}
	err := db.AutoMigrate(
		&models.Environment{},
		&models.Actor{},
		&models.Technology{},
		&models.Vulnerability{},
		&models.Mitigation{},
		&models.Scenario{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
