package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/models"
	"github.com/fofxtools/api-cache/internal/store"
)

func NewPostgresDB(logger *logrus.Logger, cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword,
		cfg.PostgresDatabase, cfg.PostgresSSLMode)

	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.PostgresHost,
		"database":  cfg.PostgresDatabase,
	})

	var db *gorm.DB
	var err error
	const maxRetries = 5
	retryDelay := 2 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Database connection failed")

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		log.WithError(err).Error("Failed to connect to database after retries")
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.AutoMigrate(&models.AccessLog{}); err != nil {
		log.WithError(err).Error("Database migration failed")
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	if err := MigrateClientTables(db, cfg.ClientNames()); err != nil {
		log.WithError(err).Error("Client table migration failed")
		return nil, err
	}

	log.Info("Database connection established")
	return db, nil
}

// MigrateClientTables creates or migrates both physical table variants for
// each configured client.
func MigrateClientTables(db *gorm.DB, clients []string) error {
	for _, client := range clients {
		plain, err := store.NewTableHandle(client, false)
		if err != nil {
			return err
		}
		if err := db.Table(plain.Name()).AutoMigrate(&models.ResponseRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", plain.Name(), err)
		}
		compressed := plain.Sibling()
		if err := db.Table(compressed.Name()).AutoMigrate(&models.CompressedResponseRecord{}); err != nil {
			return fmt.Errorf("migrate %s: %w", compressed.Name(), err)
		}
	}
	return nil
}
