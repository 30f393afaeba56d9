package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open öffnet die Datenbank und führt die Migrationen aus
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	// Sicherstellen, dass das Verzeichnis für die Datenbankdatei existiert
	if !isMemory(cfg.File) {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Konfiguration des GORM-Loggers
	gormLogger := logger.New(
		log.StandardLogger(), // Verwende den konfigurierten logrus-Logger
		logger.Config{
			SlowThreshold:             time.Second * 2,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", cfg.File)

	db, err := gorm.Open(sqlite.Open(cfg.File), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite verträgt nur einen Schreiber gleichzeitig
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(connMaxLifetime(cfg.File))

	log.Info("Database connection established successfully")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// connMaxLifetime gibt 0 (unbegrenzt) für In-Memory-Datenbanken zurück,
// deren Inhalt mit der letzten Verbindung verschwindet
func connMaxLifetime(file string) time.Duration {
	if isMemory(file) {
		return 0
	}
	return time.Hour
}

func isMemory(file string) bool {
	return file == "" || file == ":memory:" ||
		strings.HasPrefix(file, "file::memory:") || strings.Contains(file, "mode=memory")
}

// Migrate führt die Auto-Migrationen durch
func Migrate(db *gorm.DB) error {
	log.Info("Running database migrations...")
	if err := db.AutoMigrate(
		&models.KVEntry{},
		&models.RecognitionEvent{},
	); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migrations completed successfully")
	return nil
}

// Close schließt die Verbindung
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warnf("Failed to close database: %v", err)
	}
}
