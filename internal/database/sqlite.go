package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and migrates every replica collection.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized",
			zap.String("path", path),
			zap.Int("collections", len(replica.Tables())))
	}

	return db, nil
}

func migrateSchema(db *gorm.DB) error {
	models := append(replica.Models(), &migrationRecord{})
	return db.AutoMigrate(models...)
}
