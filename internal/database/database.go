package database

import (
	"fmt"
	"os"
	"path/filepath"

	"robinhood-trade-bot-go/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the sqlite database and migrates the ledger schema.
// Existing data is never dropped: trade records are append-only.
func NewDatabase(dsn string) (*gorm.DB, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or extends the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.TradeRecord{},
		&models.PortfolioSnapshot{},
		&models.StrategySignal{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
