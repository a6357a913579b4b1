package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goagiq/mcp-markitdown-ui/ocr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitializeDB opens the SQLite database at dbPath, creating its directory.
func InitializeDB(dbPath string) (*gorm.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newPerformanceStore returns the configured store for model performance
// history, or nil when persistence is disabled.
func newPerformanceStore(s settings) (ocr.PerformanceStore, error) {
	switch s.PerformanceStore {
	case "json":
		return ocr.NewJSONFileStore(s.PerformancePath), nil
	case "sqlite":
		db, err := InitializeDB(s.PerformancePath)
		if err != nil {
			return nil, err
		}
		store, err := ocr.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported performance store: %s", s.PerformanceStore)
	}
}
