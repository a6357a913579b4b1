package ocr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JSONFileStore keeps the records as a JSON object keyed by model name.
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Load returns an empty map when the file does not exist yet.
func (s *JSONFileStore) Load() (map[string]ModelPerformanceRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]ModelPerformanceRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read performance file: %w", err)
	}
	records := map[string]ModelPerformanceRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse performance file %s: %w", s.path, err)
	}
	return records, nil
}

func (s *JSONFileStore) Save(records map[string]ModelPerformanceRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode performance records: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create performance directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write performance file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace performance file: %w", err)
	}
	return nil
}

// ModelPerformanceRow is the schema of the model_performance table
type ModelPerformanceRow struct {
	Model           string  `gorm:"primaryKey;size:255"`
	SuccessCount    int     `gorm:"not null"`
	FailureCount    int     `gorm:"not null"`
	AvgResponseTime float64 `gorm:"not null"`
	LastUsed        time.Time
}

func (ModelPerformanceRow) TableName() string {
	return "model_performance"
}

// GormStore keeps the records in a SQL table, one row per model.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the model_performance table on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ModelPerformanceRow{}); err != nil {
		return nil, fmt.Errorf("migrate model_performance: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load() (map[string]ModelPerformanceRecord, error) {
	var rows []ModelPerformanceRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load model performance: %w", err)
	}
	records := make(map[string]ModelPerformanceRecord, len(rows))
	for _, row := range rows {
		records[row.Model] = ModelPerformanceRecord{
			SuccessCount:    row.SuccessCount,
			FailureCount:    row.FailureCount,
			AvgResponseTime: row.AvgResponseTime,
			LastUsed:        row.LastUsed,
		}
	}
	return records, nil
}

// Save upserts every record. Rows for models absent from records are kept.
func (s *GormStore) Save(records map[string]ModelPerformanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]ModelPerformanceRow, 0, len(records))
	for model, rec := range records {
		rows = append(rows, ModelPerformanceRow{
			Model:           model,
			SuccessCount:    rec.SuccessCount,
			FailureCount:    rec.FailureCount,
			AvgResponseTime: rec.AvgResponseTime,
			LastUsed:        rec.LastUsed,
		})
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model"}},
		DoUpdates: clause.AssignmentColumns([]string{"success_count", "failure_count", "avg_response_time", "last_used"}),
	}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("save model performance: %w", result.Error)
	}
	return nil
}
