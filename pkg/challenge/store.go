package challenge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wagate/pkg/config"
)

// ErrValidation marks a rejected challenge payload.
var ErrValidation = errors.New("invalid challenge")

// Store persists challenges. A nil Store is returned when the database is
// disabled; callers check before routing to it.
type Store struct {
	db *gorm.DB
}

// NewStore connects and migrates the challenge table. Returns nil when the
// database is disabled in config.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required when the database is enabled")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Challenge{}); err != nil {
		return nil, fmt.Errorf("migrate challenge table: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert validates and writes one challenge inside a transaction, returning
// the stored row with its assigned ID.
func (s *Store) Insert(input *Challenge) (*Challenge, error) {
	if err := Validate(input); err != nil {
		return nil, err
	}

	if input.Difficulty <= 0 {
		input.Difficulty = 1
	}
	if strings.TrimSpace(input.Status) == "" {
		input.Status = "draft"
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(input).Error
	})
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}

	return input, nil
}

// List returns challenges for one course, newest first.
func (s *Store) List(courseID int, limit int) ([]Challenge, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var rows []Challenge
	query := s.db.Order("id DESC").Limit(limit)
	if courseID > 0 {
		query = query.Where("course_id = ?", courseID)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}

	return rows, nil
}

// Validate enforces the minimum required fields and length bounds the
// schema would otherwise reject with an opaque driver error.
func Validate(input *Challenge) error {
	if input == nil {
		return fmt.Errorf("%w: nil payload", ErrValidation)
	}
	if input.CourseID <= 0 {
		return fmt.Errorf("%w: course_id must be a positive integer", ErrValidation)
	}

	required := map[string]string{
		"type":              input.Type,
		"title":             input.Title,
		"short_description": input.ShortDescription,
		"problem_text":      input.ProblemText,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, field)
		}
	}

	bounds := []struct {
		field string
		value string
		max   int
	}{
		{"type", input.Type, 30},
		{"title", input.Title, 40},
		{"short_description", input.ShortDescription, 80},
		{"problem_text", input.ProblemText, 256},
		{"answer_text", input.AnswerText, 512},
		{"hint_text", input.HintText, 256},
		{"learn_more", input.LearnMore, 80},
		{"status", input.Status, 40},
	}
	for _, bound := range bounds {
		if len(bound.value) > bound.max {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, bound.field, bound.max)
		}
	}

	return nil
}

// DecodeBlob converts a base64 payload (with or without a data: URL
// prefix) into raw bytes. Empty input is nil, not an error.
func DecodeBlob(input string) ([]byte, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	if i := strings.LastIndexByte(trimmed, ','); i >= 0 {
		trimmed = trimmed[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: blob is not valid base64", ErrValidation)
	}

	return data, nil
}
