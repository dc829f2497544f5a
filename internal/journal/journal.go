// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package journal keeps the history of generation attempts in a SQL
// database through gorm.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noldarim/mindlaunch/internal/config"
	"github.com/noldarim/mindlaunch/internal/dispatch"
	"github.com/noldarim/mindlaunch/internal/logger"
)

// ErrUnsupportedDriver is returned for a journal driver other than sqlite or postgres.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Store wraps the gorm connection of the attempt journal
type Store struct {
	db *gorm.DB
}

// Open connects to the journal database described by cfg.
func Open(cfg *config.JournalConfig) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		if cfg.Database != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.GetDSN())
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLogAdapter(logger.GetJournalLogger()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

// AutoMigrate runs database migrations
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&AttemptRecord{}, &AttemptStep{})
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores a finished attempt. Recording the same attempt ID again
// replaces the earlier record.
func (s *Store) Record(ctx context.Context, a dispatch.Attempt) error {
	rec := NewRecord(a)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Steps").
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(rec).Error; err != nil {
			return fmt.Errorf("failed to save attempt %s: %w", rec.ID, err)
		}

		if err := tx.Where("attempt_id = ? AND position >= ?", rec.ID, len(rec.Steps)).
			Delete(&AttemptStep{}).Error; err != nil {
			return fmt.Errorf("failed to trim steps of attempt %s: %w", rec.ID, err)
		}
		if len(rec.Steps) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "message", "lifecycle"}),
		}).Create(&rec.Steps).Error
	})
}

// Recent returns up to n attempts, newest first, with their steps.
func (s *Store) Recent(ctx context.Context, n int) ([]*AttemptRecord, error) {
	var records []*AttemptRecord
	q := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Order("started_at DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Get retrieves one attempt by ID. It returns nil without error when the
// attempt is unknown.
func (s *Store) Get(ctx context.Context, id string) (*AttemptRecord, error) {
	var rec AttemptRecord
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
