// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// migration is one forward schema step. Versions are applied in ascending
// order; downgrades abort startup.
type migration struct {
	version int
	apply   func(tx *gorm.DB) error
}

var migrations = []migration{
	{
		version: 1,
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&Bucket{},
				&Event{},
				&ObjectType{},
				&Object{},
				&ExtractionRule{},
				&EventObjectLink{},
				&Step{},
				&StepEvent{},
				&StepObject{},
				&Workflow{},
				&WorkflowStep{},
				&WorkflowObject{},
				&Occurrence{},
				&OccurrenceStepInstance{},
				&ReviewTask{},
				&AuditRecord{},
			)
		},
	},
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.Model(&SchemaMigration{}).
		Select("COALESCE(MAX(version), 0)").Scan(&current).Error; err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	latest := migrations[len(migrations)-1].version
	if current > latest {
		return fmt.Errorf("%w: have %d, support up to %d", ErrSchemaDowngrade, current, latest)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: m.version, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		s.logger.Info("applied schema migration", "version", m.version)
	}
	return nil
}
