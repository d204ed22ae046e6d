// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package store implements the durable storage layer: a single-file embedded
// SQLite database holding events, objects, extraction rules, steps,
// workflows, occurrences and their junction tables. All mutations are
// serialised through a single writer mutex; reads run concurrently.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store provides transactional access to the procmine database.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	// mu guards all mutating operations; exactly one writer at a time.
	mu sync.Mutex

	// rulesVersion increases on every extraction-rule mutation so the
	// extractor can invalidate its rule snapshot lazily.
	rulesVersion atomic.Int64
}

// DefaultPath returns the default database location,
// ~/.local/share/procmine/state.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "state.db"
	}
	return filepath.Join(home, ".local", "share", "procmine", "state.db")
}

// Open opens (creating if necessary) the database at path and applies any
// pending schema migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RulesVersion returns the current version of the extraction-rule table.
// It increases monotonically on every rule mutation.
func (s *Store) RulesVersion() int64 {
	return s.rulesVersion.Load()
}

func (s *Store) bumpRulesVersion() {
	s.rulesVersion.Add(1)
}

// write runs fn inside a transaction while holding the writer mutex.
func (s *Store) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).Transaction(fn)
}

// read returns a context-scoped read session.
func (s *Store) read(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
