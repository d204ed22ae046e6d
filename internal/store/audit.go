// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppendAudit records an ontology provenance event.
func (s *Store) AppendAudit(ctx context.Context, kind, subjectID string, detail JSONMap) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		rec := AuditRecord{
			ID:        uuid.NewString(),
			Kind:      kind,
			SubjectID: subjectID,
			Detail:    detail,
			CreatedAt: time.Now().UTC(),
		}
		return tx.Create(&rec).Error
	})
}

// ListAudit returns audit records newest first, optionally filtered by kind
// or subject.
func (s *Store) ListAudit(ctx context.Context, kind, subjectID string, limit int) ([]AuditRecord, error) {
	q := s.read(ctx).Model(&AuditRecord{}).Order("created_at DESC, id ASC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if subjectID != "" {
		q = q.Where("subject_id = ?", subjectID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []AuditRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
