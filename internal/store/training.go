// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateReviewTask enqueues a low-confidence extraction candidate for user
// review.
func (s *Store) CreateReviewTask(ctx context.Context, t *ReviewTask) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Status == "" {
			t.Status = ReviewStatusPending
		}
		t.CreatedAt = time.Now().UTC()
		return tx.Create(t).Error
	})
}

// GetReviewTask returns the review task with the given id.
func (s *Store) GetReviewTask(ctx context.Context, id string) (*ReviewTask, error) {
	var t ReviewTask
	if err := s.read(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("review task %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

// ListPendingReviewTasks returns pending review tasks, oldest first.
func (s *Store) ListPendingReviewTasks(ctx context.Context, limit int) ([]ReviewTask, error) {
	q := s.read(ctx).Where("status = ?", ReviewStatusPending).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tasks []ReviewTask
	if err := q.Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ResolveReviewTask moves a pending task to a terminal status.
func (s *Store) ResolveReviewTask(ctx context.Context, id, status, reason string) (*ReviewTask, error) {
	var out ReviewTask
	err := s.write(ctx, func(tx *gorm.DB) error {
		var t ReviewTask
		if err := tx.First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("review task %s: %w", id, ErrNotFound)
			}
			return err
		}
		if t.Status != ReviewStatusPending {
			return fmt.Errorf("review task %s already %s: %w", id, t.Status, ErrPreconditionFailed)
		}
		now := time.Now().UTC()
		t.Status = status
		t.Reason = reason
		t.ResolvedAt = &now
		if err := tx.Save(&t).Error; err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
