// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRef identifies one event within a bucket.
type EventRef struct {
	BucketID string `json:"bucket_id"`
	EventID  int64  `json:"event_id"`
}

// CreateStep persists a step with its ordered event references and object
// id set.
func (s *Store) CreateStep(ctx context.Context, step *Step, events []EventRef, objectIDs []string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		if step.ID == "" {
			step.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		step.CreatedAt, step.UpdatedAt = now, now
		if err := tx.Create(step).Error; err != nil {
			return err
		}
		for i, ref := range events {
			se := StepEvent{StepID: step.ID, BucketID: ref.BucketID, EventID: ref.EventID, Position: i}
			if err := tx.Create(&se).Error; err != nil {
				return err
			}
		}
		for _, oid := range dedupeStrings(objectIDs) {
			if err := tx.Create(&StepObject{StepID: step.ID, ObjectID: oid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetStep returns a step with its ordered event references and object ids.
func (s *Store) GetStep(ctx context.Context, id string) (*Step, []EventRef, []string, error) {
	var step Step
	if err := s.read(ctx).First(&step, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("step %s: %w", id, ErrNotFound)
		}
		return nil, nil, nil, err
	}
	var stepEvents []StepEvent
	if err := s.read(ctx).Where("step_id = ?", id).Order("position ASC").Find(&stepEvents).Error; err != nil {
		return nil, nil, nil, err
	}
	refs := make([]EventRef, len(stepEvents))
	for i, se := range stepEvents {
		refs[i] = EventRef{BucketID: se.BucketID, EventID: se.EventID}
	}
	var objectIDs []string
	if err := s.read(ctx).Model(&StepObject{}).Where("step_id = ?", id).
		Order("object_id ASC").Pluck("object_id", &objectIDs).Error; err != nil {
		return nil, nil, nil, err
	}
	return &step, refs, objectIDs, nil
}

// ListSteps returns steps ordered by start time descending.
func (s *Store) ListSteps(ctx context.Context, limit int) ([]Step, error) {
	q := s.read(ctx).Order("start DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var steps []Step
	if err := q.Find(&steps).Error; err != nil {
		return nil, err
	}
	return steps, nil
}

// UpdateStep replaces the mutable fields of a step.
func (s *Store) UpdateStep(ctx context.Context, step *Step) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing Step
		if err := tx.First(&existing, "id = ?", step.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("step %s: %w", step.ID, ErrNotFound)
			}
			return err
		}
		step.CreatedAt = existing.CreatedAt
		step.UpdatedAt = time.Now().UTC()
		return tx.Save(step).Error
	})
}

// DeleteStep removes a step. Steps referenced by a workflow or occurrence
// may not be deleted.
func (s *Store) DeleteStep(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&WorkflowStep{}).Where("step_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("step %s is referenced by %d workflows: %w", id, refs, ErrPreconditionFailed)
		}
		if err := tx.Model(&OccurrenceStepInstance{}).Where("step_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("step %s is referenced by %d occurrences: %w", id, refs, ErrPreconditionFailed)
		}
		res := tx.Delete(&Step{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("step %s: %w", id, ErrNotFound)
		}
		if err := tx.Delete(&StepEvent{}, "step_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&StepObject{}, "step_id = ?", id).Error
	})
}

// AddStepObject attaches an object to a step; idempotent.
func (s *Store) AddStepObject(ctx context.Context, stepID, objectID string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var step Step
		if err := tx.First(&step, "id = ?", stepID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("step %s: %w", stepID, ErrNotFound)
			}
			return err
		}
		var obj Object
		if err := tx.First(&obj, "id = ?", objectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("object %s: %w", objectID, ErrNotFound)
			}
			return err
		}
		var existing StepObject
		err := tx.First(&existing, "step_id = ? AND object_id = ?", stepID, objectID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&StepObject{StepID: stepID, ObjectID: objectID}).Error
	})
}

// RemoveStepObject detaches an object from a step.
func (s *Store) RemoveStepObject(ctx context.Context, stepID, objectID string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&StepObject{}, "step_id = ? AND object_id = ?", stepID, objectID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("step object %s -> %s: %w", stepID, objectID, ErrNotFound)
		}
		return nil
	})
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			if events[i].BucketID == events[j].BucketID {
				return events[i].ID < events[j].ID
			}
			return events[i].BucketID < events[j].BucketID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
