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

// CreateWorkflow persists a workflow together with its ordered step
// template ids and attached object ids.
func (s *Store) CreateWorkflow(ctx context.Context, wf *Workflow, stepIDs, objectIDs []string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		if wf.ID == "" {
			wf.ID = uuid.NewString()
		}
		if wf.State == "" {
			wf.State = WorkflowStateDraft
		}
		now := time.Now().UTC()
		wf.CreatedAt, wf.UpdatedAt = now, now
		if err := tx.Create(wf).Error; err != nil {
			return err
		}
		for i, sid := range stepIDs {
			if err := tx.Create(&WorkflowStep{WorkflowID: wf.ID, StepID: sid, Position: i}).Error; err != nil {
				return err
			}
		}
		for _, oid := range dedupeStrings(objectIDs) {
			if err := tx.Create(&WorkflowObject{WorkflowID: wf.ID, ObjectID: oid}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetWorkflow returns a workflow with its ordered step ids and object ids.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, []string, []string, error) {
	var wf Workflow
	if err := s.read(ctx).First(&wf, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, nil, nil, err
	}
	var wfSteps []WorkflowStep
	if err := s.read(ctx).Where("workflow_id = ?", id).Order("position ASC").Find(&wfSteps).Error; err != nil {
		return nil, nil, nil, err
	}
	stepIDs := make([]string, len(wfSteps))
	for i, ws := range wfSteps {
		stepIDs[i] = ws.StepID
	}
	var objectIDs []string
	if err := s.read(ctx).Model(&WorkflowObject{}).Where("workflow_id = ?", id).
		Order("object_id ASC").Pluck("object_id", &objectIDs).Error; err != nil {
		return nil, nil, nil, err
	}
	return &wf, stepIDs, objectIDs, nil
}

// ListWorkflows returns workflows ordered by creation time. Archived
// workflows are excluded unless includeArchived is set.
func (s *Store) ListWorkflows(ctx context.Context, includeArchived bool) ([]Workflow, error) {
	q := s.read(ctx).Model(&Workflow{})
	if !includeArchived {
		q = q.Where("state <> ?", WorkflowStateArchived)
	}
	var workflows []Workflow
	if err := q.Order("created_at ASC, id ASC").Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

// UpdateWorkflow replaces the mutable fields of a workflow, including its
// state. State transition legality is enforced by the service layer.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *Workflow) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var existing Workflow
		if err := tx.First(&existing, "id = ?", wf.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
			}
			return err
		}
		wf.CreatedAt = existing.CreatedAt
		wf.UpdatedAt = time.Now().UTC()
		return tx.Save(wf).Error
	})
}

// DeleteWorkflow deletes a workflow and cascade-deletes exactly its
// occurrences, occurrence step instances and junction rows.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&Workflow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		var occIDs []string
		if err := tx.Model(&Occurrence{}).Where("workflow_id = ?", id).Pluck("id", &occIDs).Error; err != nil {
			return err
		}
		if len(occIDs) > 0 {
			if err := tx.Delete(&OccurrenceStepInstance{}, "occurrence_id IN ?", occIDs).Error; err != nil {
				return err
			}
			if err := tx.Delete(&Occurrence{}, "workflow_id = ?", id).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&WorkflowStep{}, "workflow_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&WorkflowObject{}, "workflow_id = ?", id).Error
	})
}

// AddWorkflowObject attaches an object to a workflow; idempotent.
func (s *Store) AddWorkflowObject(ctx context.Context, workflowID, objectID string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var wf Workflow
		if err := tx.First(&wf, "id = ?", workflowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
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
		var existing WorkflowObject
		err := tx.First(&existing, "workflow_id = ? AND object_id = ?", workflowID, objectID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&WorkflowObject{WorkflowID: workflowID, ObjectID: objectID}).Error
	})
}

// RemoveWorkflowObject detaches an object from a workflow.
func (s *Store) RemoveWorkflowObject(ctx context.Context, workflowID, objectID string) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&WorkflowObject{}, "workflow_id = ? AND object_id = ?", workflowID, objectID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("workflow object %s -> %s: %w", workflowID, objectID, ErrNotFound)
		}
		return nil
	})
}

// StepInstanceRef references a step instance at a pattern position.
type StepInstanceRef struct {
	Position int    `json:"position"`
	StepID   string `json:"step_id"`
}

// CreateOccurrence persists an occurrence with its ordered step instances.
// The owning workflow transitions draft -> active on its first occurrence.
func (s *Store) CreateOccurrence(ctx context.Context, occ *Occurrence, steps []StepInstanceRef) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var wf Workflow
		if err := tx.First(&wf, "id = ?", occ.WorkflowID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("workflow %s: %w", occ.WorkflowID, ErrNotFound)
			}
			return err
		}
		if occ.ID == "" {
			occ.ID = uuid.NewString()
		}
		occ.CreatedAt = time.Now().UTC()
		if err := tx.Create(occ).Error; err != nil {
			return err
		}
		for _, ref := range steps {
			inst := OccurrenceStepInstance{OccurrenceID: occ.ID, Position: ref.Position, StepID: ref.StepID}
			if err := tx.Create(&inst).Error; err != nil {
				return err
			}
		}
		if wf.State == WorkflowStateDraft {
			wf.State = WorkflowStateActive
			wf.UpdatedAt = time.Now().UTC()
			return tx.Save(&wf).Error
		}
		return nil
	})
}

// GetOccurrence returns an occurrence with its ordered step instances.
func (s *Store) GetOccurrence(ctx context.Context, id string) (*Occurrence, []StepInstanceRef, error) {
	var occ Occurrence
	if err := s.read(ctx).First(&occ, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("occurrence %s: %w", id, ErrNotFound)
		}
		return nil, nil, err
	}
	var instances []OccurrenceStepInstance
	if err := s.read(ctx).Where("occurrence_id = ?", id).Order("position ASC").Find(&instances).Error; err != nil {
		return nil, nil, err
	}
	refs := make([]StepInstanceRef, len(instances))
	for i, inst := range instances {
		refs[i] = StepInstanceRef{Position: inst.Position, StepID: inst.StepID}
	}
	return &occ, refs, nil
}

// ListOccurrences returns the occurrences of a workflow ordered by start.
func (s *Store) ListOccurrences(ctx context.Context, workflowID string) ([]Occurrence, error) {
	var occurrences []Occurrence
	err := s.read(ctx).Where("workflow_id = ?", workflowID).
		Order("start ASC, id ASC").Find(&occurrences).Error
	if err != nil {
		return nil, err
	}
	return occurrences, nil
}
