// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/store"
)

// WorkflowService manages saved workflow templates and their occurrence
// history, enforcing the draft -> active -> archived lifecycle.
type WorkflowService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(st *store.Store, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{store: st, logger: logger}
}

// List returns workflows; archived ones only when requested.
func (s *WorkflowService) List(ctx context.Context, includeArchived bool) ([]store.Workflow, error) {
	return s.store.ListWorkflows(ctx, includeArchived)
}

// Workflow patterns describe a step sequence; a single step is not a
// sequence.
const minPatternSteps = 2

// Create saves a workflow template in draft state.
func (s *WorkflowService) Create(ctx context.Context, req *models.CreateWorkflowRequest) (*models.WorkflowResponse, error) {
	if len(req.Pattern) < minPatternSteps {
		return nil, fmt.Errorf("%w: workflow pattern needs at least %d steps", ErrInvalidArgument, minPatternSteps)
	}
	wf := &store.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Pattern:     req.Pattern,
	}
	if err := s.store.CreateWorkflow(ctx, wf, req.StepIDs, req.ObjectIDs); err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", "workflow_id", wf.ID, "name", wf.Name)
	return s.Get(ctx, wf.ID)
}

// Get returns a workflow with its attached step and object ids.
func (s *WorkflowService) Get(ctx context.Context, id string) (*models.WorkflowResponse, error) {
	wf, stepIDs, objectIDs, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if stepIDs == nil {
		stepIDs = []string{}
	}
	if objectIDs == nil {
		objectIDs = []string{}
	}
	return &models.WorkflowResponse{Workflow: *wf, StepIDs: stepIDs, ObjectIDs: objectIDs}, nil
}

// allowedTransitions are the lifecycle edges a client may request.
var allowedTransitions = map[string]map[string]bool{
	store.WorkflowStateDraft:  {store.WorkflowStateActive: true},
	store.WorkflowStateActive: {store.WorkflowStateArchived: true},
}

// Update applies the non-nil fields of the request. State changes outside
// draft -> active -> archived are rejected.
func (s *WorkflowService) Update(ctx context.Context, id string, req *models.UpdateWorkflowRequest) (*models.WorkflowResponse, error) {
	wf, _, _, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.State != nil && *req.State != wf.State {
		if !allowedTransitions[wf.State][*req.State] {
			return nil, fmt.Errorf("workflow state %s -> %s: %w", wf.State, *req.State, store.ErrPreconditionFailed)
		}
		wf.State = *req.State
	}
	if req.Name != nil {
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.Pattern != nil {
		if len(req.Pattern) < minPatternSteps {
			return nil, fmt.Errorf("%w: workflow pattern needs at least %d steps", ErrInvalidArgument, minPatternSteps)
		}
		wf.Pattern = req.Pattern
	}
	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a workflow, cascading to its occurrences and step
// instances.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteWorkflow(ctx, id)
}

// AddObject attaches an object to a workflow.
func (s *WorkflowService) AddObject(ctx context.Context, workflowID, objectID string) error {
	return s.store.AddWorkflowObject(ctx, workflowID, objectID)
}

// RemoveObject detaches an object from a workflow.
func (s *WorkflowService) RemoveObject(ctx context.Context, workflowID, objectID string) error {
	return s.store.RemoveWorkflowObject(ctx, workflowID, objectID)
}

// Occurrences returns the matching history of a workflow.
func (s *WorkflowService) Occurrences(ctx context.Context, workflowID string) ([]store.Occurrence, error) {
	if _, _, _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.store.ListOccurrences(ctx, workflowID)
}

// Occurrence returns one occurrence with its ordered step instances.
func (s *WorkflowService) Occurrence(ctx context.Context, workflowID, occurrenceID string) (*models.OccurrenceResponse, error) {
	occ, steps, err := s.store.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, err
	}
	if occ.WorkflowID != workflowID {
		return nil, fmt.Errorf("occurrence %s: %w", occurrenceID, store.ErrNotFound)
	}
	if steps == nil {
		steps = []store.StepInstanceRef{}
	}
	return &models.OccurrenceResponse{Occurrence: *occ, Steps: steps}, nil
}
