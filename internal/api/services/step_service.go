// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"log/slog"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/store"
)

// StepService manages manually created and mined steps.
type StepService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewStepService creates a new StepService.
func NewStepService(st *store.Store, logger *slog.Logger) *StepService {
	return &StepService{store: st, logger: logger}
}

// List returns steps, newest first.
func (s *StepService) List(ctx context.Context, limit int) ([]store.Step, error) {
	return s.store.ListSteps(ctx, limit)
}

// Create persists a step with its event references and object links.
func (s *StepService) Create(ctx context.Context, req *models.CreateStepRequest) (*models.StepResponse, error) {
	duration := req.Duration
	if duration == 0 && req.End.After(req.Start) {
		duration = req.End.Sub(req.Start).Seconds()
	}
	step := &store.Step{
		Name:     req.Name,
		Start:    req.Start,
		End:      req.End,
		Duration: duration,
		Data:     req.Data,
	}
	if err := s.store.CreateStep(ctx, step, req.Events, req.ObjectIDs); err != nil {
		return nil, err
	}
	return s.Get(ctx, step.ID)
}

// Get returns a step with its event references and object ids.
func (s *StepService) Get(ctx context.Context, id string) (*models.StepResponse, error) {
	step, events, objectIDs, err := s.store.GetStep(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []store.EventRef{}
	}
	if objectIDs == nil {
		objectIDs = []string{}
	}
	return &models.StepResponse{Step: *step, Events: events, ObjectIDs: objectIDs}, nil
}

// Update applies the non-nil fields of the request.
func (s *StepService) Update(ctx context.Context, id string, req *models.UpdateStepRequest) (*models.StepResponse, error) {
	step, _, _, err := s.store.GetStep(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		step.Name = *req.Name
	}
	if req.Data != nil {
		step.Data = req.Data
	}
	if err := s.store.UpdateStep(ctx, step); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a step; steps referenced by workflows or occurrences are
// rejected with a precondition error.
func (s *StepService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteStep(ctx, id)
}

// AddObject attaches an object to a step.
func (s *StepService) AddObject(ctx context.Context, stepID, objectID string) error {
	return s.store.AddStepObject(ctx, stepID, objectID)
}

// RemoveObject detaches an object from a step.
func (s *StepService) RemoveObject(ctx context.Context, stepID, objectID string) error {
	return s.store.RemoveStepObject(ctx, stepID, objectID)
}
