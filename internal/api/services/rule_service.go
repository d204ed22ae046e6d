// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/store"
)

// RuleService manages extraction rules and extraction jobs.
type RuleService struct {
	store        *store.Store
	extractor    *extract.Extractor
	orchestrator *jobs.Orchestrator
	logger       *slog.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(st *store.Store, ex *extract.Extractor, orch *jobs.Orchestrator, logger *slog.Logger) *RuleService {
	return &RuleService{store: st, extractor: ex, orchestrator: orch, logger: logger}
}

// List returns all rules in extraction order.
func (s *RuleService) List(ctx context.Context) ([]store.ExtractionRule, error) {
	return s.store.ListRules(ctx, false)
}

// Create validates and persists a rule. Invalid regexes and unresolvable
// template placeholders are rejected up front.
func (s *RuleService) Create(ctx context.Context, req *models.CreateRuleRequest) (*store.ExtractionRule, error) {
	if err := extract.ValidateRule(req.Pattern, req.NameTemplate, req.DataMapping); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	r := &store.ExtractionRule{
		ID:           uuid.NewString(),
		Name:         req.Name,
		ObjectType:   req.ObjectType,
		SourceFields: req.SourceFields,
		Pattern:      req.Pattern,
		NameTemplate: req.NameTemplate,
		DataMapping:  req.DataMapping,
		Enabled:      true,
		Priority:     req.Priority,
		Provenance:   store.RuleProvenanceUser,
		Confidence:   0.8,
	}
	if req.Enabled != nil {
		r.Enabled = *req.Enabled
	}
	if req.Confidence != nil {
		r.Confidence = *req.Confidence
	}
	if err := s.store.CreateRule(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("extraction rule created", "rule_id", r.ID, "object_type", r.ObjectType)
	return r, nil
}

// Get returns one rule.
func (s *RuleService) Get(ctx context.Context, id string) (*store.ExtractionRule, error) {
	return s.store.GetRule(ctx, id)
}

// Update applies the non-nil fields of the request, revalidating pattern and
// template together.
func (s *RuleService) Update(ctx context.Context, id string, req *models.UpdateRuleRequest) (*store.ExtractionRule, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.SourceFields != nil {
		r.SourceFields = req.SourceFields
	}
	if req.Pattern != nil {
		r.Pattern = *req.Pattern
	}
	if req.NameTemplate != nil {
		r.NameTemplate = *req.NameTemplate
	}
	if req.DataMapping != nil {
		r.DataMapping = req.DataMapping
	}
	if req.Enabled != nil {
		r.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		r.Priority = *req.Priority
	}
	if req.Confidence != nil {
		r.Confidence = *req.Confidence
	}
	if err := extract.ValidateRule(r.Pattern, r.NameTemplate, r.DataMapping); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if err := s.store.UpdateRule(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes a rule and its provenance links.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}

// Test dry-runs a rule against the request samples without touching the
// store.
func (s *RuleService) Test(ctx context.Context, id string, req *models.TestRuleRequest) ([]extract.RuleTestResult, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	samples := make([]map[string]string, len(req.Samples))
	for i, sm := range req.Samples {
		samples[i] = map[string]string{"title": sm.Title, "url": sm.URL, "ocr_text": sm.OCRText}
	}
	results, err := extract.TestRule(r, samples)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return results, nil
}

// Run triggers an asynchronous extraction job over the window.
func (s *RuleService) Run(ctx context.Context, req *models.TimeWindowRequest) (*jobs.Job, error) {
	return s.orchestrator.RunExtraction(jobs.Window{Bucket: req.Bucket, Start: req.Start, End: req.End})
}
