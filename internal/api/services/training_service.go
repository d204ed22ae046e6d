// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/store"
)

// TrainingService resolves the review queue of low-confidence extraction
// candidates. Resolutions feed back into rule confidence when the candidate
// overlaps a rule-made link.
type TrainingService struct {
	store     *store.Store
	extractor *extract.Extractor
	logger    *slog.Logger
}

// NewTrainingService creates a new TrainingService.
func NewTrainingService(st *store.Store, ex *extract.Extractor, logger *slog.Logger) *TrainingService {
	return &TrainingService{store: st, extractor: ex, logger: logger}
}

// Pending returns unresolved review tasks, oldest first.
func (s *TrainingService) Pending(ctx context.Context, limit int) ([]store.ReviewTask, error) {
	return s.store.ListPendingReviewTasks(ctx, limit)
}

// Confirm accepts a candidate: the object is created (or reused) and linked
// to the originating event. When the event already carries a rule-made link
// to the same object, the rule's confidence is reinforced.
func (s *TrainingService) Confirm(ctx context.Context, taskID string) (*store.ReviewTask, error) {
	task, err := s.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	data := store.JSONMap{}
	if task.IdentifierKey != "" {
		data[task.IdentifierKey] = task.Identifier
	}
	obj, _, err := s.store.UpsertObject(ctx, task.ObjectType, task.Identifier, data, false)
	if err != nil {
		return nil, err
	}
	if s.ruleLinked(ctx, task, obj.ID) {
		if err := s.extractor.Confirm(ctx, task.BucketID, task.EventID, obj.ID); err != nil {
			return nil, err
		}
	} else if err := s.store.LinkEventToObject(ctx, task.BucketID, task.EventID, obj.ID, store.LinkProvenanceLLM, 1.0); err != nil {
		return nil, err
	}
	return s.store.ResolveReviewTask(ctx, taskID, store.ReviewStatusConfirmed, "")
}

// Reject discards a candidate. When the event carries a rule-made link to
// the candidate object, the link is removed and the rule penalised.
func (s *TrainingService) Reject(ctx context.Context, taskID string, req *models.RejectRequest) (*store.ReviewTask, error) {
	task, err := s.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	reason := ""
	if req != nil {
		reason = req.Reason
	}
	if obj, err := s.findCandidate(ctx, task); err == nil && s.ruleLinked(ctx, task, obj.ID) {
		if err := s.extractor.Reject(ctx, task.BucketID, task.EventID, obj.ID, reason); err != nil {
			return nil, err
		}
	}
	return s.store.ResolveReviewTask(ctx, taskID, store.ReviewStatusRejected, reason)
}

// Correct accepts a candidate with overrides. Corrections of rule-made links
// go through the extractor so repeated fixes can propose a learned rule.
func (s *TrainingService) Correct(ctx context.Context, taskID string, req *models.CorrectRequest) (*store.ReviewTask, error) {
	task, err := s.store.GetReviewTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	corr := extract.Correction{
		Type:          strings.TrimSpace(req.ObjectType),
		Name:          strings.TrimSpace(req.Name),
		IdentifierKey: strings.TrimSpace(req.IdentifierKey),
	}
	if corr.Type == "" {
		corr.Type = task.ObjectType
	}
	if corr.Name == "" {
		corr.Name = task.Identifier
	}
	if corr.IdentifierKey == "" {
		corr.IdentifierKey = task.IdentifierKey
	}

	if obj, err := s.findCandidate(ctx, task); err == nil && s.ruleLinked(ctx, task, obj.ID) {
		if err := s.extractor.Correct(ctx, task.BucketID, task.EventID, obj.ID, corr); err != nil {
			return nil, err
		}
	} else {
		data := store.JSONMap{}
		if corr.IdentifierKey != "" {
			data[corr.IdentifierKey] = corr.Name
		}
		corrected, _, err := s.store.UpsertObject(ctx, corr.Type, corr.Name, data, false)
		if err != nil {
			return nil, err
		}
		if err := s.store.LinkEventToObject(ctx, task.BucketID, task.EventID, corrected.ID, store.LinkProvenanceManual, 1.0); err != nil {
			return nil, err
		}
	}
	return s.store.ResolveReviewTask(ctx, taskID, store.ReviewStatusCorrected, "")
}

// findCandidate resolves the task's (type, identifier) to an existing
// object, if any.
func (s *TrainingService) findCandidate(ctx context.Context, task *store.ReviewTask) (*store.Object, error) {
	objects, err := s.store.ListObjects(ctx, store.ObjectFilter{Type: task.ObjectType, Query: task.Identifier, Limit: 0})
	if err != nil {
		return nil, err
	}
	for i := range objects {
		if objects[i].Name == task.Identifier {
			return &objects[i], nil
		}
	}
	return nil, store.ErrNotFound
}

// ruleLinked reports whether the task's event has a rule-provenance link to
// the object.
func (s *TrainingService) ruleLinked(ctx context.Context, task *store.ReviewTask, objectID string) bool {
	link, err := s.store.GetLink(ctx, task.BucketID, task.EventID, objectID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("link lookup failed", "bucket_id", task.BucketID, "event_id", task.EventID, "error", err)
		}
		return false
	}
	return strings.HasPrefix(link.Provenance, "rule:")
}
