// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/procmine/procmine/internal/api/models"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/store"
)

// syncEventLimit is the window size below which pattern mining runs
// synchronously inside the request.
const syncEventLimit = 10_000

// MiningService triggers orchestrator jobs and reports their status.
type MiningService struct {
	store        *store.Store
	orchestrator *jobs.Orchestrator
	logger       *slog.Logger
}

// NewMiningService creates a new MiningService.
func NewMiningService(st *store.Store, orch *jobs.Orchestrator, logger *slog.Logger) *MiningService {
	return &MiningService{store: st, orchestrator: orch, logger: logger}
}

func miningParams(req *models.MiningRequest) jobs.MiningParams {
	return jobs.MiningParams{
		Window:        jobs.Window{Bucket: req.Bucket, Start: req.Start, End: req.End},
		MinSupport:    req.MinSupport,
		MinLength:     req.MinLength,
		MaxLength:     req.MaxLength,
		MaxGapSeconds: req.MaxGapSeconds,
		NonContiguous: req.NonContiguous,
	}
}

// countWindow sizes the request's window across one or all buckets.
func (s *MiningService) countWindow(ctx context.Context, req *models.MiningRequest) (int64, error) {
	if req.Bucket != "" {
		return s.store.CountEvents(ctx, req.Bucket, req.Start, req.End)
	}
	buckets, err := s.store.ListBuckets(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, b := range buckets {
		n, err := s.store.CountEvents(ctx, b.ID, req.Start, req.End)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Patterns mines frequent patterns over the window. Small windows run
// synchronously and return the finished job; larger ones return immediately
// with a queued job.
func (s *MiningService) Patterns(ctx context.Context, req *models.MiningRequest) (jobs.Job, bool, error) {
	total, err := s.countWindow(ctx, req)
	if err != nil {
		return jobs.Job{}, false, err
	}
	job, err := s.orchestrator.RunPatterns(miningParams(req))
	if err != nil {
		return jobs.Job{}, false, err
	}
	if total >= syncEventLimit {
		return *job, false, nil
	}
	final, err := s.orchestrator.Wait(job.ID)
	if err != nil {
		return jobs.Job{}, false, err
	}
	return final, true, nil
}

// GroupEvents starts an asynchronous case-building job.
func (s *MiningService) GroupEvents(ctx context.Context, req *models.MiningRequest) (jobs.Job, error) {
	job, err := s.orchestrator.RunGroupEvents(miningParams(req))
	if err != nil {
		return jobs.Job{}, err
	}
	return *job, nil
}

// DiscoverWorkflows starts the asynchronous discovery pipeline.
func (s *MiningService) DiscoverWorkflows(ctx context.Context, req *models.MiningRequest) (jobs.Job, error) {
	job, err := s.orchestrator.RunDiscoverWorkflows(miningParams(req))
	if err != nil {
		return jobs.Job{}, err
	}
	return *job, nil
}

// MatchWorkflow starts a job matching one saved workflow over the window.
func (s *MiningService) MatchWorkflow(ctx context.Context, req *models.MiningRequest) (jobs.Job, error) {
	if req.WorkflowID == "" {
		return jobs.Job{}, fmt.Errorf("workflow_id is required: %w", ErrInvalidArgument)
	}
	job, err := s.orchestrator.RunMatchWorkflow(req.WorkflowID, miningParams(req))
	if err != nil {
		return jobs.Job{}, err
	}
	return *job, nil
}

// Job returns a job snapshot by id.
func (s *MiningService) Job(ctx context.Context, id string) (jobs.Job, error) {
	return s.orchestrator.Get(id)
}

// CancelJob requests cancellation of a running job and returns its current
// snapshot.
func (s *MiningService) CancelJob(ctx context.Context, id string) (jobs.Job, error) {
	if err := s.orchestrator.Cancel(id); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			// Finished jobs are fine to "cancel" idempotently.
			return s.orchestrator.Get(id)
		}
		return jobs.Job{}, err
	}
	return s.orchestrator.Get(id)
}
