// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package services implements the business layer between the REST handlers
// and the store, extractor, enrichment queue and job orchestrator.
package services

import (
	"log/slog"

	"github.com/procmine/procmine/internal/enrich"
	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/store"
)

// Services aggregates all service instances.
type Services struct {
	ObjectService   *ObjectService
	RuleService     *RuleService
	EventService    *EventService
	TrainingService *TrainingService
	StepService     *StepService
	WorkflowService *WorkflowService
	MiningService   *MiningService
}

// NewServices creates and wires all services.
func NewServices(st *store.Store, ex *extract.Extractor, en *enrich.Service, orch *jobs.Orchestrator, logger *slog.Logger) *Services {
	return &Services{
		ObjectService:   NewObjectService(st, logger.With("service", "object")),
		RuleService:     NewRuleService(st, ex, orch, logger.With("service", "rule")),
		EventService:    NewEventService(st, en, logger.With("service", "event")),
		TrainingService: NewTrainingService(st, ex, logger.With("service", "training")),
		StepService:     NewStepService(st, logger.With("service", "step")),
		WorkflowService: NewWorkflowService(st, logger.With("service", "workflow")),
		MiningService:   NewMiningService(st, orch, logger.With("service", "mining")),
	}
}
