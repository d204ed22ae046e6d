// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package models

import (
	"time"

	"github.com/procmine/procmine/internal/store"
)

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the envelope `{error: {code, message, details?}}`.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(code, message string, details map[string]any) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Details: details}}
}

// ListResponse wraps list endpoints.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"total_count"`
}

// NewListResponse builds a list envelope; a nil slice serialises as [].
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, TotalCount: len(items)}
}

// StepResponse is a step with its event references and linked objects.
type StepResponse struct {
	store.Step
	Events    []store.EventRef `json:"events"`
	ObjectIDs []string         `json:"object_ids"`
}

// WorkflowResponse is a workflow with its attached step and object ids.
type WorkflowResponse struct {
	store.Workflow
	StepIDs   []string `json:"step_ids"`
	ObjectIDs []string `json:"object_ids"`
}

// OccurrenceResponse is an occurrence with its ordered step instances.
type OccurrenceResponse struct {
	store.Occurrence
	Steps []store.StepInstanceRef `json:"steps"`
}

// JobResponse reports an orchestrator job's status.
type JobResponse struct {
	JobID      string     `json:"job_id"`
	Kind       string     `json:"kind"`
	State      string     `json:"state"`
	Progress   float64    `json:"progress"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IngestEventsResponse reports the ids assigned to ingested events.
type IngestEventsResponse struct {
	EventIDs []int64 `json:"event_ids"`
	Enqueued int     `json:"enqueued_for_enrichment"`
}

// LinkedObjectResponse pairs an object with the link that attaches it to an
// event.
type LinkedObjectResponse struct {
	Object store.Object          `json:"object"`
	Link   store.EventObjectLink `json:"link"`
}
