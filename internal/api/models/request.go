// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package models holds the REST request and response shapes.
package models

import (
	"time"

	"github.com/procmine/procmine/internal/store"
)

// CreateObjectTypeRequest creates an ontology type.
type CreateObjectTypeRequest struct {
	Name        string        `json:"name" validate:"required"`
	DisplayName string        `json:"display_name,omitempty"`
	Schema      store.JSONMap `json:"schema,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	Color       string        `json:"color,omitempty"`
}

// UpdateObjectTypeRequest updates the mutable fields of a type.
type UpdateObjectTypeRequest struct {
	DisplayName *string       `json:"display_name,omitempty"`
	Schema      store.JSONMap `json:"schema,omitempty"`
	Icon        *string       `json:"icon,omitempty"`
	Color       *string       `json:"color,omitempty"`
}

// CreateObjectRequest creates a business object manually.
type CreateObjectRequest struct {
	Type string        `json:"type" validate:"required"`
	Name string        `json:"name" validate:"required"`
	Data store.JSONMap `json:"data,omitempty"`
}

// UpdateObjectRequest updates an object's name and data.
type UpdateObjectRequest struct {
	Name *string       `json:"name,omitempty"`
	Data store.JSONMap `json:"data,omitempty"`
}

// CreateRuleRequest creates an extraction rule.
type CreateRuleRequest struct {
	Name         string        `json:"name,omitempty"`
	ObjectType   string        `json:"object_type" validate:"required"`
	SourceFields []string      `json:"source_fields" validate:"required,min=1"`
	Pattern      string        `json:"pattern" validate:"required"`
	NameTemplate string        `json:"name_template" validate:"required"`
	DataMapping  store.JSONMap `json:"data_mapping,omitempty"`
	Enabled      *bool         `json:"enabled,omitempty"`
	Priority     int           `json:"priority,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// UpdateRuleRequest updates an extraction rule.
type UpdateRuleRequest struct {
	Name         *string       `json:"name,omitempty"`
	SourceFields []string      `json:"source_fields,omitempty"`
	Pattern      *string       `json:"pattern,omitempty"`
	NameTemplate *string       `json:"name_template,omitempty"`
	DataMapping  store.JSONMap `json:"data_mapping,omitempty"`
	Enabled      *bool         `json:"enabled,omitempty"`
	Priority     *int          `json:"priority,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// RuleSample is one dry-run input for rule testing.
type RuleSample struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	OCRText string `json:"ocr_text,omitempty"`
}

// TestRuleRequest dry-runs a rule against sample texts.
type TestRuleRequest struct {
	Samples []RuleSample `json:"samples" validate:"required,min=1"`
}

// TimeWindowRequest bounds a job to a bucket and time range.
type TimeWindowRequest struct {
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
	Bucket string    `json:"bucket,omitempty"`
}

// LinkRequest links an event to an object.
type LinkRequest struct {
	ObjectID   string  `json:"object_id" validate:"required"`
	Confidence float64 `json:"confidence,omitempty" validate:"gte=0,lte=1"`
}

// RejectRequest rejects a training candidate.
type RejectRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CorrectRequest corrects a training candidate before accepting it.
type CorrectRequest struct {
	ObjectType    string `json:"object_type,omitempty"`
	Name          string `json:"name,omitempty"`
	IdentifierKey string `json:"identifier_key,omitempty"`
}

// CreateStepRequest creates a step manually.
type CreateStepRequest struct {
	Name      string           `json:"name" validate:"required"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Duration  float64          `json:"duration,omitempty" validate:"gte=0"`
	Data      store.JSONMap    `json:"data,omitempty"`
	Events    []store.EventRef `json:"events,omitempty"`
	ObjectIDs []string         `json:"object_ids,omitempty"`
}

// UpdateStepRequest updates a step's mutable fields.
type UpdateStepRequest struct {
	Name *string       `json:"name,omitempty"`
	Data store.JSONMap `json:"data,omitempty"`
}

// CreateWorkflowRequest saves a workflow template.
type CreateWorkflowRequest struct {
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description,omitempty"`
	Pattern     store.Pattern `json:"pattern" validate:"required,min=2"`
	StepIDs     []string      `json:"step_ids,omitempty"`
	ObjectIDs   []string      `json:"object_ids,omitempty"`
}

// UpdateWorkflowRequest updates a workflow; State transitions are validated
// against the lifecycle.
type UpdateWorkflowRequest struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Pattern     store.Pattern `json:"pattern,omitempty" validate:"omitempty,min=2"`
	State       *string       `json:"state,omitempty" validate:"omitempty,oneof=draft active archived"`
}

// MiningRequest triggers a mining job.
type MiningRequest struct {
	TimeWindowRequest
	MinSupport    float64 `json:"min_support,omitempty" validate:"gte=0,lte=1"`
	MinLength     int     `json:"min_length,omitempty" validate:"gte=0"`
	MaxLength     int     `json:"max_length,omitempty" validate:"gte=0"`
	MaxGapSeconds float64 `json:"max_gap_seconds,omitempty" validate:"gte=0"`
	NonContiguous bool    `json:"non_contiguous,omitempty"`
	// WorkflowID selects the workflow for match jobs.
	WorkflowID string `json:"workflow_id,omitempty"`
}

// EventPayload is one ingested watcher event. IDs are assigned per bucket by
// the store.
type EventPayload struct {
	Timestamp time.Time     `json:"timestamp" validate:"required"`
	Duration  float64       `json:"duration" validate:"gte=0"`
	Data      store.JSONMap `json:"data,omitempty"`
}

// IngestEventsRequest appends events to a bucket.
type IngestEventsRequest struct {
	Events []EventPayload `json:"events" validate:"required,min=1,dive"`
}
