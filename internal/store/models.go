// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap is a free-form string -> JSON value mapping stored as an opaque
// JSON blob.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(b, m)
}

// StringList is an ordered list of strings stored as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
	if len(b) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(b, l)
}

// Bucket is a named container of events from one watcher on one device.
type Bucket struct {
	ID        string `gorm:"primaryKey"`
	Type      string `gorm:"type:text"`
	Hostname  string `gorm:"type:text"`
	Client    string `gorm:"type:text"`
	CreatedAt time.Time
}

// Event is a raw watcher event. Events are append-only; the engine never
// edits them after insertion. The id is a per-bucket integer assigned by the
// store on insert.
type Event struct {
	BucketID  string    `gorm:"primaryKey" json:"bucket_id"`
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Timestamp time.Time `gorm:"index:idx_events_bucket_ts,priority:2" json:"timestamp"`
	Duration  float64   `json:"duration"`
	Data      JSONMap   `gorm:"type:text" json:"data"`
}

// End returns the event end time (start + duration).
func (e Event) End() time.Time {
	return e.Timestamp.Add(time.Duration(e.Duration * float64(time.Second)))
}

// ObjectType describes a class of business objects.
type ObjectType struct {
	Name        string  `gorm:"primaryKey" json:"name"`
	DisplayName string  `gorm:"type:text" json:"display_name"`
	Schema      JSONMap `gorm:"type:text" json:"schema,omitempty"`
	Icon        string  `gorm:"type:text" json:"icon,omitempty"`
	Color       string  `gorm:"type:text" json:"color,omitempty"`
	Seeded      bool    `json:"seeded"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Object is a business object instance. (Type, Name) is unique; the
// extractor deduplicates on the pair.
type Object struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"uniqueIndex:idx_objects_type_name,priority:1;index" json:"type"`
	Name      string    `gorm:"uniqueIndex:idx_objects_type_name,priority:2" json:"name"`
	Data      JSONMap   `gorm:"type:text" json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule provenance values.
const (
	RuleProvenanceSeed    = "seed"
	RuleProvenanceUser    = "user"
	RuleProvenanceLearned = "learned"
)

// ExtractionRule describes how to extract objects of one type from event
// text fields.
type ExtractionRule struct {
	ID           string     `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"type:text" json:"name"`
	ObjectType   string     `gorm:"index" json:"object_type"`
	SourceFields StringList `gorm:"type:text" json:"source_fields"`
	Pattern      string     `gorm:"type:text" json:"pattern"`
	NameTemplate string     `gorm:"type:text" json:"name_template"`
	DataMapping  JSONMap    `gorm:"type:text" json:"data_mapping"`
	Enabled      bool       `gorm:"index" json:"enabled"`
	Priority     int        `json:"priority"`
	Provenance   string     `json:"provenance"`
	MatchCount   int64      `json:"match_count"`
	ConfirmCount int64      `json:"confirm_count"`
	RejectCount  int64      `json:"reject_count"`
	Confidence   float64    `json:"confidence"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Link provenance values. Rule-derived links use "rule:<rule-id>".
const (
	LinkProvenanceLLM    = "llm"
	LinkProvenanceManual = "manual"
)

// EventObjectLink binds an event to an object. Unique on the full triple;
// cascade-deletes with its object.
type EventObjectLink struct {
	BucketID   string    `gorm:"primaryKey" json:"bucket_id"`
	EventID    int64     `gorm:"primaryKey;autoIncrement:false" json:"event_id"`
	ObjectID   string    `gorm:"primaryKey;index" json:"object_id"`
	Provenance string    `gorm:"type:text" json:"provenance"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Step is a labelled grouping of events that behave as one logical activity.
type Step struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:text" json:"name"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Duration  float64   `json:"duration"`
	Data      JSONMap   `gorm:"type:text" json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StepEvent references an event belonging to a step, in order.
type StepEvent struct {
	StepID   string `gorm:"primaryKey"`
	BucketID string `gorm:"primaryKey"`
	EventID  int64  `gorm:"primaryKey;autoIncrement:false"`
	Position int
}

// StepObject links a step to an object it touches.
type StepObject struct {
	StepID   string `gorm:"primaryKey"`
	ObjectID string `gorm:"primaryKey"`
}

// Workflow lifecycle states.
const (
	WorkflowStateDraft    = "draft"
	WorkflowStateActive   = "active"
	WorkflowStateArchived = "archived"
)

// PatternStep is one abstract activity position in a workflow pattern.
type PatternStep struct {
	Label      string `json:"label"`
	Optional   bool   `json:"optional,omitempty"`
	AllowedGap int    `json:"allowed_gap,omitempty"`
}

// Pattern is an ordered sequence of abstract activity labels.
type Pattern []PatternStep

// Value implements driver.Valuer.
func (p Pattern) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Pattern) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*p = Pattern{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Pattern", value)
	}
	if len(b) == 0 {
		*p = Pattern{}
		return nil
	}
	return json.Unmarshal(b, p)
}

// Labels returns the label sequence of the pattern.
func (p Pattern) Labels() []string {
	labels := make([]string, len(p))
	for i, s := range p {
		labels[i] = s.Label
	}
	return labels
}

// Workflow is a named, saved process pattern with lifecycle and history.
type Workflow struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:text" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Pattern     Pattern   `gorm:"type:text" json:"pattern"`
	State       string    `gorm:"index" json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkflowStep references a step template of a workflow, in order.
type WorkflowStep struct {
	WorkflowID string `gorm:"primaryKey"`
	StepID     string `gorm:"primaryKey"`
	Position   int
}

// WorkflowObject links a workflow to an object it is attached to.
type WorkflowObject struct {
	WorkflowID string `gorm:"primaryKey"`
	ObjectID   string `gorm:"primaryKey"`
}

// Occurrence is a concrete matching of a workflow pattern against a case.
type Occurrence struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	WorkflowID string    `gorm:"index" json:"workflow_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Duration   float64   `json:"duration"`
	CreatedAt  time.Time `json:"created_at"`
}

// OccurrenceStepInstance references a step instance of an occurrence at a
// pattern position.
type OccurrenceStepInstance struct {
	OccurrenceID string `gorm:"primaryKey"`
	Position     int    `gorm:"primaryKey;autoIncrement:false"`
	StepID       string `gorm:"index"`
}

// Review task statuses.
const (
	ReviewStatusPending   = "pending"
	ReviewStatusConfirmed = "confirmed"
	ReviewStatusRejected  = "rejected"
	ReviewStatusCorrected = "corrected"
)

// ReviewTask is a low-confidence LLM extraction candidate awaiting user
// review.
type ReviewTask struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	BucketID      string     `json:"bucket_id"`
	EventID       int64      `json:"event_id"`
	ObjectType    string     `json:"object_type"`
	Identifier    string     `json:"identifier"`
	IdentifierKey string     `json:"identifier_key,omitempty"`
	Confidence    float64    `json:"confidence"`
	Status        string     `gorm:"index" json:"status"`
	Reason        string     `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// Audit record kinds.
const (
	AuditRuleDemoted  = "rule_demoted"
	AuditRuleLearned  = "rule_learned"
	AuditCorrection   = "correction"
	AuditRuleDisabled = "rule_quarantined"
)

// AuditRecord tracks ontology provenance: demotions, learned rules and
// corrections.
type AuditRecord struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Kind      string    `gorm:"index" json:"kind"`
	SubjectID string    `gorm:"index" json:"subject_id"`
	Detail    JSONMap   `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SchemaMigration records an applied schema version.
type SchemaMigration struct {
	Version   int `gorm:"primaryKey;autoIncrement:false"`
	AppliedAt time.Time
}
