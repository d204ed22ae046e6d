// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobs runs the analysis orchestrator: singleton background jobs
// that extract objects, build cases, mine patterns and reconcile workflows.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/store"
)

// Job states.
const (
	StateQueued  = "queued"
	StateRunning = "running"
	StateDone    = "done"
	StateFailed  = "failed"
)

// Job kinds.
const (
	KindExtraction        = "extraction"
	KindPatterns          = "patterns"
	KindGroupEvents       = "group-events"
	KindDiscoverWorkflows = "discover-workflows"
	KindMatchWorkflow     = "match-workflow"
)

// InProgressError reports that the singleton orchestrator slot is taken.
type InProgressError struct {
	JobID string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("job %s already in progress", e.JobID)
}

// Job is one orchestrator run. Fields are guarded by the orchestrator
// mutex; Snapshot returns a consistent copy.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	done   chan struct{}
	cancel context.CancelFunc
}

// Orchestrator runs at most one analysis job at a time and remembers
// finished jobs for status queries.
type Orchestrator struct {
	store     *store.Store
	extractor *extract.Extractor
	logger    *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	current *Job
}

// New returns an orchestrator bound to the store and extractor.
func New(st *store.Store, ex *extract.Extractor, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		extractor: ex,
		logger:    logger.With("component", "jobs"),
		jobs:      make(map[string]*Job),
	}
}

// stageFunc runs the job body. It reports progress through the handle and
// must return the job result.
type stageFunc func(ctx context.Context, h *Handle) (any, error)

// Handle lets a running job publish progress and observe cancellation.
type Handle struct {
	o   *Orchestrator
	job *Job
	ctx context.Context
}

// SetProgress publishes a fraction in [0, 1].
func (h *Handle) SetProgress(p float64) {
	h.o.mu.Lock()
	h.job.Progress = p
	h.o.mu.Unlock()
}

// Checkpoint returns the context error if the job was cancelled. Jobs call
// it between stages and at every event chunk boundary.
func (h *Handle) Checkpoint() error {
	return h.ctx.Err()
}

// start claims the singleton slot and launches fn on a fresh goroutine.
func (o *Orchestrator) start(kind string, fn stageFunc) (*Job, error) {
	o.mu.Lock()
	if o.current != nil {
		id := o.current.ID
		o.mu.Unlock()
		return nil, &InProgressError{JobID: id}
	}
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateQueued,
		StartedAt: time.Now().UTC(),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	o.jobs[job.ID] = job
	o.current = job
	o.mu.Unlock()

	go o.run(ctx, job, fn)
	return job, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job, fn stageFunc) {
	defer close(job.done)
	o.mu.Lock()
	job.State = StateRunning
	o.mu.Unlock()
	o.logger.Info("job started", "job_id", job.ID, "kind", job.Kind)

	result, err := fn(ctx, &Handle{o: o, job: job, ctx: ctx})

	o.mu.Lock()
	job.FinishedAt = time.Now().UTC()
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
		// A cancelled job may still carry a partial-result summary.
		job.Result = result
	} else {
		job.State = StateDone
		job.Progress = 1
		job.Result = result
	}
	o.current = nil
	o.mu.Unlock()
	o.logger.Info("job finished", "job_id", job.ID, "kind", job.Kind, "state", job.State, "error", job.Error)
}

// Get returns a snapshot of the job with the given id.
func (o *Orchestrator) Get(id string) (Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return snapshot(job), nil
}

// Current returns the in-flight job, if any.
func (o *Orchestrator) Current() (Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Job{}, false
	}
	return snapshot(o.current), true
}

// Cancel requests cancellation of a running job. The job aborts at its next
// checkpoint.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	if job.State == StateDone || job.State == StateFailed {
		return fmt.Errorf("job %s already %s: %w", id, job.State, store.ErrPreconditionFailed)
	}
	job.cancel()
	return nil
}

// Wait blocks until the job finishes and returns its final snapshot.
func (o *Orchestrator) Wait(id string) (Job, error) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	o.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	<-job.done
	return o.Get(id)
}

func snapshot(j *Job) Job {
	return Job{
		ID:         j.ID,
		Kind:       j.Kind,
		State:      j.State,
		Progress:   j.Progress,
		Error:      j.Error,
		Result:     j.Result,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}
