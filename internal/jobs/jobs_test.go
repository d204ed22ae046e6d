// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, extract.New(st, logger), logger), st
}

func seedEvents(t *testing.T, st *store.Store, bucket string, titles []string, gapSec int) {
	t.Helper()
	base := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	events := make([]store.Event, len(titles))
	for i, title := range titles {
		events[i] = store.Event{
			Timestamp: base.Add(time.Duration(i*gapSec) * time.Second),
			Duration:  5,
			Data:      store.JSONMap{"app": title},
		}
	}
	_, err := st.InsertEvents(context.Background(), bucket, events)
	require.NoError(t, err)
}

func TestSingletonJob(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	release := make(chan struct{})
	job, err := o.start("test", func(ctx context.Context, h *Handle) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	_, err = o.start("test", func(ctx context.Context, h *Handle) (any, error) { return nil, nil })
	var inProgress *InProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, job.ID, inProgress.JobID)

	close(release)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateDone, final.State)

	// The slot is free again.
	job2, err := o.start("test", func(ctx context.Context, h *Handle) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = o.Wait(job2.ID)
	require.NoError(t, err)
}

func TestConcurrentTriggersSingleWinner(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	release := make(chan struct{})
	var mu sync.Mutex
	var started, rejected int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.start("test", func(ctx context.Context, h *Handle) (any, error) {
				<-release
				return nil, nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
	assert.Equal(t, 7, rejected)
	close(release)
}

func TestJobCancellation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	started := make(chan struct{})
	job, err := o.start("test", func(ctx context.Context, h *Handle) (any, error) {
		close(started)
		for {
			if err := h.Checkpoint(); err != nil {
				return map[string]int{"partial": 1}, err
			}
			time.Sleep(time.Millisecond)
		}
	})
	require.NoError(t, err)
	<-started
	require.NoError(t, o.Cancel(job.ID))

	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, final.State)
	assert.NotEmpty(t, final.Error)
	// Partial-result summary survives the abort.
	assert.Equal(t, map[string]int{"partial": 1}, final.Result)
}

func TestGetUnknownJob(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.Get("nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunExtractionJob(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "po",
		ObjectType:   "purchase_order",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?P<n>PO-\d{4}-\d{6})`,
		NameTemplate: "{n}",
		Enabled:      true,
		Confidence:   0.8,
	}))
	_, err := st.InsertEvents(ctx, "win", []store.Event{
		{Timestamp: time.Now().UTC(), Duration: 5, Data: store.JSONMap{"title": "PO-2024-000001"}},
		{Timestamp: time.Now().UTC().Add(time.Second), Duration: 5, Data: store.JSONMap{"title": "irrelevant"}},
	})
	require.NoError(t, err)

	job, err := o.RunExtraction(Window{Bucket: "win"})
	require.NoError(t, err)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, final.State)

	result, ok := final.Result.(*ExtractionResult)
	require.True(t, ok)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, 1, result.Links)
	assert.InDelta(t, 1.0, final.Progress, 1e-9)
}

func TestRunGroupEventsPersistsSteps(t *testing.T) {
	o, st := newTestOrchestrator(t)

	seedEvents(t, st, "win", []string{"ERP", "ERP", "Mail"}, 10)
	job, err := o.RunGroupEvents(MiningParams{Window: Window{Bucket: "win"}})
	require.NoError(t, err)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, final.State)

	result := final.Result.(*GroupEventsResult)
	require.Len(t, result.Cases, 1)
	assert.Equal(t, []string{"ERP", "Mail"}, result.Cases[0].Labels)
	require.Len(t, result.StepIDs, 2)

	step, refs, _, err := st.GetStep(context.Background(), result.StepIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "ERP", step.Name)
	assert.Len(t, refs, 2)
	assert.InDelta(t, 10, step.Duration, 1e-9)
}

func TestRunPatternsJob(t *testing.T) {
	o, st := newTestOrchestrator(t)

	// Five separated sessions, each ERP -> Excel.
	base := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	var events []store.Event
	for s := 0; s < 5; s++ {
		start := base.Add(time.Duration(s) * time.Hour)
		events = append(events,
			store.Event{Timestamp: start, Duration: 5, Data: store.JSONMap{"app": "ERP"}},
			store.Event{Timestamp: start.Add(10 * time.Second), Duration: 5, Data: store.JSONMap{"app": "Excel"}},
		)
	}
	_, err := st.InsertEvents(context.Background(), "win", events)
	require.NoError(t, err)

	job, err := o.RunPatterns(MiningParams{Window: Window{Bucket: "win"}, MinSupport: 0.5})
	require.NoError(t, err)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, final.State)

	result := final.Result.(*PatternsResult)
	assert.Equal(t, 5, result.Cases)
	require.NotEmpty(t, result.Patterns)
	assert.Equal(t, []string{"ERP", "Excel"}, result.Patterns[0].Labels)
	assert.InDelta(t, 1.0, result.Patterns[0].Support, 1e-9)
}

func TestRunDiscoverWorkflows(t *testing.T) {
	o, st := newTestOrchestrator(t)

	base := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	var events []store.Event
	for s := 0; s < 4; s++ {
		start := base.Add(time.Duration(s) * time.Hour)
		events = append(events,
			store.Event{Timestamp: start, Duration: 5, Data: store.JSONMap{"app": "ERP"}},
			store.Event{Timestamp: start.Add(10 * time.Second), Duration: 5, Data: store.JSONMap{"app": "Excel"}},
			store.Event{Timestamp: start.Add(20 * time.Second), Duration: 5, Data: store.JSONMap{"app": "Mail"}},
		)
	}
	_, err := st.InsertEvents(context.Background(), "win", events)
	require.NoError(t, err)

	job, err := o.RunDiscoverWorkflows(MiningParams{Window: Window{Bucket: "win"}, MinSupport: 0.5})
	require.NoError(t, err)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	require.Equal(t, StateDone, final.State)

	result := final.Result.(*DiscoverResult)
	require.NotEmpty(t, result.WorkflowIDs)
	assert.Positive(t, result.Occurrences)

	wf, _, _, err := st.GetWorkflow(context.Background(), result.WorkflowIDs[0])
	require.NoError(t, err)
	// The workflow gained occurrences, so it activated.
	assert.Equal(t, store.WorkflowStateActive, wf.State)
	occs, err := st.ListOccurrences(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Len(t, occs, result.Occurrences)
}

func TestRunMatchWorkflowGapSemantics(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	wf := &store.Workflow{
		Name:    "Deploy",
		Pattern: store.Pattern{{Label: "A"}, {Label: "B"}, {Label: "C"}},
	}
	require.NoError(t, st.CreateWorkflow(ctx, wf, nil, nil))

	seedEvents(t, st, "one", []string{"A", "B", "Z", "C"}, 10)
	job, err := o.RunMatchWorkflow(wf.ID, MiningParams{Window: Window{Bucket: "one"}})
	require.NoError(t, err)
	final, err := o.Wait(job.ID)
	require.NoError(t, err)
	result := final.Result.(*MatchResult)
	assert.Equal(t, 1, result.Occurrences)

	// The occurrence spans all four steps, including the unmatched Z.
	occs, err := st.ListOccurrences(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	_, refs, err := st.GetOccurrence(ctx, occs[0].ID)
	require.NoError(t, err)
	assert.Len(t, refs, 4)

	// Two intermediate labels exceed the gap budget.
	seedEvents(t, st, "two", []string{"A", "B", "Z", "Z", "C"}, 10)
	job, err = o.RunMatchWorkflow(wf.ID, MiningParams{Window: Window{Bucket: "two"}})
	require.NoError(t, err)
	final, err = o.Wait(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Result.(*MatchResult).Cases)
	assert.Equal(t, 0, final.Result.(*MatchResult).Occurrences)
}

func TestRunMatchWorkflowUnknownID(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, err := o.RunMatchWorkflow("missing", MiningParams{})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, errors.Is(err, store.ErrConflict))
}
