// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)
}

func TestInsertEventsAssignsSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertEvents(ctx, "aw-watcher-window_host", []Event{
		{Timestamp: ts(0), Duration: 5, Data: JSONMap{"app": "Code", "title": "main.go"}},
		{Timestamp: ts(5), Duration: 3, Data: JSONMap{"app": "Firefox", "title": "docs"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = s.InsertEvents(ctx, "aw-watcher-window_host", []Event{
		{Timestamp: ts(10), Duration: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	// Implicit bucket creation.
	b, err := s.GetBucket(ctx, "aw-watcher-window_host")
	require.NoError(t, err)
	assert.Equal(t, "aw-watcher-window_host", b.ID)
}

func TestReadEventsOrderingAndRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, "b", []Event{
		{Timestamp: ts(10), Duration: 1},
		{Timestamp: ts(0), Duration: 1},
		{Timestamp: ts(10), Duration: 1},
		{Timestamp: ts(20), Duration: 1},
	})
	require.NoError(t, err)

	events, err := s.ReadEvents(ctx, "b", ts(0), ts(20), 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ts(0), events[0].Timestamp)
	// Ties break on insertion id.
	assert.Equal(t, int64(1), events[1].ID)
	assert.Equal(t, int64(3), events[2].ID)
}

func TestReadEventsChunked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var batch []Event
	for i := 0; i < 7; i++ {
		batch = append(batch, Event{Timestamp: ts(i), Duration: 1})
	}
	_, err := s.InsertEvents(ctx, "b", batch)
	require.NoError(t, err)

	var got []int64
	var chunks int
	err = s.ReadEventsChunked(ctx, "b", time.Time{}, time.Time{}, 3, func(chunk []Event) error {
		chunks++
		for _, e := range chunk {
			got = append(got, e.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, got)
}

func TestUpsertObjectMergesData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj, created, err := s.UpsertObject(ctx, "ticket", "PROJ-123", JSONMap{"url": "https://jira/PROJ-123"}, false)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEmpty(t, obj.ID)

	// Same (type, name): merged, not duplicated.
	again, created, err := s.UpsertObject(ctx, "ticket", "PROJ-123", JSONMap{"url": "ignored", "status": "open"}, false)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, obj.ID, again.ID)
	assert.Equal(t, "https://jira/PROJ-123", again.Data["url"])
	assert.Equal(t, "open", again.Data["status"])

	// replace overwrites existing keys.
	replaced, _, err := s.UpsertObject(ctx, "ticket", "PROJ-123", JSONMap{"url": "https://jira/new"}, true)
	require.NoError(t, err)
	assert.Equal(t, "https://jira/new", replaced.Data["url"])

	objects, err := s.ListObjects(ctx, ObjectFilter{Type: "ticket"})
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestCreateObjectConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateObject(ctx, &Object{Type: "ticket", Name: "PROJ-1"}))
	err := s.CreateObject(ctx, &Object{Type: "ticket", Name: "PROJ-1"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDeleteObjectTypeWithObjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateObjectType(ctx, &ObjectType{Name: "ticket", DisplayName: "Ticket"}))
	require.NoError(t, s.CreateObject(ctx, &Object{Type: "ticket", Name: "PROJ-1"}))

	err := s.DeleteObjectType(ctx, "ticket")
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestLinkEventToObjectIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, "b", []Event{{Timestamp: ts(0), Duration: 1}})
	require.NoError(t, err)
	obj, _, err := s.UpsertObject(ctx, "ticket", "PROJ-1", nil, false)
	require.NoError(t, err)

	require.NoError(t, s.LinkEventToObject(ctx, "b", 1, obj.ID, "rule:r1", 1.0))
	require.NoError(t, s.LinkEventToObject(ctx, "b", 1, obj.ID, LinkProvenanceManual, 0.9))

	_, links, err := s.ObjectsForEvent(ctx, "b", 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, LinkProvenanceManual, links[0].Provenance)
	assert.InDelta(t, 0.9, links[0].Confidence, 1e-9)
}

func TestDeleteObjectCascadesLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, "b", []Event{{Timestamp: ts(0), Duration: 1}})
	require.NoError(t, err)
	obj, _, err := s.UpsertObject(ctx, "ticket", "PROJ-1", nil, false)
	require.NoError(t, err)
	require.NoError(t, s.LinkEventToObject(ctx, "b", 1, obj.ID, LinkProvenanceManual, 1))

	require.NoError(t, s.DeleteObject(ctx, obj.ID))

	ids, err := s.LinkedObjectIDs(ctx, "b", 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestListRulesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := &ExtractionRule{ID: "a-low", Pattern: "x", Enabled: true, Priority: 1}
	high := &ExtractionRule{ID: "z-high", Pattern: "y", Enabled: true, Priority: 10}
	disabled := &ExtractionRule{ID: "b-off", Pattern: "z", Enabled: false, Priority: 5}
	for _, r := range []*ExtractionRule{low, high, disabled} {
		require.NoError(t, s.CreateRule(ctx, r))
	}

	rules, err := s.ListRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "z-high", rules[0].ID)
	assert.Equal(t, "a-low", rules[1].ID)

	all, err := s.ListRules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRulesVersionBumps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v0 := s.RulesVersion()
	r := &ExtractionRule{Pattern: "x", Enabled: true}
	require.NoError(t, s.CreateRule(ctx, r))
	assert.Greater(t, s.RulesVersion(), v0)

	v1 := s.RulesVersion()
	// Counter-only deltas leave the snapshot version untouched.
	_, err := s.ApplyRuleDelta(ctx, r.ID, RuleCounterDelta{Match: 1})
	require.NoError(t, err)
	assert.Equal(t, v1, s.RulesVersion())

	_, err = s.ApplyRuleDelta(ctx, r.ID, RuleCounterDelta{Disable: true})
	require.NoError(t, err)
	assert.Greater(t, s.RulesVersion(), v1)
}

func TestApplyRuleDelta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &ExtractionRule{Pattern: "x", Enabled: true, Confidence: 0.8}
	require.NoError(t, s.CreateRule(ctx, r))

	conf := 0.2
	updated, err := s.ApplyRuleDelta(ctx, r.ID, RuleCounterDelta{
		Reject:     1,
		Confidence: &conf,
		Disable:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.RejectCount)
	assert.InDelta(t, 0.2, updated.Confidence, 1e-9)
	assert.False(t, updated.Enabled)
}

func TestStepLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, "b", []Event{
		{Timestamp: ts(0), Duration: 5},
		{Timestamp: ts(5), Duration: 5},
	})
	require.NoError(t, err)
	obj, _, err := s.UpsertObject(ctx, "ticket", "PROJ-1", nil, false)
	require.NoError(t, err)

	step := &Step{Name: "Code", Start: ts(0), End: ts(10), Duration: 10}
	refs := []EventRef{{BucketID: "b", EventID: 1}, {BucketID: "b", EventID: 2}}
	require.NoError(t, s.CreateStep(ctx, step, refs, []string{obj.ID}))

	got, gotRefs, objectIDs, err := s.GetStep(ctx, step.ID)
	require.NoError(t, err)
	assert.Equal(t, "Code", got.Name)
	assert.Equal(t, refs, gotRefs)
	assert.Equal(t, []string{obj.ID}, objectIDs)

	require.NoError(t, s.DeleteStep(ctx, step.ID))
	_, _, _, err = s.GetStep(ctx, step.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteStepReferencedByWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	step := &Step{Name: "Review", Start: ts(0), End: ts(1), Duration: 1}
	require.NoError(t, s.CreateStep(ctx, step, nil, nil))
	wf := &Workflow{Name: "Deploy", Pattern: Pattern{{Label: "Review"}}}
	require.NoError(t, s.CreateWorkflow(ctx, wf, []string{step.ID}, nil))

	err := s.DeleteStep(ctx, step.ID)
	assert.ErrorIs(t, err, ErrPreconditionFailed)
}

func TestWorkflowDraftActivatesOnFirstOccurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wf := &Workflow{Name: "Deploy", Pattern: Pattern{{Label: "Code"}, {Label: "Test"}}}
	require.NoError(t, s.CreateWorkflow(ctx, wf, nil, nil))
	assert.Equal(t, WorkflowStateDraft, wf.State)

	occ := &Occurrence{WorkflowID: wf.ID, Start: ts(0), End: ts(100), Duration: 100}
	require.NoError(t, s.CreateOccurrence(ctx, occ, []StepInstanceRef{{Position: 0, StepID: "s1"}}))

	got, _, _, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, WorkflowStateActive, got.State)
}

func TestDeleteWorkflowCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	step := &Step{Name: "Code", Start: ts(0), End: ts(1), Duration: 1}
	require.NoError(t, s.CreateStep(ctx, step, nil, nil))
	wf := &Workflow{Name: "Deploy", Pattern: Pattern{{Label: "Code"}}}
	require.NoError(t, s.CreateWorkflow(ctx, wf, []string{step.ID}, nil))
	occ := &Occurrence{WorkflowID: wf.ID, Start: ts(0), End: ts(1), Duration: 1}
	require.NoError(t, s.CreateOccurrence(ctx, occ, []StepInstanceRef{{Position: 0, StepID: step.ID}}))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	_, _, _, err := s.GetWorkflow(ctx, wf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.GetOccurrence(ctx, occ.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The step survives workflow deletion.
	_, _, _, err = s.GetStep(ctx, step.ID)
	require.NoError(t, err)
}

func TestListWorkflowsExcludesArchived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := &Workflow{Name: "A", State: WorkflowStateActive}
	archived := &Workflow{Name: "B", State: WorkflowStateArchived}
	require.NoError(t, s.CreateWorkflow(ctx, active, nil, nil))
	require.NoError(t, s.CreateWorkflow(ctx, archived, nil, nil))

	visible, err := s.ListWorkflows(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "A", visible[0].Name)

	all, err := s.ListWorkflows(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReviewTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := &ReviewTask{BucketID: "b", EventID: 1, ObjectType: "ticket", Identifier: "PROJ-9", Confidence: 0.4}
	require.NoError(t, s.CreateReviewTask(ctx, task))
	assert.Equal(t, ReviewStatusPending, task.Status)

	pending, err := s.ListPendingReviewTasks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := s.ResolveReviewTask(ctx, task.ID, ReviewStatusConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, ReviewStatusConfirmed, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	// Double-resolve is rejected.
	_, err = s.ResolveReviewTask(ctx, task.ID, ReviewStatusRejected, "")
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	pending, err = s.ListPendingReviewTasks(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAuditTrail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, AuditRuleDemoted, "rule-1", JSONMap{"ratio": 0.2}))
	require.NoError(t, s.AppendAudit(ctx, AuditRuleLearned, "rule-2", nil))

	records, err := s.ListAudit(ctx, AuditRuleDemoted, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rule-1", records[0].SubjectID)
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertEvents(ctx, "b", []Event{{Timestamp: ts(0), Duration: 1}, {Timestamp: ts(1), Duration: 1}})
	require.NoError(t, err)
	_, _, err = s.UpsertObject(ctx, "ticket", "PROJ-1", nil, false)
	require.NoError(t, err)
	_, _, err = s.UpsertObject(ctx, "ticket", "PROJ-2", nil, false)
	require.NoError(t, err)
	_, _, err = s.UpsertObject(ctx, "document", "spec.md", nil, false)
	require.NoError(t, err)

	st, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Buckets)
	assert.Equal(t, int64(2), st.Events)
	assert.Equal(t, int64(3), st.Objects)
	require.Len(t, st.ObjectsByType, 2)
	assert.Equal(t, TypeCount{Type: "ticket", Count: 2}, st.ObjectsByType[0])
}

func TestOpenIsIdempotentAcrossRestarts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path, logger)
	require.NoError(t, err)
	_, err = s.InsertEvents(ctx, "b", []Event{{Timestamp: ts(0), Duration: 1}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, logger)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.CountEvents(ctx, "b", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
