// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmine/procmine/internal/api/services"
	"github.com/procmine/procmine/internal/extract"
	"github.com/procmine/procmine/internal/jobs"
	"github.com/procmine/procmine/internal/store"
)

type testEnv struct {
	server *httptest.Server
	store  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ex := extract.New(st, logger)
	orch := jobs.New(st, ex, logger)
	svcs := services.NewServices(st, ex, nil, orch, logger)
	srv := httptest.NewServer(New(svcs, logger).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: st}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeBody[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), "body: %s", raw)
	return v
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope), "body: %s", raw)
	return envelope.Error.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, raw := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(raw))
}

func TestObjectTypeCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/0/object-types",
		map[string]any{"name": "invoice", "display_name": "Invoice", "color": "#00f"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	resp, raw = env.do(t, http.MethodGet, "/api/0/object-types/invoice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[store.ObjectType](t, raw)
	assert.Equal(t, "Invoice", got.DisplayName)

	resp, raw = env.do(t, http.MethodPut, "/api/0/object-types/invoice",
		map[string]any{"display_name": "Supplier Invoice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Supplier Invoice", decodeBody[store.ObjectType](t, raw).DisplayName)

	resp, _ = env.do(t, http.MethodDelete, "/api/0/object-types/invoice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw = env.do(t, http.MethodGet, "/api/0/object-types/invoice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, raw))
}

func TestObjectConflictAndFilter(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/0/objects",
		map[string]any{"type": "invoice", "name": "INV-1", "data": map[string]any{"total": 12.5}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	created := decodeBody[store.Object](t, raw)
	require.NotEmpty(t, created.ID)

	// Duplicate (type, name) is a conflict.
	resp, raw = env.do(t, http.MethodPost, "/api/0/objects",
		map[string]any{"type": "invoice", "name": "INV-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", errorCode(t, raw))

	// Missing required field is invalid_argument.
	resp, raw = env.do(t, http.MethodPost, "/api/0/objects", map[string]any{"type": "invoice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorCode(t, raw))

	env.do(t, http.MethodPost, "/api/0/objects", map[string]any{"type": "order", "name": "ORD-1"})
	resp, raw = env.do(t, http.MethodGet, "/api/0/objects?type=invoice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Items      []store.Object `json:"items"`
		TotalCount int            `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "INV-1", list.Items[0].Name)
}

func TestRuleValidationAndTest(t *testing.T) {
	env := newTestEnv(t)

	// Malformed regex is rejected up front.
	resp, raw := env.do(t, http.MethodPost, "/api/0/extraction-rules", map[string]any{
		"object_type":   "invoice",
		"source_fields": []string{"title"},
		"pattern":       "(unclosed",
		"name_template": "{n}",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorCode(t, raw))

	resp, raw = env.do(t, http.MethodPost, "/api/0/extraction-rules", map[string]any{
		"object_type":   "invoice",
		"source_fields": []string{"title"},
		"pattern":       `(?P<n>INV-\d+)`,
		"name_template": "{n}",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	rule := decodeBody[store.ExtractionRule](t, raw)
	require.NotEmpty(t, rule.ID)
	assert.True(t, rule.Enabled)

	resp, raw = env.do(t, http.MethodPost, "/api/0/extraction-rules/"+rule.ID+"/test", map[string]any{
		"samples": []map[string]string{
			{"title": "paying INV-42 today"},
			{"title": "nothing here"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeBody[[]extract.RuleTestResult](t, raw)
	require.Len(t, results, 2)
	assert.True(t, results[0].Match)
	assert.Equal(t, "INV-42", results[0].Name)
	assert.False(t, results[1].Match)
}

func TestIngestExtractAndLinks(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/0/extraction-rules", map[string]any{
		"object_type":   "purchase_order",
		"source_fields": []string{"title"},
		"pattern":       `(?P<n>PO-\d{4}-\d{6})`,
		"name_template": "{n}",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	resp, raw = env.do(t, http.MethodPost, "/api/0/buckets/win/events", map[string]any{
		"events": []map[string]any{
			{"timestamp": "2024-01-06T10:30:00Z", "duration": 5,
				"data": map[string]any{"title": "Purchase Order PO-2024-001234 - ERP"}},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var ingest struct {
		EventIDs []int64 `json:"event_ids"`
	}
	require.NoError(t, json.Unmarshal(raw, &ingest))
	require.Equal(t, []int64{1}, ingest.EventIDs)

	// Run extraction and wait for the job to finish.
	resp, raw = env.do(t, http.MethodPost, "/api/0/extraction-rules/run", map[string]any{"bucket": "win"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "body: %s", raw)
	var job struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &job))
	require.NotEmpty(t, job.JobID)

	require.Eventually(t, func() bool {
		resp, raw = env.do(t, http.MethodGet, "/api/0/jobs/"+job.JobID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var status struct {
			State string `json:"state"`
		}
		return json.Unmarshal(raw, &status) == nil && status.State == "done"
	}, 5*time.Second, 10*time.Millisecond)

	resp, raw = env.do(t, http.MethodGet, "/api/0/buckets/win/events/1/objects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var linked struct {
		Items []struct {
			Object store.Object          `json:"object"`
			Link   store.EventObjectLink `json:"link"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &linked))
	require.Len(t, linked.Items, 1)
	assert.Equal(t, "PO-2024-001234", linked.Items[0].Object.Name)

	// Unlink, then the set is empty.
	resp, _ = env.do(t, http.MethodDelete,
		fmt.Sprintf("/api/0/buckets/win/events/1/objects/%s", linked.Items[0].Object.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, raw = env.do(t, http.MethodGet, "/api/0/buckets/win/events/1/objects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &linked))
	assert.Empty(t, linked.Items)
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/0/workflows", map[string]any{
		"name":    "Invoice approval",
		"pattern": []map[string]any{{"label": "A"}, {"label": "B"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var wf struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(raw, &wf))
	assert.Equal(t, store.WorkflowStateDraft, wf.State)

	// draft -> archived is not a legal edge.
	resp, raw = env.do(t, http.MethodPut, "/api/0/workflows/"+wf.ID, map[string]any{"state": "archived"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "precondition_failed", errorCode(t, raw))

	resp, _ = env.do(t, http.MethodPut, "/api/0/workflows/"+wf.ID, map[string]any{"state": "active"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, "/api/0/workflows/"+wf.ID, map[string]any{"state": "archived"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Archived workflows are excluded by default.
	resp, raw = env.do(t, http.MethodGet, "/api/0/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 0, list.TotalCount)

	resp, raw = env.do(t, http.MethodGet, "/api/0/workflows?include_archived=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 1, list.TotalCount)
}

func TestWorkflowPatternNeedsTwoSteps(t *testing.T) {
	env := newTestEnv(t)

	resp, raw := env.do(t, http.MethodPost, "/api/0/workflows", map[string]any{
		"name":    "One step",
		"pattern": []map[string]any{{"label": "A"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorCode(t, raw))

	resp, raw = env.do(t, http.MethodPost, "/api/0/workflows", map[string]any{
		"name":    "Two steps",
		"pattern": []map[string]any{{"label": "A"}, {"label": "B"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)
	var wf struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &wf))

	// A pattern can be replaced but never shrunk below two steps.
	resp, raw = env.do(t, http.MethodPut, "/api/0/workflows/"+wf.ID, map[string]any{
		"pattern": []map[string]any{{"label": "C"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorCode(t, raw))

	resp, raw = env.do(t, http.MethodPut, "/api/0/workflows/"+wf.ID, map[string]any{
		"pattern": []map[string]any{{"label": "C"}, {"label": "D"}, {"label": "E"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
}

func TestMinePatternsSynchronous(t *testing.T) {
	env := newTestEnv(t)

	base := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)
	events := make([]map[string]any, 0, 10)
	for s := 0; s < 5; s++ {
		start := base.Add(time.Duration(s) * time.Hour)
		events = append(events,
			map[string]any{"timestamp": start.Format(time.RFC3339), "duration": 5,
				"data": map[string]any{"app": "ERP"}},
			map[string]any{"timestamp": start.Add(10 * time.Second).Format(time.RFC3339), "duration": 5,
				"data": map[string]any{"app": "Excel"}},
		)
	}
	resp, raw := env.do(t, http.MethodPost, "/api/0/buckets/win/events", map[string]any{"events": events})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %s", raw)

	// A 10-event window runs synchronously: the job comes back finished.
	resp, raw = env.do(t, http.MethodPost, "/api/0/mining/patterns",
		map[string]any{"bucket": "win", "min_support": 0.5})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	var job struct {
		State  string `json:"state"`
		Result struct {
			Patterns []struct {
				Labels  []string `json:"labels"`
				Support float64  `json:"support"`
			} `json:"patterns"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &job))
	assert.Equal(t, "done", job.State)
	require.NotEmpty(t, job.Result.Patterns)
	assert.Equal(t, []string{"ERP", "Excel"}, job.Result.Patterns[0].Labels)
}

func TestTrainingQueueOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	task := &store.ReviewTask{
		BucketID:      "win",
		EventID:       1,
		ObjectType:    "invoice",
		Identifier:    "INV-7",
		IdentifierKey: "invoice_number",
		Confidence:    0.6,
	}
	require.NoError(t, env.store.CreateReviewTask(ctx, task))

	resp, raw := env.do(t, http.MethodGet, "/api/0/training/pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending struct {
		Items []store.ReviewTask `json:"items"`
	}
	require.NoError(t, json.Unmarshal(raw, &pending))
	require.Len(t, pending.Items, 1)

	resp, raw = env.do(t, http.MethodPost, "/api/0/training/"+task.ID+"/confirm", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", raw)
	resolved := decodeBody[store.ReviewTask](t, raw)
	assert.Equal(t, store.ReviewStatusConfirmed, resolved.Status)

	// The candidate now exists and is linked to the event.
	objects, err := env.store.ListObjects(ctx, store.ObjectFilter{Type: "invoice"})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "INV-7", objects[0].Name)
	_, links, err := env.store.ObjectsForEvent(ctx, "win", 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, store.LinkProvenanceLLM, links[0].Provenance)

	// Resolving twice is a precondition failure.
	resp, raw = env.do(t, http.MethodPost, "/api/0/training/"+task.ID+"/confirm", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "precondition_failed", errorCode(t, raw))
}

func TestJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, raw := env.do(t, http.MethodGet, "/api/0/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, raw))
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/0/objects", map[string]any{"type": "invoice", "name": "INV-1"})

	resp, raw := env.do(t, http.MethodGet, "/api/0/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeBody[store.Stats](t, raw)
	assert.Equal(t, int64(1), stats.Objects)
}
