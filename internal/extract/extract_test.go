// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procmine/procmine/internal/store"
)

func newTestExtractor(t *testing.T) (*Extractor, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, logger), st
}

func poRule() *store.ExtractionRule {
	return &store.ExtractionRule{
		ID:           "po-rule",
		Name:         "Purchase order",
		ObjectType:   "purchase_order",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?:Purchase Order|PO)\s*(?P<n>PO-\d{4}-\d{6})`,
		NameTemplate: "{n}",
		Enabled:      true,
		Priority:     100,
		Provenance:   store.RuleProvenanceSeed,
		Confidence:   0.8,
	}
}

func insertEvent(t *testing.T, st *store.Store, bucket, title string) store.Event {
	t.Helper()
	ids, err := st.InsertEvents(context.Background(), bucket, []store.Event{{
		Timestamp: time.Date(2024, 1, 6, 10, 30, 0, 0, time.UTC),
		Duration:  5,
		Data:      store.JSONMap{"title": title},
	}})
	require.NoError(t, err)
	ev, err := st.GetEvent(context.Background(), bucket, ids[0])
	require.NoError(t, err)
	return *ev
}

func TestExtractPurchaseOrder(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, poRule()))

	ev := insertEvent(t, st, "win", "Purchase Order PO-2024-001234 - ERP")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	obj := bindings[0].Object
	assert.Equal(t, "purchase_order", obj.Type)
	assert.Equal(t, "PO-2024-001234", obj.Name)

	_, links, err := st.ObjectsForEvent(ctx, "win", ev.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "rule:po-rule", links[0].Provenance)
	assert.InDelta(t, 0.8, links[0].Confidence, 1e-9)
}

func TestExtractIdempotent(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, poRule()))
	ev := insertEvent(t, st, "win", "Purchase Order PO-2024-001234")

	first, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	second, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)

	// Same object UUID reused; the link set is unchanged.
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Object.ID, second[0].Object.ID)
	assert.False(t, second[0].Created)

	objects, err := st.ListObjects(ctx, store.ObjectFilter{Type: "purchase_order"})
	require.NoError(t, err)
	assert.Len(t, objects, 1)
	_, links, err := st.ObjectsForEvent(ctx, "win", ev.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestExtractDedupeAcrossRules(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, poRule()))
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "po-bare",
		ObjectType:   "purchase_order",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?P<n>PO-\d{4}-\d{6})`,
		NameTemplate: "{n}",
		Enabled:      true,
		Priority:     50,
		Confidence:   0.6,
	}))

	ev1 := insertEvent(t, st, "win", "Purchase Order PO-2024-001234 - ERP")
	ev2 := insertEvent(t, st, "win", "PO-2024-001234 approved")
	_, err := x.ExtractEvents(ctx, []store.Event{ev1, ev2})
	require.NoError(t, err)

	objects, err := st.ListObjects(ctx, store.ObjectFilter{Type: "purchase_order"})
	require.NoError(t, err)
	require.Len(t, objects, 1)

	events, err := st.EventsForObject(ctx, objects[0].ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestExtractRulePriorityBothLink(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, poRule()))
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "ticket-rule",
		ObjectType:   "task",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?P<n>ERP-\d+)`,
		NameTemplate: "{n}",
		Enabled:      true,
		Priority:     10,
		Confidence:   0.7,
	}))

	ev := insertEvent(t, st, "win", "Purchase Order PO-2024-001234 ERP-42")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	// Higher priority applied first, lower not inhibited.
	assert.Equal(t, "po-rule", bindings[0].RuleID)
	assert.Equal(t, "ticket-rule", bindings[1].RuleID)

	for _, id := range []string{"po-rule", "ticket-rule"} {
		r, err := st.GetRule(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), r.MatchCount, "rule %s", id)
	}
}

func TestExtractAllNonOverlappingMatches(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "po-bare",
		ObjectType:   "purchase_order",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?P<n>PO-\d{4}-\d{6})`,
		NameTemplate: "{n}",
		Enabled:      true,
		Confidence:   0.6,
	}))

	ev := insertEvent(t, st, "win", "comparing PO-2024-000001 with PO-2024-000002")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "PO-2024-000001", bindings[0].Object.Name)
	assert.Equal(t, "PO-2024-000002", bindings[1].Object.Name)
}

func TestExtractDataMapping(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "inv-rule",
		ObjectType:   "invoice",
		SourceFields: store.StringList{"title"},
		Pattern:      `INV-(?P<year>\d{4})-(?P<seq>\d+)`,
		NameTemplate: "INV-{year}-{seq}",
		DataMapping:  store.JSONMap{"year": "fiscal_year"},
		Enabled:      true,
		Confidence:   0.9,
	}))

	ev := insertEvent(t, st, "win", "paying INV-2024-0042 now")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "INV-2024-0042", bindings[0].Object.Name)
	assert.Equal(t, "2024", bindings[0].Object.Data["fiscal_year"])
}

func TestSnapshotInvalidation(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, poRule()))

	ev := insertEvent(t, st, "win", "Purchase Order PO-2024-001234")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	// Disabling the rule must be visible to the next extraction.
	_, err = st.ApplyRuleDelta(ctx, "po-rule", store.RuleCounterDelta{Disable: true})
	require.NoError(t, err)

	ev2 := insertEvent(t, st, "win", "Purchase Order PO-2024-009999")
	bindings, err = x.ExtractEvent(ctx, ev2)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestQuarantineBadPattern(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	require.NoError(t, st.CreateRule(ctx, &store.ExtractionRule{
		ID:           "bad-rule",
		ObjectType:   "task",
		SourceFields: store.StringList{"title"},
		Pattern:      `(?P<n>[`,
		NameTemplate: "{n}",
		Enabled:      true,
		Confidence:   0.5,
	}))
	require.NoError(t, st.CreateRule(ctx, poRule()))

	ev := insertEvent(t, st, "win", "Purchase Order PO-2024-001234")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	r, err := st.GetRule(ctx, "bad-rule")
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	records, err := st.ListAudit(ctx, store.AuditRuleDisabled, "bad-rule", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSeedIdempotent(t *testing.T) {
	_, st := newTestExtractor(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Seed(ctx, st, logger))
	require.NoError(t, Seed(ctx, st, logger))

	types, err := st.ListObjectTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, len(seedTypes))

	rules, err := st.ListRules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, rules, len(seedRules))
	for _, r := range rules {
		assert.Equal(t, store.RuleProvenanceSeed, r.Provenance)
		assert.NoError(t, ValidateRule(r.Pattern, r.NameTemplate, r.DataMapping))
	}
}

func TestExtractTemplateDataKeyAlias(t *testing.T) {
	x, st := newTestExtractor(t)
	ctx := context.Background()
	rule := &store.ExtractionRule{
		ID:           "inv-alias",
		ObjectType:   "invoice",
		SourceFields: store.StringList{"title"},
		Pattern:      `INV-(?P<year>\d{4})-(?P<seq>\d+)`,
		NameTemplate: "FY{fiscal_year}/{seq}",
		DataMapping:  store.JSONMap{"year": "fiscal_year"},
		Enabled:      true,
		Confidence:   0.9,
	}
	// The template references the mapped data key, not the capture group;
	// validation and rendering must agree that it resolves.
	require.NoError(t, ValidateRule(rule.Pattern, rule.NameTemplate, rule.DataMapping))
	require.NoError(t, st.CreateRule(ctx, rule))

	ev := insertEvent(t, st, "win", "paying INV-2024-0042 now")
	bindings, err := x.ExtractEvent(ctx, ev)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "FY2024/0042", bindings[0].Object.Name)
	assert.Equal(t, "2024", bindings[0].Object.Data["fiscal_year"])
}

func TestTestRuleDryRun(t *testing.T) {
	r := poRule()
	results, err := TestRule(r, []map[string]string{
		{"title": "Purchase Order PO-2024-001234"},
		{"title": "nothing here"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Match)
	assert.Equal(t, "PO-2024-001234", results[0].Name)
	assert.False(t, results[1].Match)
}
