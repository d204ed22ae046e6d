// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/procmine/procmine/internal/mining"
	"github.com/procmine/procmine/internal/store"
)

// Window bounds a job to a bucket and time range. An empty bucket means all
// buckets; zero times mean unbounded.
type Window struct {
	Bucket string    `json:"bucket,omitempty"`
	Start  time.Time `json:"start,omitempty"`
	End    time.Time `json:"end,omitempty"`
}

// MiningParams tune the pattern mining jobs.
type MiningParams struct {
	Window
	MinSupport    float64 `json:"min_support,omitempty"`
	MinLength     int     `json:"min_length,omitempty"`
	MaxLength     int     `json:"max_length,omitempty"`
	MaxGapSeconds float64 `json:"max_gap_seconds,omitempty"`
	// NonContiguous permits up to two intermediate labels to be skipped
	// per expansion step during mining.
	NonContiguous bool `json:"non_contiguous,omitempty"`
}

func (p MiningParams) maxGap() time.Duration {
	if p.MaxGapSeconds <= 0 {
		return mining.DefaultMaxGap
	}
	return time.Duration(p.MaxGapSeconds * float64(time.Second))
}

func (p MiningParams) mineOptions() mining.MineOptions {
	opts := mining.DefaultMineOptions()
	if p.MinSupport > 0 {
		opts.MinSupport = p.MinSupport
	}
	if p.MinLength >= 2 {
		opts.MinLen = p.MinLength
	}
	if p.MaxLength > 0 {
		opts.MaxLen = p.MaxLength
	}
	if p.NonContiguous {
		opts.MaxSkip = 2
	}
	return opts
}

// loadEvents reads the window's events in 500-event chunks, checking for
// cancellation at every chunk boundary.
func (o *Orchestrator) loadEvents(ctx context.Context, h *Handle, w Window) ([]store.Event, error) {
	buckets := []string{w.Bucket}
	if w.Bucket == "" {
		all, err := o.store.ListBuckets(ctx)
		if err != nil {
			return nil, err
		}
		buckets = buckets[:0]
		for _, b := range all {
			buckets = append(buckets, b.ID)
		}
	}
	var events []store.Event
	for _, bucket := range buckets {
		err := o.store.ReadEventsChunked(ctx, bucket, w.Start, w.End, 0, func(chunk []store.Event) error {
			if err := h.Checkpoint(); err != nil {
				return err
			}
			events = append(events, chunk...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

// afkIntervals derives AFK spans from afk-watcher buckets in the window.
func (o *Orchestrator) afkIntervals(ctx context.Context, w Window) []mining.Interval {
	buckets, err := o.store.ListBuckets(ctx)
	if err != nil {
		return nil
	}
	var intervals []mining.Interval
	for _, b := range buckets {
		if !strings.Contains(b.Type, "afk") && !strings.Contains(b.ID, "afk") {
			continue
		}
		events, err := o.store.ReadEvents(ctx, b.ID, w.Start, w.End, 0)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if status, ok := ev.Data["status"].(string); ok && status == "afk" {
				intervals = append(intervals, mining.Interval{Start: ev.Timestamp, End: ev.End()})
			}
		}
	}
	return intervals
}

// buildCases sessionises the window and refines by object coherence.
func (o *Orchestrator) buildCases(ctx context.Context, h *Handle, w Window, maxGap time.Duration) ([]mining.Case, error) {
	events, err := o.loadEvents(ctx, h, w)
	if err != nil {
		return nil, err
	}
	if err := h.Checkpoint(); err != nil {
		return nil, err
	}
	cases := mining.BuildCases(events, maxGap, o.afkIntervals(ctx, w))
	cases = mining.RefineByObjects(cases, func(k mining.EventKey) []string {
		ids, err := o.store.LinkedObjectIDs(ctx, k.BucketID, k.EventID)
		if err != nil {
			return nil
		}
		return ids
	})
	return cases, nil
}

// ExtractionResult summarises an extraction job.
type ExtractionResult struct {
	Events int `json:"events"`
	Links  int `json:"links"`
}

// RunExtraction starts a job applying the enabled rule set to the window.
func (o *Orchestrator) RunExtraction(w Window) (*Job, error) {
	return o.start(KindExtraction, func(ctx context.Context, h *Handle) (any, error) {
		result := &ExtractionResult{}
		buckets := []string{w.Bucket}
		if w.Bucket == "" {
			all, err := o.store.ListBuckets(ctx)
			if err != nil {
				return nil, err
			}
			buckets = buckets[:0]
			for _, b := range all {
				buckets = append(buckets, b.ID)
			}
		}

		var total int64
		for _, bucket := range buckets {
			n, err := o.store.CountEvents(ctx, bucket, w.Start, w.End)
			if err != nil {
				return nil, err
			}
			total += n
		}

		var processed int64
		for _, bucket := range buckets {
			err := o.store.ReadEventsChunked(ctx, bucket, w.Start, w.End, 0, func(chunk []store.Event) error {
				if err := h.Checkpoint(); err != nil {
					return err
				}
				bindings, err := o.extractor.ExtractEvents(ctx, chunk)
				if err != nil {
					return err
				}
				result.Events += len(chunk)
				result.Links += len(bindings)
				processed += int64(len(chunk))
				if total > 0 {
					h.SetProgress(float64(processed) / float64(total))
				}
				return nil
			})
			if err != nil {
				return result, err
			}
		}
		return result, nil
	})
}

// CaseSummary describes one built case.
type CaseSummary struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Events int       `json:"events"`
	Labels []string  `json:"labels"`
}

// GroupEventsResult summarises a case-building job.
type GroupEventsResult struct {
	Cases   []CaseSummary `json:"cases"`
	StepIDs []string      `json:"step_ids"`
}

// RunGroupEvents starts a job that sessionises the window into cases and
// persists their synthesized steps.
func (o *Orchestrator) RunGroupEvents(p MiningParams) (*Job, error) {
	return o.start(KindGroupEvents, func(ctx context.Context, h *Handle) (any, error) {
		cases, err := o.buildCases(ctx, h, p.Window, p.maxGap())
		if err != nil {
			return nil, err
		}
		h.SetProgress(0.5)

		result := &GroupEventsResult{}
		for _, c := range cases {
			if err := h.Checkpoint(); err != nil {
				return result, err
			}
			steps := mining.SynthesizeSteps(c)
			ids, err := o.persistSteps(ctx, steps)
			if err != nil {
				return result, err
			}
			result.StepIDs = append(result.StepIDs, ids...)
			result.Cases = append(result.Cases, summarize(c, steps))
		}
		return result, nil
	})
}

// PatternsResult is the output of a pattern mining job.
type PatternsResult struct {
	Cases    int                   `json:"cases"`
	Patterns []mining.MinedPattern `json:"patterns"`
}

// RunPatterns starts a frequent-pattern mining job over the window.
func (o *Orchestrator) RunPatterns(p MiningParams) (*Job, error) {
	return o.start(KindPatterns, func(ctx context.Context, h *Handle) (any, error) {
		cases, err := o.buildCases(ctx, h, p.Window, p.maxGap())
		if err != nil {
			return nil, err
		}
		h.SetProgress(0.5)
		caseSteps := make([][]mining.Step, len(cases))
		for i, c := range cases {
			caseSteps[i] = mining.SynthesizeSteps(c)
		}
		if err := h.Checkpoint(); err != nil {
			return nil, err
		}
		patterns := mining.MinePatterns(caseSteps, p.mineOptions())
		return &PatternsResult{Cases: len(cases), Patterns: patterns}, nil
	})
}

// DiscoverResult summarises a workflow discovery job.
type DiscoverResult struct {
	Cases       int      `json:"cases"`
	Variants    int      `json:"variants"`
	WorkflowIDs []string `json:"workflow_ids"`
	Occurrences int      `json:"occurrences"`
}

// RunDiscoverWorkflows starts the full discovery pipeline: extract new
// objects, build cases, mine variants, cluster them into workflows and
// reconcile with the active workflow set by recording occurrences.
func (o *Orchestrator) RunDiscoverWorkflows(p MiningParams) (*Job, error) {
	return o.start(KindDiscoverWorkflows, func(ctx context.Context, h *Handle) (any, error) {
		events, err := o.loadEvents(ctx, h, p.Window)
		if err != nil {
			return nil, err
		}
		if _, err := o.extractor.ExtractEvents(ctx, events); err != nil {
			return nil, err
		}
		h.SetProgress(0.2)
		if err := h.Checkpoint(); err != nil {
			return nil, err
		}

		cases := mining.BuildCases(events, p.maxGap(), o.afkIntervals(ctx, p.Window))
		cases = mining.RefineByObjects(cases, func(k mining.EventKey) []string {
			ids, err := o.store.LinkedObjectIDs(ctx, k.BucketID, k.EventID)
			if err != nil {
				return nil
			}
			return ids
		})
		caseSteps := make([][]mining.Step, len(cases))
		for i, c := range cases {
			caseSteps[i] = mining.SynthesizeSteps(c)
		}
		h.SetProgress(0.4)
		if err := h.Checkpoint(); err != nil {
			return nil, err
		}

		patterns := mining.MinePatterns(caseSteps, p.mineOptions())
		variants := mining.Variants(patterns, mining.DefaultMinVariantCases)
		clusters := mining.ClusterVariants(variants, mining.DefaultClusterSimilarity)
		h.SetProgress(0.6)
		if err := h.Checkpoint(); err != nil {
			return nil, err
		}

		result := &DiscoverResult{Cases: len(cases), Variants: len(variants)}

		// Existing active workflows are reconciled first so rediscovered
		// patterns extend history instead of spawning duplicates.
		existing, err := o.store.ListWorkflows(ctx, false)
		if err != nil {
			return nil, err
		}
		claimed := make(map[string]bool)
		for _, wf := range existing {
			claimed[labelKey(wf.Pattern.Labels())] = true
			n, err := o.recordOccurrences(ctx, &wf, caseSteps)
			if err != nil {
				return result, err
			}
			result.Occurrences += n
		}
		h.SetProgress(0.8)
		if err := h.Checkpoint(); err != nil {
			return result, err
		}

		for i, cluster := range clusters {
			if claimed[labelKey(cluster.Canonical)] {
				continue
			}
			claimed[labelKey(cluster.Canonical)] = true
			pattern := make(store.Pattern, len(cluster.Canonical))
			for j, label := range cluster.Canonical {
				pattern[j] = store.PatternStep{Label: label}
			}
			wf := &store.Workflow{
				Name:    fmt.Sprintf("process-%d", i),
				Pattern: pattern,
				State:   store.WorkflowStateDraft,
			}
			if err := o.store.CreateWorkflow(ctx, wf, nil, nil); err != nil {
				return result, err
			}
			result.WorkflowIDs = append(result.WorkflowIDs, wf.ID)
			n, err := o.recordOccurrences(ctx, wf, caseSteps)
			if err != nil {
				return result, err
			}
			result.Occurrences += n
		}
		return result, nil
	})
}

// MatchResult summarises a workflow matching job.
type MatchResult struct {
	WorkflowID  string `json:"workflow_id"`
	Cases       int    `json:"cases"`
	Occurrences int    `json:"occurrences"`
}

// RunMatchWorkflow starts a job matching one saved workflow against the
// window's cases.
func (o *Orchestrator) RunMatchWorkflow(workflowID string, p MiningParams) (*Job, error) {
	wf, _, _, err := o.store.GetWorkflow(context.Background(), workflowID)
	if err != nil {
		return nil, err
	}
	return o.start(KindMatchWorkflow, func(ctx context.Context, h *Handle) (any, error) {
		cases, err := o.buildCases(ctx, h, p.Window, p.maxGap())
		if err != nil {
			return nil, err
		}
		h.SetProgress(0.5)
		caseSteps := make([][]mining.Step, len(cases))
		for i, c := range cases {
			caseSteps[i] = mining.SynthesizeSteps(c)
		}
		n, err := o.recordOccurrences(ctx, wf, caseSteps)
		if err != nil {
			return nil, err
		}
		return &MatchResult{WorkflowID: wf.ID, Cases: len(cases), Occurrences: n}, nil
	})
}

// recordOccurrences matches a workflow pattern against every case and
// persists an occurrence (with its spanned step instances) per match.
func (o *Orchestrator) recordOccurrences(ctx context.Context, wf *store.Workflow, caseSteps [][]mining.Step) (int, error) {
	var count int
	for _, steps := range caseSteps {
		labels := make([]string, len(steps))
		for i, s := range steps {
			labels[i] = s.Label
		}
		for _, m := range mining.MatchPattern(wf.Pattern, labels, mining.DefaultMatchGap) {
			spanned := steps[m.First : m.Last+1]
			stepIDs, err := o.persistSteps(ctx, spanned)
			if err != nil {
				return count, err
			}
			refs := make([]store.StepInstanceRef, len(stepIDs))
			var duration float64
			for i, id := range stepIDs {
				refs[i] = store.StepInstanceRef{Position: i, StepID: id}
				duration += spanned[i].Duration
			}
			occ := &store.Occurrence{
				WorkflowID: wf.ID,
				Start:      spanned[0].Start,
				End:        spanned[len(spanned)-1].End,
				Duration:   duration,
			}
			if err := o.store.CreateOccurrence(ctx, occ, refs); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// persistSteps stores synthesized steps with their event references and the
// union of their events' linked objects.
func (o *Orchestrator) persistSteps(ctx context.Context, steps []mining.Step) ([]string, error) {
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		refs := make([]store.EventRef, len(s.Events))
		objectSet := make(map[string]bool)
		for i, ev := range s.Events {
			refs[i] = store.EventRef{BucketID: ev.BucketID, EventID: ev.ID}
			linked, err := o.store.LinkedObjectIDs(ctx, ev.BucketID, ev.ID)
			if err != nil {
				return nil, err
			}
			for _, id := range linked {
				objectSet[id] = true
			}
		}
		objectIDs := make([]string, 0, len(objectSet))
		for id := range objectSet {
			objectIDs = append(objectIDs, id)
		}
		sort.Strings(objectIDs)

		step := &store.Step{
			Name:     s.Label,
			Start:    s.Start,
			End:      s.End,
			Duration: s.Duration,
		}
		if err := o.store.CreateStep(ctx, step, refs, objectIDs); err != nil {
			return nil, err
		}
		ids = append(ids, step.ID)
	}
	return ids, nil
}

func summarize(c mining.Case, steps []mining.Step) CaseSummary {
	labels := make([]string, len(steps))
	for i, s := range steps {
		labels[i] = s.Label
	}
	return CaseSummary{Start: c.Start(), End: c.End(), Events: len(c.Events), Labels: labels}
}

func labelKey(labels []string) string {
	return strings.Join(labels, "\x00")
}
