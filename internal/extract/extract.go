// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package extract applies prioritised regex rules to watcher events,
// producing business objects and event-object links, and maintains the
// ontology by learning from user feedback.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/procmine/procmine/internal/store"
)

type compiledRule struct {
	rule store.ExtractionRule
	re   *regexp.Regexp
}

type snapshot struct {
	version int64
	rules   []compiledRule
}

// Extractor runs enabled extraction rules over events. It keeps a compiled
// rule snapshot that is rebuilt lazily whenever the store's rules version
// advances.
type Extractor struct {
	store  *store.Store
	logger *slog.Logger

	mu   sync.Mutex
	snap *snapshot
}

// New returns an Extractor bound to the given store.
func New(st *store.Store, logger *slog.Logger) *Extractor {
	return &Extractor{store: st, logger: logger.With("component", "extract")}
}

// Binding is one object produced by a rule match on an event.
type Binding struct {
	RuleID  string
	Object  *store.Object
	Created bool
}

// snapshotRules returns the current compiled rule set, rebuilding it when
// stale. Rules whose regex fails to compile are quarantined: disabled,
// audited and skipped.
func (x *Extractor) snapshotRules(ctx context.Context) ([]compiledRule, error) {
	version := x.store.RulesVersion()
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.snap != nil && x.snap.version == version {
		return x.snap.rules, nil
	}

	rules, err := x.store.ListRules(ctx, true)
	if err != nil {
		return nil, err
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			x.quarantine(ctx, r, err)
			continue
		}
		compiled = append(compiled, compiledRule{rule: r, re: re})
	}
	// Quarantining bumps the store version; record the version we loaded
	// against so the next call does not rebuild again.
	x.snap = &snapshot{version: x.store.RulesVersion(), rules: compiled}
	return compiled, nil
}

func (x *Extractor) quarantine(ctx context.Context, r store.ExtractionRule, cause error) {
	x.logger.Warn("quarantining extraction rule", "rule_id", r.ID, "error", cause)
	if _, err := x.store.ApplyRuleDelta(ctx, r.ID, store.RuleCounterDelta{Disable: true}); err != nil {
		x.logger.Error("failed to disable rule", "rule_id", r.ID, "error", err)
		return
	}
	detail := store.JSONMap{"pattern": r.Pattern, "error": cause.Error()}
	if err := x.store.AppendAudit(ctx, store.AuditRuleDisabled, r.ID, detail); err != nil {
		x.logger.Error("failed to audit quarantine", "rule_id", r.ID, "error", err)
	}
	rulesQuarantined.Inc()
}

// sourceText concatenates the rule's source fields from the event data with
// a single space separator. Missing fields contribute an empty string.
func sourceText(fields []string, data store.JSONMap) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if v, ok := data[f].(string); ok {
			parts[i] = v
		}
	}
	return strings.Join(parts, " ")
}

// applyRule collects all non-overlapping matches of one rule against one
// event and returns the produced bindings.
func (x *Extractor) applyRule(ctx context.Context, cr compiledRule, ev store.Event) ([]Binding, error) {
	text := sourceText(cr.rule.SourceFields, ev.Data)
	if text == "" {
		return nil, nil
	}
	matches := cr.re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	names := cr.re.SubexpNames()
	var bindings []Binding
	for _, m := range matches {
		groups := make(map[string]string, len(names))
		for i, n := range names {
			if n != "" && i < len(m) {
				groups[n] = m[i]
			}
		}
		name, err := renderTemplate(cr.rule.NameTemplate, aliasGroups(groups, cr.rule.DataMapping))
		if err != nil || name == "" {
			continue
		}
		data := store.JSONMap{}
		for group, key := range cr.rule.DataMapping {
			dataKey, ok := key.(string)
			if !ok {
				continue
			}
			if v, ok := groups[group]; ok {
				data[dataKey] = v
			}
		}
		obj, created, err := x.store.UpsertObject(ctx, cr.rule.ObjectType, name, data, false)
		if err != nil {
			return nil, fmt.Errorf("upsert object (%s, %s): %w", cr.rule.ObjectType, name, err)
		}
		provenance := "rule:" + cr.rule.ID
		if err := x.store.LinkEventToObject(ctx, ev.BucketID, ev.ID, obj.ID, provenance, cr.rule.Confidence); err != nil {
			return nil, err
		}
		bindings = append(bindings, Binding{RuleID: cr.rule.ID, Object: obj, Created: created})
	}
	return bindings, nil
}

// ExtractEvent runs all enabled rules against one event. Higher-priority
// rules run first; later rules are not inhibited by earlier matches.
func (x *Extractor) ExtractEvent(ctx context.Context, ev store.Event) ([]Binding, error) {
	out, err := x.ExtractEvents(ctx, []store.Event{ev})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractEvents runs the rule set over a batch of events, accumulating rule
// match counters in memory and flushing them once at the end.
func (x *Extractor) ExtractEvents(ctx context.Context, events []store.Event) ([]Binding, error) {
	rules, err := x.snapshotRules(ctx)
	if err != nil {
		return nil, err
	}

	var all []Binding
	matchDeltas := make(map[string]int64)
	for _, ev := range events {
		for _, cr := range rules {
			bindings, err := x.applyRule(ctx, cr, ev)
			if err != nil {
				// A single malformed event never aborts the batch.
				x.logger.Warn("rule application failed",
					"rule_id", cr.rule.ID, "bucket_id", ev.BucketID, "event_id", ev.ID, "error", err)
				continue
			}
			if len(bindings) > 0 {
				matchDeltas[cr.rule.ID] += int64(len(bindings))
				all = append(all, bindings...)
			}
		}
	}

	for ruleID, n := range matchDeltas {
		if _, err := x.store.ApplyRuleDelta(ctx, ruleID, store.RuleCounterDelta{Match: n}); err != nil {
			x.logger.Warn("failed to update match counter", "rule_id", ruleID, "error", err)
		}
	}
	linksCreated.Add(float64(len(all)))
	return all, nil
}

// RuleTestResult is the outcome of a dry-run of one rule against one sample.
type RuleTestResult struct {
	Match bool              `json:"match"`
	Name  string            `json:"name,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// TestRule dry-runs a rule against sample field maps without touching the
// store. Only the first match per sample is reported.
func TestRule(r *store.ExtractionRule, samples []map[string]string) ([]RuleTestResult, error) {
	re, err := regexp.Compile(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern does not compile: %w", err)
	}
	names := re.SubexpNames()
	results := make([]RuleTestResult, len(samples))
	for i, sample := range samples {
		data := store.JSONMap{}
		for k, v := range sample {
			data[k] = v
		}
		text := sourceText(r.SourceFields, data)
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		groups := make(map[string]string, len(names))
		for j, n := range names {
			if n != "" && j < len(m) {
				groups[n] = m[j]
			}
		}
		name, err := renderTemplate(r.NameTemplate, aliasGroups(groups, r.DataMapping))
		if err != nil {
			return nil, err
		}
		mapped := make(map[string]string)
		for group, key := range r.DataMapping {
			if dataKey, ok := key.(string); ok {
				if v, ok := groups[group]; ok {
					mapped[dataKey] = v
				}
			}
		}
		results[i] = RuleTestResult{Match: true, Name: name, Data: mapped}
	}
	return results, nil
}
