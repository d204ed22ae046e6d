// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/procmine/procmine/internal/store"
)

const (
	confirmAlpha = 0.1
	rejectBeta   = 0.2

	// A rule is demoted when its confirm ratio drops below this with at
	// least demotionMinSamples feedback samples.
	demotionRatio      = 0.25
	demotionMinSamples = 10

	// Corrections of the same (rule, corrected type) needed before a
	// learned rule candidate is proposed.
	correctionThreshold = 3

	learnedRuleConfidence = 0.5
)

func confirmAdjust(c float64) float64 {
	c += confirmAlpha * (1 - c)
	if c > 0.99 {
		return 0.99
	}
	return c
}

func rejectAdjust(c float64) float64 {
	c -= rejectBeta * c
	if c < 0 {
		return 0
	}
	return c
}

// ruleIDFromProvenance extracts the rule id from a "rule:<id>" link
// provenance. Returns "" for llm and manual links.
func ruleIDFromProvenance(p string) string {
	if rest, ok := strings.CutPrefix(p, "rule:"); ok {
		return rest
	}
	return ""
}

// Confirm records positive feedback for an event-object binding. The
// originating rule, if any, gains confirm count and confidence.
func (x *Extractor) Confirm(ctx context.Context, bucketID string, eventID int64, objectID string) error {
	link, err := x.store.GetLink(ctx, bucketID, eventID, objectID)
	if err != nil {
		return err
	}
	ruleID := ruleIDFromProvenance(link.Provenance)
	if ruleID == "" {
		return nil
	}
	rule, err := x.store.GetRule(ctx, ruleID)
	if err != nil {
		// The rule may have been deleted; the link stays valid.
		return nil
	}
	conf := confirmAdjust(rule.Confidence)
	_, err = x.store.ApplyRuleDelta(ctx, ruleID, store.RuleCounterDelta{Confirm: 1, Confidence: &conf})
	return err
}

// Reject records negative feedback: the link is removed and the originating
// rule loses confidence. Rules whose confirm ratio falls below the demotion
// threshold with enough samples are disabled.
func (x *Extractor) Reject(ctx context.Context, bucketID string, eventID int64, objectID, reason string) error {
	link, err := x.store.GetLink(ctx, bucketID, eventID, objectID)
	if err != nil {
		return err
	}
	if err := x.store.UnlinkEventFromObject(ctx, bucketID, eventID, objectID); err != nil {
		return err
	}
	ruleID := ruleIDFromProvenance(link.Provenance)
	if ruleID == "" {
		return nil
	}
	rule, err := x.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil
	}
	conf := rejectAdjust(rule.Confidence)
	updated, err := x.store.ApplyRuleDelta(ctx, ruleID, store.RuleCounterDelta{Reject: 1, Confidence: &conf})
	if err != nil {
		return err
	}

	total := updated.ConfirmCount + updated.RejectCount
	if !updated.Enabled || total < demotionMinSamples {
		return nil
	}
	// Demotion requires the ratio to fall strictly below the floor; a rule
	// sitting exactly at it is kept.
	ratio := float64(updated.ConfirmCount) / float64(total)
	if ratio >= demotionRatio {
		return nil
	}
	if _, err := x.store.ApplyRuleDelta(ctx, ruleID, store.RuleCounterDelta{Disable: true}); err != nil {
		return err
	}
	detail := store.JSONMap{
		"confirm_count": updated.ConfirmCount,
		"reject_count":  updated.RejectCount,
		"ratio":         ratio,
		"reason":        reason,
	}
	if err := x.store.AppendAudit(ctx, store.AuditRuleDemoted, ruleID, detail); err != nil {
		return err
	}
	rulesDemoted.Inc()
	x.logger.Info("rule demoted", "rule_id", ruleID, "ratio", ratio)
	return nil
}

// Correction describes a user fix of an extracted binding. Empty fields keep
// the original value.
type Correction struct {
	Type          string
	Name          string
	IdentifierKey string
	Data          store.JSONMap
}

// Correct replaces a wrong binding with the corrected object: the original
// link is deleted, the corrected object upserted and linked manually.
// Repeated corrections of the same (rule, corrected type) propose a disabled
// learned-rule candidate built by generalising the corrected identifier.
func (x *Extractor) Correct(ctx context.Context, bucketID string, eventID int64, objectID string, corr Correction) error {
	link, err := x.store.GetLink(ctx, bucketID, eventID, objectID)
	if err != nil {
		return err
	}
	original, err := x.store.GetObject(ctx, objectID)
	if err != nil {
		return err
	}

	correctedType := corr.Type
	if correctedType == "" {
		correctedType = original.Type
	}
	correctedName := corr.Name
	if correctedName == "" {
		correctedName = original.Name
	}

	if err := x.store.UnlinkEventFromObject(ctx, bucketID, eventID, objectID); err != nil {
		return err
	}

	data := store.JSONMap{}
	for k, v := range corr.Data {
		data[k] = v
	}
	if corr.IdentifierKey != "" {
		data[corr.IdentifierKey] = correctedName
	}
	obj, _, err := x.store.UpsertObject(ctx, correctedType, correctedName, data, false)
	if err != nil {
		return err
	}
	if err := x.store.LinkEventToObject(ctx, bucketID, eventID, obj.ID, store.LinkProvenanceManual, 1.0); err != nil {
		return err
	}

	ruleID := ruleIDFromProvenance(link.Provenance)
	subject := ruleID
	if subject == "" {
		subject = objectID
	}
	detail := store.JSONMap{
		"bucket_id":      bucketID,
		"event_id":       eventID,
		"original_type":  original.Type,
		"original_name":  original.Name,
		"corrected_type": correctedType,
		"corrected_name": correctedName,
	}
	if err := x.store.AppendAudit(ctx, store.AuditCorrection, subject, detail); err != nil {
		return err
	}
	if ruleID == "" {
		return nil
	}
	return x.maybeProposeLearnedRule(ctx, ruleID, correctedType, correctedName)
}

// maybeProposeLearnedRule creates a disabled candidate rule once enough
// corrections of the same (rule, corrected type) have accumulated.
func (x *Extractor) maybeProposeLearnedRule(ctx context.Context, ruleID, correctedType, sample string) error {
	records, err := x.store.ListAudit(ctx, store.AuditCorrection, ruleID, 0)
	if err != nil {
		return err
	}
	var count int
	for _, rec := range records {
		if t, ok := rec.Detail["corrected_type"].(string); ok && t == correctedType {
			count++
		}
	}
	if count < correctionThreshold {
		return nil
	}

	pattern := "(?P<name>" + Generalize(sample) + ")"

	// A candidate for the same (type, pattern) is proposed only once.
	existing, err := x.store.ListRules(ctx, false)
	if err != nil {
		return err
	}
	for _, r := range existing {
		if r.ObjectType == correctedType && r.Pattern == pattern {
			return nil
		}
	}

	origin, err := x.store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	learned := &store.ExtractionRule{
		Name:         fmt.Sprintf("learned %s from corrections of %s", correctedType, origin.Name),
		ObjectType:   correctedType,
		SourceFields: origin.SourceFields,
		Pattern:      pattern,
		NameTemplate: "{name}",
		Enabled:      false,
		Priority:     origin.Priority,
		Provenance:   store.RuleProvenanceLearned,
		Confidence:   learnedRuleConfidence,
	}
	if err := x.store.CreateRule(ctx, learned); err != nil {
		return err
	}
	detail := store.JSONMap{
		"origin_rule_id": ruleID,
		"object_type":    correctedType,
		"pattern":        pattern,
		"sample":         sample,
	}
	if err := x.store.AppendAudit(ctx, store.AuditRuleLearned, learned.ID, detail); err != nil {
		return err
	}
	rulesLearned.Inc()
	x.logger.Info("learned rule proposed", "rule_id", learned.ID, "object_type", correctedType)
	return nil
}
