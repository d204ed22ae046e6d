// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateRule persists a new extraction rule.
func (s *Store) CreateRule(ctx context.Context, r *ExtractionRule) error {
	err := s.write(ctx, func(tx *gorm.DB) error {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		r.CreatedAt, r.UpdatedAt = now, now
		return tx.Create(r).Error
	})
	if err == nil {
		s.bumpRulesVersion()
	}
	return err
}

// GetRule returns the rule with the given id.
func (s *Store) GetRule(ctx context.Context, id string) (*ExtractionRule, error) {
	var r ExtractionRule
	if err := s.read(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("extraction rule %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// ListRules returns rules sorted by priority descending with a stable id
// tie-break. When enabledOnly is set, disabled rules are omitted.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]ExtractionRule, error) {
	q := s.read(ctx).Model(&ExtractionRule{})
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var rules []ExtractionRule
	if err := q.Order("priority DESC, id ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// UpdateRule replaces a rule definition.
func (s *Store) UpdateRule(ctx context.Context, r *ExtractionRule) error {
	err := s.write(ctx, func(tx *gorm.DB) error {
		var existing ExtractionRule
		if err := tx.First(&existing, "id = ?", r.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("extraction rule %s: %w", r.ID, ErrNotFound)
			}
			return err
		}
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = time.Now().UTC()
		return tx.Save(r).Error
	})
	if err == nil {
		s.bumpRulesVersion()
	}
	return err
}

// DeleteRule removes a rule. Links created by the rule are retained; their
// provenance still names the rule id.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	err := s.write(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&ExtractionRule{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("extraction rule %s: %w", id, ErrNotFound)
		}
		return nil
	})
	if err == nil {
		s.bumpRulesVersion()
	}
	return err
}

// RuleCounterDelta adjusts rule usage counters and confidence in one write.
type RuleCounterDelta struct {
	Match   int64
	Confirm int64
	Reject  int64
	// Confidence, when non-nil, replaces the stored confidence.
	Confidence *float64
	// Disable, when set, marks the rule disabled.
	Disable bool
}

// ApplyRuleDelta atomically applies counter and confidence changes to a
// rule. Returns the updated rule.
func (s *Store) ApplyRuleDelta(ctx context.Context, id string, d RuleCounterDelta) (*ExtractionRule, error) {
	var out ExtractionRule
	err := s.write(ctx, func(tx *gorm.DB) error {
		var r ExtractionRule
		if err := tx.First(&r, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("extraction rule %s: %w", id, ErrNotFound)
			}
			return err
		}
		r.MatchCount += d.Match
		r.ConfirmCount += d.Confirm
		r.RejectCount += d.Reject
		if d.Confidence != nil {
			r.Confidence = *d.Confidence
		}
		if d.Disable {
			r.Enabled = false
		}
		r.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Counter-only deltas do not change extraction semantics; bumping the
	// version for them would thrash the extractor's rule snapshot.
	if d.Confidence != nil || d.Disable {
		s.bumpRulesVersion()
	}
	return &out, nil
}
