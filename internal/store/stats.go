// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "context"

// TypeCount pairs an object type with its instance count.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats summarises the contents of the store.
type Stats struct {
	Buckets        int64       `json:"buckets"`
	Events         int64       `json:"events"`
	Objects        int64       `json:"objects"`
	ObjectsByType  []TypeCount `json:"objects_by_type"`
	Links          int64       `json:"links"`
	Rules          int64       `json:"rules"`
	EnabledRules   int64       `json:"enabled_rules"`
	Steps          int64       `json:"steps"`
	Workflows      int64       `json:"workflows"`
	Occurrences    int64       `json:"occurrences"`
	PendingReviews int64       `json:"pending_reviews"`
}

// GetStats counts the major entities in one pass.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	db := s.read(ctx)
	var st Stats
	counts := []struct {
		model any
		dst   *int64
	}{
		{&Bucket{}, &st.Buckets},
		{&Event{}, &st.Events},
		{&Object{}, &st.Objects},
		{&EventObjectLink{}, &st.Links},
		{&ExtractionRule{}, &st.Rules},
		{&Step{}, &st.Steps},
		{&Workflow{}, &st.Workflows},
		{&Occurrence{}, &st.Occurrences},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	if err := db.Model(&ExtractionRule{}).Where("enabled = ?", true).Count(&st.EnabledRules).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&ReviewTask{}).Where("status = ?", ReviewStatusPending).Count(&st.PendingReviews).Error; err != nil {
		return nil, err
	}
	err := db.Model(&Object{}).
		Select("type, count(*) as count").
		Group("type").
		Order("count DESC, type ASC").
		Scan(&st.ObjectsByType).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}
