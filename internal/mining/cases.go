// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

// Package mining turns event streams into cases, mines frequent sequential
// patterns from them and clusters pattern variants into workflow candidates.
// All functions are pure over in-memory inputs; persistence is the caller's
// concern.
package mining

import (
	"net/url"
	"sort"
	"time"

	"github.com/procmine/procmine/internal/store"
)

// DefaultMaxGap is the sessionisation gap threshold.
const DefaultMaxGap = 120 * time.Second

// MinAFKCut is the minimum AFK interval length that cuts a case.
const MinAFKCut = 60 * time.Second

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// EventKey identifies an event across buckets.
type EventKey struct {
	BucketID string
	EventID  int64
}

// Case is a bounded, temporally coherent sequence of events.
type Case struct {
	Events []store.Event
}

// Start returns the first event's timestamp.
func (c Case) Start() time.Time { return c.Events[0].Timestamp }

// End returns the last event's end time.
func (c Case) End() time.Time { return c.Events[len(c.Events)-1].End() }

// BuildCases partitions events into cases by gap sessionisation: the
// boundary between consecutive events is cut iff the idle gap between them
// exceeds maxGap. AFK intervals of at least MinAFKCut additionally cut any
// case they interrupt. Events are sorted by timestamp with an id tie-break
// before partitioning.
func BuildCases(events []store.Event, maxGap time.Duration, afk []Interval) []Case {
	if len(events) == 0 {
		return nil
	}
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	sorted := make([]store.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			if sorted[i].BucketID == sorted[j].BucketID {
				return sorted[i].ID < sorted[j].ID
			}
			return sorted[i].BucketID < sorted[j].BucketID
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var cases []Case
	current := []store.Event{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if next.Timestamp.Sub(prev.End()) > maxGap || afkCuts(afk, prev.End(), next.Timestamp) {
			cases = append(cases, Case{Events: current})
			current = nil
		}
		current = append(current, next)
	}
	cases = append(cases, Case{Events: current})
	return cases
}

// afkCuts reports whether an AFK interval of at least MinAFKCut overlaps the
// span between two consecutive events.
func afkCuts(afk []Interval, from, to time.Time) bool {
	for _, iv := range afk {
		if iv.End.Sub(iv.Start) < MinAFKCut {
			continue
		}
		if iv.Start.Before(to) && iv.End.After(from) {
			return true
		}
	}
	return false
}

// RefineByObjects adds object-coherent sub-cases: within each gap case,
// every maximal run of consecutive events sharing an object id becomes an
// additional case when it has at least two events and does not span the
// whole parent. The parent gap cases are always retained, so the result may
// contain overlapping cases.
func RefineByObjects(cases []Case, objectsOf func(EventKey) []string) []Case {
	var out []Case
	for _, c := range cases {
		out = append(out, c)
		out = append(out, coherentSubCases(c, objectsOf)...)
	}
	return out
}

func coherentSubCases(c Case, objectsOf func(EventKey) []string) []Case {
	perEvent := make([][]string, len(c.Events))
	objectSet := make(map[string]bool)
	for i, ev := range c.Events {
		ids := objectsOf(EventKey{BucketID: ev.BucketID, EventID: ev.ID})
		perEvent[i] = ids
		for _, id := range ids {
			objectSet[id] = true
		}
	}
	objects := make([]string, 0, len(objectSet))
	for id := range objectSet {
		objects = append(objects, id)
	}
	sort.Strings(objects)

	type span struct{ lo, hi int }
	seen := make(map[span]bool)
	var out []Case
	for _, obj := range objects {
		lo := -1
		for i := 0; i <= len(c.Events); i++ {
			has := i < len(c.Events) && containsString(perEvent[i], obj)
			switch {
			case has && lo < 0:
				lo = i
			case !has && lo >= 0:
				sp := span{lo, i}
				if i-lo >= 2 && !(lo == 0 && i == len(c.Events)) && !seen[sp] {
					seen[sp] = true
					out = append(out, Case{Events: c.Events[lo:i]})
				}
				lo = -1
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start().Equal(out[j].Start()) {
			return len(out[i].Events) < len(out[j].Events)
		}
		return out[i].Start().Before(out[j].Start())
	})
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Step is a synthesized activity: consecutive events of one case sharing an
// activity label.
type Step struct {
	Label    string
	Start    time.Time
	End      time.Time
	Duration float64
	Events   []store.Event
}

// ActivityLabel derives the activity label of an event: the application
// name, else the URL host, else the title truncated to 64 characters, else
// "unknown".
func ActivityLabel(ev store.Event) string {
	if app, ok := ev.Data["app"].(string); ok && app != "" {
		return app
	}
	if raw, ok := ev.Data["url"].(string); ok && raw != "" {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
	}
	if title, ok := ev.Data["title"].(string); ok && title != "" {
		if len(title) > 64 {
			return title[:64]
		}
		return title
	}
	return "unknown"
}

// SynthesizeSteps collapses consecutive events sharing an activity label
// into steps. A step's duration is the sum of its event durations, not
// end minus start, matching the watcher convention of duration as
// foreground time.
func SynthesizeSteps(c Case) []Step {
	var steps []Step
	for _, ev := range c.Events {
		label := ActivityLabel(ev)
		if n := len(steps); n > 0 && steps[n-1].Label == label {
			s := &steps[n-1]
			s.End = ev.End()
			s.Duration += ev.Duration
			s.Events = append(s.Events, ev)
			continue
		}
		steps = append(steps, Step{
			Label:    label,
			Start:    ev.Timestamp,
			End:      ev.End(),
			Duration: ev.Duration,
			Events:   []store.Event{ev},
		})
	}
	return steps
}
