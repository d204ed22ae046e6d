// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package mining

import "github.com/procmine/procmine/internal/store"

// DefaultMatchGap is the number of labels that may sit between two
// consecutive pattern positions during workflow matching.
const DefaultMatchGap = 1

// Match is one occurrence of a workflow pattern inside a case. First and
// Last bound the spanned step indexes inclusively; steps inside the span
// that matched no pattern position are still part of the occurrence.
type Match struct {
	First     int
	Last      int
	Positions []int // matched step index per non-skipped pattern position
}

// MatchPattern scans the step labels of a case for occurrences of a
// workflow pattern. Between consecutive pattern positions up to maxGap
// labels may be skipped (a step's AllowedGap overrides maxGap when set);
// optional pattern steps may be absent entirely. Overlapping matches are
// resolved greedily: the earliest match wins and scanning resumes after it.
func MatchPattern(pattern store.Pattern, labels []string, maxGap int) []Match {
	if len(pattern) == 0 {
		return nil
	}
	if maxGap < 0 {
		maxGap = DefaultMatchGap
	}
	var matches []Match
	for start := 0; start < len(labels); start++ {
		m, ok := matchPatternAt(pattern, labels, start, maxGap)
		if !ok {
			continue
		}
		matches = append(matches, m)
		start = m.Last
	}
	return matches
}

func matchPatternAt(pattern store.Pattern, labels []string, start, maxGap int) (Match, bool) {
	var positions []int
	pos := start - 1
	for _, ps := range pattern {
		gap := maxGap
		if ps.AllowedGap > 0 {
			gap = ps.AllowedGap
		}
		// The first matched position anchors the scan start exactly.
		lo, hi := pos+1, pos+1+gap
		if len(positions) == 0 {
			lo, hi = start, start
		}
		found := -1
		for cand := lo; cand <= hi && cand < len(labels); cand++ {
			if labels[cand] == ps.Label {
				found = cand
				break
			}
		}
		if found < 0 {
			if ps.Optional {
				continue
			}
			return Match{}, false
		}
		positions = append(positions, found)
		pos = found
	}
	if len(positions) == 0 {
		return Match{}, false
	}
	return Match{First: positions[0], Last: positions[len(positions)-1], Positions: positions}, true
}
