// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package mining

import (
	"math"
	"slices"
	"sort"
)

// MineOptions control the frequent sequential pattern search.
type MineOptions struct {
	// MinSupport is the minimum fraction of cases a pattern must occur in.
	MinSupport float64
	MinLen     int
	MaxLen     int
	// MaxSkip is the number of intermediate labels that may be skipped
	// between consecutive pattern positions. 0 means patterns are
	// contiguous label runs.
	MaxSkip int
}

// DefaultMineOptions mirror the engine defaults: support 0.1, length 2..10,
// contiguous expansion.
func DefaultMineOptions() MineOptions {
	return MineOptions{MinSupport: 0.1, MinLen: 2, MaxLen: 10}
}

// MinedPattern is one frequent label sequence with its supporting cases.
type MinedPattern struct {
	Labels []string `json:"labels"`
	// Cases holds the indexes of supporting cases, ascending.
	Cases       []int   `json:"cases"`
	Support     float64 `json:"support"`
	AvgDuration float64 `json:"avg_duration"`
}

// MinePatterns runs a PrefixSpan-style depth-first expansion over the label
// sequences of the given cases. The result is deterministic: sorted by
// descending support, then ascending length, then lexicographically.
func MinePatterns(caseSteps [][]Step, opts MineOptions) []MinedPattern {
	n := len(caseSteps)
	if n == 0 {
		return nil
	}
	if opts.MinSupport <= 0 {
		opts.MinSupport = 0.1
	}
	if opts.MinLen < 2 {
		opts.MinLen = 2
	}
	if opts.MaxLen <= 0 {
		opts.MaxLen = 10
	}
	minCount := int(math.Ceil(opts.MinSupport * float64(n)))
	if minCount < 1 {
		minCount = 1
	}

	sequences := make([][]string, n)
	for i, steps := range caseSteps {
		labels := make([]string, len(steps))
		for j, s := range steps {
			labels[j] = s.Label
		}
		sequences[i] = labels
	}

	m := &miner{sequences: sequences, caseSteps: caseSteps, opts: opts, minCount: minCount}

	// Length-1 prefixes: every label with all of its positions.
	starts := make(map[string]map[int][]int)
	for si, seq := range sequences {
		for pos, label := range seq {
			if starts[label] == nil {
				starts[label] = make(map[int][]int)
			}
			starts[label][si] = append(starts[label][si], pos)
		}
	}
	for _, label := range sortedKeys(starts) {
		positions := starts[label]
		if len(positions) < minCount {
			continue
		}
		m.expand([]string{label}, positions)
	}

	sort.Slice(m.out, func(i, j int) bool {
		a, b := m.out[i], m.out[j]
		if len(a.Cases) != len(b.Cases) {
			return len(a.Cases) > len(b.Cases)
		}
		if len(a.Labels) != len(b.Labels) {
			return len(a.Labels) < len(b.Labels)
		}
		return slices.Compare(a.Labels, b.Labels) < 0
	})
	return m.out
}

type miner struct {
	sequences [][]string
	caseSteps [][]Step
	opts      MineOptions
	minCount  int
	out       []MinedPattern
}

// expand grows the prefix depth-first. positions maps sequence index to the
// end positions of every occurrence of the prefix in that sequence.
func (m *miner) expand(prefix []string, positions map[int][]int) {
	if len(prefix) >= m.opts.MinLen {
		m.emit(prefix, positions)
	}
	if len(prefix) >= m.opts.MaxLen {
		return
	}

	next := make(map[string]map[int][]int)
	for si, ends := range positions {
		seq := m.sequences[si]
		for _, end := range ends {
			limit := end + 1 + m.opts.MaxSkip
			for pos := end + 1; pos <= limit && pos < len(seq); pos++ {
				label := seq[pos]
				if next[label] == nil {
					next[label] = make(map[int][]int)
				}
				if !slices.Contains(next[label][si], pos) {
					next[label][si] = append(next[label][si], pos)
				}
			}
		}
	}
	for _, label := range sortedKeys(next) {
		grown := next[label]
		if len(grown) < m.minCount {
			continue
		}
		m.expand(append(append([]string(nil), prefix...), label), grown)
	}
}

func (m *miner) emit(prefix []string, positions map[int][]int) {
	cases := make([]int, 0, len(positions))
	for si := range positions {
		cases = append(cases, si)
	}
	sort.Ints(cases)

	var totalDur float64
	for _, si := range cases {
		totalDur += m.firstMatchDuration(si, prefix)
	}
	m.out = append(m.out, MinedPattern{
		Labels:      append([]string(nil), prefix...),
		Cases:       cases,
		Support:     float64(len(cases)) / float64(len(m.sequences)),
		AvgDuration: totalDur / float64(len(cases)),
	})
}

// firstMatchDuration sums the step durations of the earliest occurrence of
// the pattern in one case.
func (m *miner) firstMatchDuration(si int, pattern []string) float64 {
	seq := m.sequences[si]
	steps := m.caseSteps[si]
	for start := 0; start+len(pattern) <= len(seq); start++ {
		if idx, ok := matchAt(seq, pattern, start, m.opts.MaxSkip); ok {
			var d float64
			for _, i := range idx {
				d += steps[i].Duration
			}
			return d
		}
	}
	return 0
}

// matchAt tries to match pattern starting exactly at start, allowing up to
// maxSkip intermediate labels between consecutive positions. Returns the
// matched indexes.
func matchAt(seq, pattern []string, start, maxSkip int) ([]int, bool) {
	if seq[start] != pattern[0] {
		return nil, false
	}
	idx := make([]int, 1, len(pattern))
	idx[0] = start
	pos := start
	for _, label := range pattern[1:] {
		found := -1
		for cand := pos + 1; cand <= pos+1+maxSkip && cand < len(seq); cand++ {
			if seq[cand] == label {
				found = cand
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		idx = append(idx, found)
		pos = found
	}
	return idx, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
