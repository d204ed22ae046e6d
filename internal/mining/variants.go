// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package mining

import "slices"

// DefaultMinVariantCases is the minimum number of distinct supporting cases
// for a pattern to count as a variant.
const DefaultMinVariantCases = 3

// Variants filters mined patterns down to variants: patterns observed in at
// least minCases distinct cases that are not subsumed by a longer pattern
// covering the same case set. Input order (the miner's deterministic order)
// is preserved.
func Variants(patterns []MinedPattern, minCases int) []MinedPattern {
	if minCases <= 0 {
		minCases = DefaultMinVariantCases
	}
	var out []MinedPattern
	for i, p := range patterns {
		if len(p.Cases) < minCases {
			continue
		}
		if subsumed(patterns, i) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// subsumed reports whether pattern i is a strict subsequence of another
// pattern with the same case coverage.
func subsumed(patterns []MinedPattern, i int) bool {
	p := patterns[i]
	for j, q := range patterns {
		if j == i || len(q.Labels) <= len(p.Labels) {
			continue
		}
		if slices.Equal(p.Cases, q.Cases) && isSubsequence(p.Labels, q.Labels) {
			return true
		}
	}
	return false
}

// isSubsequence reports whether sub occurs in seq preserving order, not
// necessarily contiguously.
func isSubsequence(sub, seq []string) bool {
	i := 0
	for _, label := range seq {
		if i < len(sub) && sub[i] == label {
			i++
		}
	}
	return i == len(sub)
}
