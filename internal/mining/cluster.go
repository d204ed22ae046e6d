// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package mining

import "strings"

// DefaultClusterSimilarity is the single-link clustering threshold.
const DefaultClusterSimilarity = 0.8

// Cluster is a group of variants forming one workflow candidate.
type Cluster struct {
	// Members keeps the miner's order, so the first member carries the
	// highest support.
	Members []MinedPattern
	// Canonical is the longest common subsequence of the member label
	// sequences; when that degenerates below two labels the
	// highest-support member's labels are used instead.
	Canonical []string
}

// ClusterVariants groups variants whose label sequences have a normalised
// Levenshtein similarity of at least theta, using single-link agglomerative
// clustering. Clusters are ordered by their first member's position in the
// input.
func ClusterVariants(variants []MinedPattern, theta float64) []Cluster {
	if theta <= 0 {
		theta = DefaultClusterSimilarity
	}
	n := len(variants)
	if n == 0 {
		return nil
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra > rb {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if Similarity(variants[i].Labels, variants[j].Labels) >= theta {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := 0; i < n; i++ {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	clusters := make([]Cluster, 0, len(roots))
	for _, r := range roots {
		members := make([]MinedPattern, 0, len(groups[r]))
		for _, i := range groups[r] {
			members = append(members, variants[i])
		}
		clusters = append(clusters, Cluster{Members: members, Canonical: canonicalPattern(members)})
	}
	return mergeByCanonical(clusters)
}

// mergeByCanonical folds clusters whose label sequences reduce to the same
// canonical pattern into one, keeping the first cluster's position. Distinct
// clusters can share a canonical when their members differ only in labels
// the LCS fold discards.
func mergeByCanonical(clusters []Cluster) []Cluster {
	index := make(map[string]int, len(clusters))
	out := make([]Cluster, 0, len(clusters))
	for _, c := range clusters {
		key := strings.Join(c.Canonical, "\x00")
		if i, ok := index[key]; ok {
			out[i].Members = append(out[i].Members, c.Members...)
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out
}

// canonicalPattern folds the longest common subsequence over the members in
// support order.
func canonicalPattern(members []MinedPattern) []string {
	canon := append([]string(nil), members[0].Labels...)
	for _, m := range members[1:] {
		canon = lcs(canon, m.Labels)
	}
	if len(canon) < 2 {
		return append([]string(nil), members[0].Labels...)
	}
	return canon
}

// Similarity is 1 minus the Levenshtein distance between the label
// sequences normalised by the longer length.
func Similarity(a, b []string) float64 {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

func levenshtein(a, b []string) int {
	la, lb := len(a), len(b)
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// lcs returns the longest common subsequence of two label sequences,
// preferring earlier elements of a on ties for determinism.
func lcs(a, b []string) []string {
	la, lb := len(a), len(b)
	dp := make([][]int, la+1)
	for i := range dp {
		dp[i] = make([]int, lb+1)
	}
	for i := la - 1; i >= 0; i-- {
		for j := lb - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}
	var out []string
	i, j := 0, 0
	for i < la && j < lb {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
