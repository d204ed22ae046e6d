// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// Generalize turns a sample identifier into a regex pattern: digit runs
// become \d+, uppercase-letter runs become [A-Z]+ and everything else is
// escaped literally. The result is deterministic for a given sample.
func Generalize(sample string) string {
	var b strings.Builder
	runes := []rune(sample)
	for i := 0; i < len(runes); {
		switch {
		case unicode.IsDigit(runes[i]):
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			b.WriteString(`\d+`)
		case runes[i] >= 'A' && runes[i] <= 'Z':
			for i < len(runes) && runes[i] >= 'A' && runes[i] <= 'Z' {
				i++
			}
			b.WriteString(`[A-Z]+`)
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
			i++
		}
	}
	return b.String()
}
