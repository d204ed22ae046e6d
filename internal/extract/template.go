// Copyright 2025 The Procmine Authors
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"fmt"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderTemplate substitutes {group} placeholders with captured group
// values. An unresolved placeholder is an error.
func renderTemplate(tmpl string, groups map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := groups[name]
		if !ok {
			missing = append(missing, name)
			return ph
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q references undefined groups %v", tmpl, missing)
	}
	return out, nil
}

// aliasGroups extends captured groups with their data-mapped aliases, so a
// name template can reference a value by its capture-group name or by the
// data key it maps to. Aliases never shadow a capture group of the same
// name.
func aliasGroups(groups map[string]string, dataMapping map[string]any) map[string]string {
	for group, key := range dataMapping {
		dataKey, ok := key.(string)
		if !ok {
			continue
		}
		v, ok := groups[group]
		if !ok {
			continue
		}
		if _, exists := groups[dataKey]; !exists {
			groups[dataKey] = v
		}
	}
	return groups
}

// ValidateRule checks the static invariants of a rule definition: the regex
// must compile and every placeholder in the name template must name a
// declared capture group or a mapped data key.
func ValidateRule(pattern, nameTemplate string, dataMapping map[string]any) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("pattern does not compile: %w", err)
	}
	declared := make(map[string]bool)
	for _, n := range re.SubexpNames() {
		if n != "" {
			declared[n] = true
		}
	}
	for group, key := range dataMapping {
		if dataKey, ok := key.(string); ok && declared[group] {
			declared[dataKey] = true
		}
	}
	for _, m := range placeholderRe.FindAllStringSubmatch(nameTemplate, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("template placeholder {%s} has no matching capture group or data key", m[1])
		}
	}
	return nil
}
