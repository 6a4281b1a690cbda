package platform

import "strings"

// Meta describes a provider source for display and alias resolution.
type Meta struct {
	Name        string
	DisplayName string
	Aliases     []string
}

func normalizeAlias(alias string) string {
	trimmed := strings.TrimSpace(alias)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, "@")
	return strings.ToLower(strings.TrimSpace(trimmed))
}

func mergeAliases(existing, incoming []string) []string {
	if len(existing) == 0 {
		return incoming
	}
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{})
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, alias := range append(append([]string{}, existing...), incoming...) {
		key := normalizeAlias(alias)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, alias)
	}
	return merged
}
