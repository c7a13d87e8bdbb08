package errors

import (
	"strings"
)

// SuggestComponent picks the registered identifier most likely meant by a
// misspelled invocation target, or "" when nothing is close enough. Matching
// mirrors how authors actually miss: wrong case, missing namespace segment,
// or a partial name.
func SuggestComponent(target string, available []string) string {
	if target == "" || len(available) == 0 {
		return ""
	}

	lower := strings.ToLower(target)

	// Exact match under case folding beats everything.
	for _, id := range available {
		if strings.ToLower(id) == lower {
			return id
		}
	}

	// A target missing its namespace ("button" for "ui/button").
	for _, id := range available {
		base := id
		if idx := strings.LastIndex(id, "/"); idx >= 0 {
			base = id[idx+1:]
		}
		if strings.EqualFold(base, target) {
			return id
		}
	}

	// Substring containment either way.
	for _, id := range available {
		idLower := strings.ToLower(id)
		if strings.Contains(idLower, lower) || strings.Contains(lower, idLower) {
			return id
		}
	}

	return ""
}
