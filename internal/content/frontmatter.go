package content

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SplitFrontmatter strips a leading YAML frontmatter block ("---" fences on
// their own lines) from a page source and returns the flattened metadata plus
// the remaining body. Sources without a fence pass through untouched. Used
// for .html pages; markdown pages extract frontmatter during conversion.
func SplitFrontmatter(source string) (map[string]string, string, error) {
	rest, ok := strings.CutPrefix(source, "---")
	if !ok {
		return nil, source, nil
	}
	rest, ok = strings.CutPrefix(strings.TrimPrefix(rest, "\r"), "\n")
	if !ok {
		return nil, source, nil
	}

	end := strings.Index(rest, "\n---")
	var block, body string
	switch {
	case strings.HasPrefix(rest, "---"):
		block, body = "", rest[len("---"):]
	case end >= 0:
		block, body = rest[:end], rest[end+len("\n---"):]
	default:
		return nil, source, fmt.Errorf("frontmatter opened but never closed")
	}
	body = strings.TrimPrefix(strings.TrimPrefix(body, "\r"), "\n")

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return nil, source, fmt.Errorf("invalid frontmatter: %w", err)
	}
	return flattenMeta(raw), body, nil
}

// flattenMeta stringifies a decoded YAML mapping for template consumption.
// Nested maps flatten into dotted keys, sequences join with ", ".
func flattenMeta(raw map[string]interface{}) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		flattenValue(out, key, value)
	}
	return out
}

func flattenValue(out map[string]string, key string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		for k, nested := range v {
			flattenValue(out, key+"."+k, nested)
		}
	case map[interface{}]interface{}:
		// yaml.v2 shape, produced by the goldmark frontmatter extension.
		for k, nested := range v {
			flattenValue(out, fmt.Sprintf("%s.%v", key, k), nested)
		}
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		out[key] = strings.Join(parts, ", ")
	case time.Time:
		out[key] = v.Format("2006-01-02")
	case nil:
		out[key] = ""
	default:
		out[key] = fmt.Sprintf("%v", v)
	}
}
