package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// Content units share the dependency graph with components. Their graph keys
// carry a prefix so a page and a component with the same identifier stay
// distinct nodes; invocation targets are always bare component identifiers.
const pageKeyPrefix = "page:"

func pageKey(id string) string {
	return pageKeyPrefix + id
}

func keyFor(kind types.UnitKind, id string) string {
	if kind == types.KindContent {
		return pageKey(id)
	}
	return id
}

func splitKey(key string) (types.UnitKind, string) {
	if id, ok := strings.CutPrefix(key, pageKeyPrefix); ok {
		return types.KindContent, id
	}
	return types.KindComponent, key
}

// fingerprintLocked computes a unit's combined fingerprint: its own source
// hash mixed with the fingerprints of everything it invokes, recursively.
// Dependency iteration is sorted so the digest is order-stable; unresolved
// targets and in-cycle back edges contribute fixed markers instead of
// recursing. Results memoize into e.fingerprints. Caller holds stateMu.
func (e *Engine) fingerprintLocked(key string, visiting map[string]bool) string {
	if fp, ok := e.fingerprints[key]; ok {
		return fp
	}
	unit := e.unitForLocked(key)
	if unit == nil {
		return "missing"
	}

	visiting[key] = true
	defer delete(visiting, key)

	h := xxhash.New()
	_, _ = h.WriteString(unit.Hash)
	for _, dep := range e.graph.DependenciesOf(key) {
		depFp := "cycle"
		if !visiting[dep] {
			depFp = e.fingerprintLocked(dep, visiting)
		}
		_, _ = h.WriteString("\x00" + dep + "\x00" + depFp)
	}

	fp := strconv.FormatUint(h.Sum64(), 16)
	e.fingerprints[key] = fp
	return fp
}

// renderCacheKey names one render in the cache. The epoch component retires
// every entry at once when out-of-graph inputs (site variables) change.
func renderCacheKey(key, fingerprint string, epoch uint64) string {
	return fmt.Sprintf("%s\x00%s\x00%d", key, fingerprint, epoch)
}
