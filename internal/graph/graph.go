// Package graph tracks which renderable units invoke which components. It
// holds identifiers only, never unit data: the registry and content store own
// the units. Out-edges are replaced atomically per unit as parses land, the
// transposed in-edges are maintained alongside for invalidation walks, and
// edges to targets that are not registered yet are kept dangling so a later
// registration folds the waiting units into the next affected set.
package graph

import (
	"sort"
	"sync"
)

// DependencyGraph is an adjacency map over unit identifiers. Safe for
// concurrent use.
type DependencyGraph struct {
	mutex sync.RWMutex
	out   map[string]map[string]struct{}
	in    map[string]map[string]struct{}
}

// NewDependencyGraph creates an empty dependency graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		out: make(map[string]map[string]struct{}),
		in:  make(map[string]map[string]struct{}),
	}
}

// UpdateEdges replaces all out-edges of unitID in one atomic step and fixes
// the transposed in-edge sets accordingly. Targets do not need to exist as
// units; unresolved targets stay as dangling edges.
func (g *DependencyGraph) UpdateEdges(unitID string, targets []string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for old := range g.out[unitID] {
		delete(g.in[old], unitID)
		if len(g.in[old]) == 0 {
			delete(g.in, old)
		}
	}

	edges := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		edges[target] = struct{}{}
		if g.in[target] == nil {
			g.in[target] = make(map[string]struct{})
		}
		g.in[target][unitID] = struct{}{}
	}
	g.out[unitID] = edges
}

// Remove drops a unit's out-edges and forgets the unit. In-edges pointing at
// the removed id are kept: units that still invoke it now hold a dangling
// edge and will resolve again if the id comes back.
func (g *DependencyGraph) Remove(unitID string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for target := range g.out[unitID] {
		delete(g.in[target], unitID)
		if len(g.in[target]) == 0 {
			delete(g.in, target)
		}
	}
	delete(g.out, unitID)
}

// DependenciesOf returns the direct out-edge targets of a unit, sorted.
func (g *DependencyGraph) DependenciesOf(unitID string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedKeys(g.out[unitID])
}

// Dependents returns the units that directly invoke id, sorted. The id does
// not need to be a registered unit: for an id that was just registered, the
// result is exactly the set of units whose edge to it was dangling.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedKeys(g.in[id])
}

// AffectedBy returns the closure of the changed ids under the in-edge
// relation: every unit that depends, directly or transitively, on something
// that changed, plus the changed ids themselves. This is the minimal
// invalidation set. The result is sorted.
func (g *DependencyGraph) AffectedBy(changed []string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	affected := make(map[string]struct{}, len(changed))
	queue := make([]string, 0, len(changed))
	for _, id := range changed {
		if _, seen := affected[id]; !seen {
			affected[id] = struct{}{}
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for dependent := range g.in[id] {
			if _, seen := affected[dependent]; !seen {
				affected[dependent] = struct{}{}
				queue = append(queue, dependent)
			}
		}
	}

	return sortedKeys(affected)
}

// Nodes returns every unit id with recorded out-edges, sorted.
func (g *DependencyGraph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return sortedKeys(g.out)
}

// TopoOrder orders ids so that invocation targets come before their
// invokers: rendering in this order refreshes leaves first. Ids outside the
// given set are ignored. Cycles cannot be ordered; when no dependency-free
// unit remains, the lexicographically smallest remaining id is emitted next
// so the order stays deterministic and total.
func (g *DependencyGraph) TopoOrder(ids []string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	// Degree counts only edges inside the set.
	degree := make(map[string]int, len(ids))
	for _, id := range ids {
		n := 0
		for target := range g.out[id] {
			if inSet[target] && target != id {
				n++
			}
		}
		degree[id] = n
	}

	var ready []string
	for _, id := range ids {
		if degree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(ids))
	emitted := make(map[string]bool, len(ids))

	emit := func(id string) {
		order = append(order, id)
		emitted[id] = true
		released := []string(nil)
		for dependent := range g.in[id] {
			if !inSet[dependent] || emitted[dependent] {
				continue
			}
			degree[dependent]--
			if degree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Strings(released)
		ready = append(ready, released...)
	}

	for len(order) < len(ids) {
		if len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			if emitted[id] {
				continue
			}
			emit(id)
			continue
		}

		// Only cycle members remain.
		var remaining []string
		for _, id := range ids {
			if !emitted[id] {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		emit(remaining[0])
	}

	return order
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
