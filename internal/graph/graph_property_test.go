//go:build property
// +build property

package graph

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// edgeSpec encodes a small random graph as (from, to) index pairs over a
// fixed node universe.
type edgeSpec struct {
	From int
	To   int
}

func nodeName(i int) string {
	return fmt.Sprintf("n%02d", i)
}

func buildGraph(edges []edgeSpec, nodes int) *DependencyGraph {
	g := NewDependencyGraph()
	out := make(map[string][]string)
	for _, e := range edges {
		from := nodeName(e.From % nodes)
		to := nodeName(e.To % nodes)
		out[from] = append(out[from], to)
	}
	for from, targets := range out {
		g.UpdateEdges(from, targets)
	}
	return g
}

// naiveAffected computes the invalidation closure by repeated scanning, the
// slow but obviously correct way.
func naiveAffected(edges []edgeSpec, nodes int, changed []string) []string {
	affected := make(map[string]bool)
	for _, id := range changed {
		affected[id] = true
	}
	for {
		grew := false
		for _, e := range edges {
			from := nodeName(e.From % nodes)
			to := nodeName(e.To % nodes)
			if affected[to] && !affected[from] {
				affected[from] = true
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	result := make([]string, 0, len(affected))
	for id := range affected {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

// TestGraphProperties tests invariant properties of the dependency graph
func TestGraphProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genEdges := gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 9),
		gen.IntRange(0, 9),
	).Map(func(values []interface{}) edgeSpec {
		return edgeSpec{From: values[0].(int), To: values[1].(int)}
	}))

	// Property 1: the closure matches a naive fixed-point computation
	properties.Property("affected set equals naive closure", prop.ForAll(
		func(edges []edgeSpec, changedIdx int) bool {
			const nodes = 10
			g := buildGraph(edges, nodes)
			changed := []string{nodeName(changedIdx % nodes)}

			got := g.AffectedBy(changed)
			want := naiveAffected(edges, nodes, changed)

			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		genEdges,
		gen.IntRange(0, 9),
	))

	// Property 2: the affected set always contains the changed ids
	properties.Property("affected contains changed", prop.ForAll(
		func(edges []edgeSpec, changedIdx int) bool {
			const nodes = 10
			g := buildGraph(edges, nodes)
			changed := nodeName(changedIdx % nodes)

			for _, id := range g.AffectedBy([]string{changed}) {
				if id == changed {
					return true
				}
			}
			return false
		},
		genEdges,
		gen.IntRange(0, 9),
	))

	// Property 3: topological order is a permutation of its input
	properties.Property("topo order is a permutation", prop.ForAll(
		func(edges []edgeSpec) bool {
			const nodes = 10
			g := buildGraph(edges, nodes)

			ids := make([]string, nodes)
			for i := range ids {
				ids[i] = nodeName(i)
			}

			order := g.TopoOrder(ids)
			if len(order) != len(ids) {
				return false
			}
			seen := make(map[string]bool, len(order))
			for _, id := range order {
				if seen[id] {
					return false
				}
				seen[id] = true
			}
			return true
		},
		genEdges,
	))

	properties.TestingRun(t)
}
