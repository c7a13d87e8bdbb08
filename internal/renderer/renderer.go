// Package renderer expands a renderable unit's parsed tree into final HTML.
// Text spans pass through with parameter, variable, and slot substitution;
// invocation nodes resolve their target against a registry snapshot and
// recurse. Cycle detection is per render path: an explicit active-ancestors
// stack is carried through the expansion, and a target already on the stack
// renders as a visible marker instead of recursing. Two sibling invocations
// of the same component are not a cycle.
package renderer

import (
	"fmt"
	"html"
	"strings"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/parser"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// DefaultMaxDepth is the recursion-depth ceiling applied when Options leaves
// MaxDepth unset. The logical cycle check catches self-reference; the
// numeric ceiling is the backstop for very deep acyclic nesting.
const DefaultMaxDepth = 256

// Resolver supplies component units at render time. registry.Snapshot
// satisfies it; tests use fakes.
type Resolver interface {
	Lookup(id string) (*types.RenderableUnit, bool)
	AllIDs() []string
}

// VarLookup resolves a site variable in the context of the page being
// rendered. Returning false leaves the literal @{var(...)} text in place.
type VarLookup func(pageID, key string) (string, bool)

// Options configures a Renderer.
type Options struct {
	// MaxDepth is the recursion-depth ceiling (default DefaultMaxDepth)
	MaxDepth int
	// Vars resolves @{var("key")} references; nil leaves them unresolved
	Vars VarLookup
	// Collector receives render diagnostics as they occur; may be nil
	Collector *errors.Collector
}

// Renderer expands units against one resolver snapshot. A renderer is cheap
// to construct; the engine builds a fresh one per build generation.
type Renderer struct {
	resolver Resolver
	opts     Options
}

// Result is the outcome of rendering one unit.
type Result struct {
	// UnitID is the entry unit that was rendered
	UnitID string
	// HTML is the fully expanded output
	HTML string
	// Degraded reports that the output required a cycle or unresolved-target
	// fallback marker somewhere in the tree
	Degraded bool
	// Diagnostics lists every non-fatal issue hit during this render
	Diagnostics []errors.Diagnostic
}

// New creates a renderer over a resolver snapshot.
func New(resolver Resolver, opts Options) *Renderer {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Renderer{resolver: resolver, opts: opts}
}

// scope is the binding environment of one unit expansion frame.
type scope struct {
	unit        *types.RenderableUnit
	params      map[string]string
	defaultSlot string
	namedSlots  map[string]string
}

// renderState carries the mutable walk state of one Render call.
type renderState struct {
	r           *Renderer
	entryID     string
	degraded    bool
	diagnostics []errors.Diagnostic
	ancestors   []string
	ancestorSet map[string]struct{}
}

// Render expands one unit. Caller-supplied params are merged over the unit's
// own declared defaults; slot node sequences (keyed by slot name, "" for the
// default slot) are pre-rendered in the entry unit's scope before
// substitution at the unit's yield points. The only error is exceeding the
// recursion-depth ceiling, which fails this unit alone; unresolved targets
// and cycles degrade the output with visible markers instead of failing.
func (r *Renderer) Render(unit *types.RenderableUnit, params map[string]string, slots map[string][]types.Node) (*Result, error) {
	st := &renderState{
		r:           r,
		entryID:     unit.ID,
		ancestorSet: make(map[string]struct{}),
	}
	// Invocation targets are always component ids, so only a component entry
	// seeds the ancestor path. A content page sharing a component's identifier
	// is a distinct unit and may invoke it.
	if unit.Kind == types.KindComponent {
		st.ancestors = []string{unit.ID}
		st.ancestorSet[unit.ID] = struct{}{}
	}

	sc := &scope{
		unit:   unit,
		params: mergeParams(unit.Defaults, params),
	}

	// Pre-render caller-supplied slot content in the entry scope.
	if len(slots) > 0 {
		sc.namedSlots = make(map[string]string, len(slots))
		for name, nodes := range slots {
			rendered, err := st.renderNodes(sc, nodes, 0)
			if err != nil {
				return nil, err
			}
			if name == "" {
				sc.defaultSlot = rendered
			} else {
				sc.namedSlots[name] = rendered
			}
		}
	}

	out, err := st.renderNodes(sc, unit.Nodes, 0)
	if err != nil {
		return nil, err
	}

	return &Result{
		UnitID:      unit.ID,
		HTML:        out,
		Degraded:    st.degraded,
		Diagnostics: st.diagnostics,
	}, nil
}

// RenderID looks the unit up in the resolver and renders it with its own
// defaults, no caller params and no slots. Used for component previews.
func (r *Renderer) RenderID(id string) (*Result, error) {
	unit, ok := r.resolver.Lookup(id)
	if !ok {
		return nil, errors.NewInternalError(fmt.Sprintf("unit %q is not registered", id), nil)
	}
	return r.Render(unit, nil, nil)
}

func (st *renderState) renderNodes(sc *scope, nodes []types.Node, depth int) (string, error) {
	var b strings.Builder
	for _, node := range nodes {
		switch n := node.(type) {
		case types.TextNode:
			b.WriteString(st.substitute(sc, n.Text))
		case *types.InvocationNode:
			out, err := st.renderInvocation(sc, n, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
		}
	}
	return b.String(), nil
}

func (st *renderState) renderInvocation(sc *scope, inv *types.InvocationNode, depth int) (string, error) {
	target := inv.Target

	// Logical cycle check first: a target already on the active expansion
	// path renders as a marker, never recurses. This holds for any depth
	// ceiling setting.
	if _, onPath := st.ancestorSet[target]; onPath {
		st.degraded = true
		st.addDiagnostic(errors.Diagnostic{
			Kind:     errors.DiagCycleDetected,
			Severity: errors.SeverityWarning,
			UnitID:   sc.unit.ID,
			Line:     inv.Line,
			Column:   inv.Column,
			Message:  fmt.Sprintf("invocation of %q cycles through its own expansion path (%s)", target, strings.Join(st.ancestors, " > ")),
		})
		return cycleMarker(target), nil
	}

	if depth > st.r.opts.MaxDepth {
		return "", errors.NewRenderLimitError(st.entryID, st.r.opts.MaxDepth)
	}

	unit, ok := st.r.resolver.Lookup(target)
	if !ok {
		st.degraded = true
		msg := fmt.Sprintf("unknown component %q", target)
		if suggestion := errors.SuggestComponent(target, st.r.resolver.AllIDs()); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}
		st.addDiagnostic(errors.Diagnostic{
			Kind:     errors.DiagUnresolvedComponent,
			Severity: errors.SeverityWarning,
			UnitID:   sc.unit.ID,
			Line:     inv.Line,
			Column:   inv.Column,
			Message:  msg,
		})
		return unknownMarker(target), nil
	}

	// Attribute values and slot content are evaluated in the invoking
	// unit's own scope before anything is passed down (lexical scoping).
	callee := &scope{
		unit:       unit,
		params:     make(map[string]string, len(unit.Defaults)+len(inv.Attributes)),
		namedSlots: make(map[string]string, len(inv.Slots)),
	}
	for name, value := range unit.Defaults {
		callee.params[name] = value
	}
	// An attribute present with an empty value is an explicit override of
	// the declared default.
	for name, value := range inv.Attributes {
		callee.params[name] = st.substitute(sc, value)
	}

	var err error
	callee.defaultSlot, err = st.renderNodes(sc, inv.DefaultSlot, depth)
	if err != nil {
		return "", err
	}
	for name, nodes := range inv.Slots {
		callee.namedSlots[name], err = st.renderNodes(sc, nodes, depth)
		if err != nil {
			return "", err
		}
	}

	st.push(target)
	out, err := st.renderNodes(callee, unit.Nodes, depth)
	st.pop(target)
	if err != nil {
		return "", err
	}
	return out, nil
}

// substitute resolves the @{...} references of one text span against a
// scope. Unrecognized references were already filtered by the parser;
// unresolved variables keep their literal text.
func (st *renderState) substitute(sc *scope, text string) string {
	exprs := parser.Expressions(text)
	if len(exprs) == 0 {
		return text
	}

	var b strings.Builder
	last := 0
	for _, e := range exprs {
		b.WriteString(text[last:e.Start])
		last = e.End

		switch e.Kind {
		case parser.ExprParam:
			value, ok := sc.params[e.Name]
			if !ok {
				st.addDiagnostic(errors.Diagnostic{
					Kind:     errors.DiagUndefinedParameter,
					Severity: errors.SeverityWarning,
					UnitID:   sc.unit.ID,
					Message:  fmt.Sprintf("parameter %q is not defined; substituting empty string", e.Name),
				})
			}
			b.WriteString(value)

		case parser.ExprYield:
			b.WriteString(sc.defaultSlot)

		case parser.ExprNamedYield:
			b.WriteString(sc.namedSlots[e.Name])

		case parser.ExprVar:
			if st.r.opts.Vars != nil {
				if value, ok := st.r.opts.Vars(st.entryID, e.Name); ok {
					b.WriteString(value)
					continue
				}
			}
			st.addDiagnostic(errors.Diagnostic{
				Kind:     errors.DiagUnknownVariable,
				Severity: errors.SeverityWarning,
				UnitID:   sc.unit.ID,
				Message:  fmt.Sprintf("site variable %q is not defined; leaving literal text", e.Name),
			})
			b.WriteString(text[e.Start:e.End])

		case parser.ExprDefault:
			// Declarations render to nothing. The parser strips them from
			// unit bodies; this arm only sees them in caller-supplied text.
		}
	}
	b.WriteString(text[last:])
	return b.String()
}

func (st *renderState) push(id string) {
	st.ancestors = append(st.ancestors, id)
	st.ancestorSet[id] = struct{}{}
}

func (st *renderState) pop(id string) {
	st.ancestors = st.ancestors[:len(st.ancestors)-1]
	delete(st.ancestorSet, id)
}

func (st *renderState) addDiagnostic(d errors.Diagnostic) {
	st.diagnostics = append(st.diagnostics, d)
	if st.r.opts.Collector != nil {
		st.r.opts.Collector.Add(d)
	}
}

func mergeParams(defaults, params map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(params))
	for name, value := range defaults {
		merged[name] = value
	}
	for name, value := range params {
		merged[name] = value
	}
	return merged
}

// cycleMarker is the sentinel emitted in place of a cyclic invocation.
func cycleMarker(target string) string {
	escaped := html.EscapeString(target)
	return fmt.Sprintf(`<span class="eldroid-cycle" data-component="%s">component cycle: %s</span>`, escaped, escaped)
}

// unknownMarker is the sentinel emitted for an unresolved invocation target.
func unknownMarker(target string) string {
	escaped := html.EscapeString(target)
	return fmt.Sprintf(`<span class="eldroid-unknown-component" data-component="%s">unknown component: %s</span>`, escaped, escaped)
}
