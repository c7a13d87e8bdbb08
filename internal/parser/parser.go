// Package parser turns raw unit markup into a node sequence: literal text
// spans and component invocations. Invocation targets are collected for
// dependency tracking but never resolved here; resolution happens against
// the registry at render time.
//
// Invocation syntax:
//
//	<c-ui.button label="Save">children</c-ui.button>
//	<c-hero />
//	<c-card>
//	  <c-slot name="header">routed to the card's header slot</c-slot>
//	  everything else forms the default slot
//	</c-card>
//
// The tag name maps to a component identifier with "." as the namespace
// separator: <c-ui.button> targets "ui/button". Matching is case-sensitive.
// HTML comments pass through verbatim; invocations inside them are not
// expanded.
package parser

import (
	"sort"
	"strings"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// slotTag is the reserved tag name for routing child content to named slots.
const slotTag = "slot"

// Template is the parse product for one renderable unit.
type Template struct {
	// Nodes is the parsed body in source order
	Nodes []types.Node
	// Targets lists distinct invocation targets in first-appearance order
	Targets []string
	// Params lists parameter names referenced by the unit's own text spans
	Params []string
	// Defaults holds parameter defaults declared with @{default("name", "value")}
	Defaults map[string]string
}

type parser struct {
	unitID     string
	src        string
	pos        int
	lineStarts []int

	defaults  map[string]string
	params    []string
	paramSeen map[string]struct{}
}

// Parse parses one unit's markup. A returned error is attributed to this
// unit alone; callers keep building every other unit.
func Parse(unitID, source string) (*Template, error) {
	p := &parser{
		unitID:    unitID,
		src:       source,
		defaults:  make(map[string]string),
		paramSeen: make(map[string]struct{}),
	}
	p.indexLines()

	nodes, _, err := p.parseBody("", false)
	if err != nil {
		return nil, err
	}

	return &Template{
		Nodes:    nodes,
		Targets:  types.TargetsOf(nodes),
		Params:   p.params,
		Defaults: p.defaults,
	}, nil
}

func (p *parser) indexLines() {
	p.lineStarts = append(p.lineStarts, 0)
	for i := 0; i < len(p.src); i++ {
		if p.src[i] == '\n' {
			p.lineStarts = append(p.lineStarts, i+1)
		}
	}
}

// lineCol converts a byte offset to a 1-based line and column.
func (p *parser) lineCol(pos int) (int, int) {
	idx := sort.Search(len(p.lineStarts), func(i int) bool {
		return p.lineStarts[i] > pos
	}) - 1
	return idx + 1, pos - p.lineStarts[idx] + 1
}

func (p *parser) errorAt(pos int, msg string) error {
	line, col := p.lineCol(pos)
	return errors.NewParseError(p.unitID, msg).WithLocation("", line, col)
}

// parseBody consumes nodes until the matching close tag of closeName, or end
// of input when closeName is empty. With allowSlots set, direct <c-slot>
// children are routed into the returned slot map instead of the node list.
func (p *parser) parseBody(closeName string, allowSlots bool) ([]types.Node, map[string][]types.Node, error) {
	var nodes []types.Node
	var slots map[string][]types.Node
	textStart := p.pos

	flushText := func(end int) {
		if end > textStart {
			if n := p.emitText(p.src[textStart:end]); n != nil {
				nodes = append(nodes, n)
			}
		}
	}

	for p.pos < len(p.src) {
		lt := strings.IndexByte(p.src[p.pos:], '<')
		if lt < 0 {
			p.pos = len(p.src)
			break
		}
		at := p.pos + lt

		switch {
		case strings.HasPrefix(p.src[at:], "<!--"):
			// Comments pass through untouched, so authors can comment out
			// invocations without them being expanded.
			end := strings.Index(p.src[at:], "-->")
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos = at + end + len("-->")
			}

		case strings.HasPrefix(p.src[at:], "</c-"):
			name, after, err := p.scanCloseTag(at)
			if err != nil {
				return nil, nil, err
			}
			if closeName == "" {
				return nil, nil, p.errorAt(at, "closing tag </c-"+name+"> without a matching open tag")
			}
			if name != closeName {
				return nil, nil, p.errorAt(at, "expected </c-"+closeName+">, found </c-"+name+">")
			}
			flushText(at)
			p.pos = after
			return nodes, slots, nil

		case strings.HasPrefix(p.src[at:], "<c-"):
			flushText(at)
			name, attrs, selfClosing, err := p.scanOpenTag(at)
			if err != nil {
				return nil, nil, err
			}

			if name == slotTag {
				if !allowSlots {
					return nil, nil, p.errorAt(at, "slot section outside a component invocation")
				}
				slotName := attrs["name"]
				if slotName == "" {
					return nil, nil, p.errorAt(at, "slot section requires a name attribute")
				}
				var content []types.Node
				if !selfClosing {
					var err error
					content, _, err = p.parseBody(slotTag, false)
					if err != nil {
						return nil, nil, err
					}
				}
				if slots == nil {
					slots = make(map[string][]types.Node)
				}
				slots[slotName] = append(slots[slotName], content...)
				textStart = p.pos
				continue
			}

			line, col := p.lineCol(at)
			inv := &types.InvocationNode{
				Target:     strings.ReplaceAll(name, ".", "/"),
				Attributes: attrs,
				Line:       line,
				Column:     col,
			}
			if !selfClosing {
				children, childSlots, err := p.parseBody(name, true)
				if err != nil {
					return nil, nil, err
				}
				inv.DefaultSlot = children
				inv.Slots = childSlots
			}
			nodes = append(nodes, inv)
			textStart = p.pos

		default:
			p.pos = at + 1
		}
	}

	if closeName != "" {
		return nil, nil, errors.NewUnterminatedTagError(p.unitID, closeName)
	}
	flushText(len(p.src))
	return nodes, slots, nil
}

// scanOpenTag parses "<c-name attr=... >" starting at pos. Returns the tag
// name, its attributes, whether the tag was self-closing, and leaves p.pos
// just past the closing '>'.
func (p *parser) scanOpenTag(at int) (string, map[string]string, bool, error) {
	i := at + len("<c-")
	nameStart := i
	for i < len(p.src) && isNameChar(p.src[i]) {
		i++
	}
	name := p.src[nameStart:i]
	if name == "" {
		return "", nil, false, p.errorAt(at, "component tag is missing a name")
	}

	attrs := make(map[string]string)
	for {
		for i < len(p.src) && isSpace(p.src[i]) {
			i++
		}
		if i >= len(p.src) {
			return "", nil, false, errors.NewUnterminatedTagError(p.unitID, name)
		}

		switch p.src[i] {
		case '>':
			p.pos = i + 1
			return name, attrs, false, nil
		case '/':
			if i+1 < len(p.src) && p.src[i+1] == '>' {
				p.pos = i + 2
				return name, attrs, true, nil
			}
			return "", nil, false, p.errorAt(i, "malformed invocation of "+name+": stray '/'")
		}

		attrStart := i
		for i < len(p.src) && isAttrNameChar(p.src[i]) {
			i++
		}
		attrName := p.src[attrStart:i]
		if attrName == "" {
			return "", nil, false, p.errorAt(i, "malformed attribute in invocation of "+name)
		}

		for i < len(p.src) && isSpace(p.src[i]) {
			i++
		}
		if i < len(p.src) && p.src[i] == '=' {
			i++
			for i < len(p.src) && isSpace(p.src[i]) {
				i++
			}
			if i >= len(p.src) || (p.src[i] != '"' && p.src[i] != '\'') {
				return "", nil, false, p.errorAt(i, "attribute "+attrName+" requires a quoted value")
			}
			quote := p.src[i]
			i++
			valStart := i
			for i < len(p.src) && p.src[i] != quote {
				i++
			}
			if i >= len(p.src) {
				return "", nil, false, p.errorAt(valStart, "unterminated value for attribute "+attrName)
			}
			attrs[attrName] = p.src[valStart:i]
			i++
		} else {
			// Bare attribute: present with an explicit empty value.
			attrs[attrName] = ""
		}
	}
}

// scanCloseTag parses "</c-name>" starting at pos and returns the name and
// the offset just past '>'.
func (p *parser) scanCloseTag(at int) (string, int, error) {
	i := at + len("</c-")
	nameStart := i
	for i < len(p.src) && isNameChar(p.src[i]) {
		i++
	}
	name := p.src[nameStart:i]
	if name == "" {
		return "", 0, p.errorAt(at, "closing tag is missing a name")
	}
	for i < len(p.src) && isSpace(p.src[i]) {
		i++
	}
	if i >= len(p.src) || p.src[i] != '>' {
		return "", 0, p.errorAt(at, "malformed closing tag </c-"+name+">")
	}
	return name, i + 1, nil
}

// emitText builds a text node from a raw span, recording referenced
// parameters and stripping @{default(...)} declarations, which render to
// nothing. Returns nil when stripping leaves the span empty.
func (p *parser) emitText(raw string) types.Node {
	exprs := Expressions(raw)

	var b strings.Builder
	last := 0
	for _, e := range exprs {
		switch e.Kind {
		case ExprDefault:
			if _, dup := p.defaults[e.Name]; !dup {
				p.defaults[e.Name] = e.Value
			}
			b.WriteString(raw[last:e.Start])
			last = e.End
		case ExprParam:
			if _, seen := p.paramSeen[e.Name]; !seen {
				p.paramSeen[e.Name] = struct{}{}
				p.params = append(p.params, e.Name)
			}
		}
	}

	text := raw
	if last > 0 {
		b.WriteString(raw[last:])
		text = b.String()
	}
	if text == "" {
		return nil
	}
	return types.TextNode{Text: text}
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '-' || c == '.'
}

func isAttrNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '_' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
