package types

// Node is one element of a parsed template body. The concrete variants are
// TextNode and InvocationNode; the renderer walks the sequence with a type
// switch. Invocation targets are not resolved at parse time, since components
// may be registered after the units that reference them.
type Node interface {
	node()
}

// TextNode is a literal markup span. Parameter, variable, and slot
// references of the form @{...} remain inline and are substituted at render
// time.
type TextNode struct {
	Text string
}

// InvocationNode expands a component at its position in the parent body.
type InvocationNode struct {
	// Target is the component identifier being invoked ("ui/button")
	Target string
	// Attributes are the string-valued render parameters from the opening tag
	Attributes map[string]string
	// Slots routes child content to the target's named slot points
	Slots map[string][]Node
	// DefaultSlot is all child content not claimed by a named slot
	DefaultSlot []Node
	// Line and Column locate the opening tag in the unit source (1-based)
	Line   int
	Column int
}

func (TextNode) node()        {}
func (*InvocationNode) node() {}

// TargetsOf collects the distinct invocation targets in a node sequence,
// descending into slot content, in first-appearance order.
func TargetsOf(nodes []Node) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(ns []Node)
	walk = func(ns []Node) {
		for _, n := range ns {
			inv, ok := n.(*InvocationNode)
			if !ok {
				continue
			}
			if _, dup := seen[inv.Target]; !dup {
				seen[inv.Target] = struct{}{}
				out = append(out, inv.Target)
			}
			walk(inv.DefaultSlot)
			for _, slot := range inv.Slots {
				walk(slot)
			}
		}
	}
	walk(nodes)
	return out
}
