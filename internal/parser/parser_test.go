package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

func TestParsePlainText(t *testing.T) {
	tmpl, err := Parse("page", "<html><body>hello</body></html>")
	require.NoError(t, err)

	require.Len(t, tmpl.Nodes, 1)
	text, ok := tmpl.Nodes[0].(types.TextNode)
	require.True(t, ok)
	assert.Equal(t, "<html><body>hello</body></html>", text.Text)
	assert.Empty(t, tmpl.Targets)
}

func TestParseSelfClosingInvocation(t *testing.T) {
	tmpl, err := Parse("page", "before <c-hero/> after")
	require.NoError(t, err)

	require.Len(t, tmpl.Nodes, 3)
	inv, ok := tmpl.Nodes[1].(*types.InvocationNode)
	require.True(t, ok)
	assert.Equal(t, "hero", inv.Target)
	assert.Empty(t, inv.DefaultSlot)
	assert.Equal(t, []string{"hero"}, tmpl.Targets)
}

func TestParseDottedNameMapsToNestedID(t *testing.T) {
	tmpl, err := Parse("page", `<c-ui.button label="Save"/>`)
	require.NoError(t, err)

	inv := tmpl.Nodes[0].(*types.InvocationNode)
	assert.Equal(t, "ui/button", inv.Target)
	assert.Equal(t, "Save", inv.Attributes["label"])
}

func TestParsePreservesCase(t *testing.T) {
	tmpl, err := Parse("page", `<c-Widget/>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget"}, tmpl.Targets)
}

func TestParseAttributes(t *testing.T) {
	tmpl, err := Parse("page", `<c-card title="Hello" subtitle='World' compact extra = "x"/>`)
	require.NoError(t, err)

	inv := tmpl.Nodes[0].(*types.InvocationNode)
	assert.Equal(t, map[string]string{
		"title":    "Hello",
		"subtitle": "World",
		"compact":  "",
		"extra":    "x",
	}, inv.Attributes)
}

func TestParseChildrenFormDefaultSlot(t *testing.T) {
	tmpl, err := Parse("page", `<c-card>Body text</c-card>`)
	require.NoError(t, err)

	inv := tmpl.Nodes[0].(*types.InvocationNode)
	require.Len(t, inv.DefaultSlot, 1)
	assert.Equal(t, "Body text", inv.DefaultSlot[0].(types.TextNode).Text)
	assert.Empty(t, inv.Slots)
}

func TestParseNamedSlotSections(t *testing.T) {
	src := `<c-card>
  <c-slot name="header">@{title}</c-slot>
  Body text
</c-card>`
	tmpl, err := Parse("page", src)
	require.NoError(t, err)

	inv := tmpl.Nodes[0].(*types.InvocationNode)
	require.Contains(t, inv.Slots, "header")
	require.Len(t, inv.Slots["header"], 1)
	assert.Equal(t, "@{title}", inv.Slots["header"][0].(types.TextNode).Text)

	var bodyText string
	for _, n := range inv.DefaultSlot {
		if tn, ok := n.(types.TextNode); ok {
			bodyText += tn.Text
		}
	}
	assert.Contains(t, bodyText, "Body text")
}

func TestParseNestedInvocations(t *testing.T) {
	src := `<c-layout><c-nav/><c-card><c-slot name="footer"><c-ui.icon/></c-slot></c-card></c-layout>`
	tmpl, err := Parse("page", src)
	require.NoError(t, err)

	assert.Equal(t, []string{"layout", "nav", "card", "ui/icon"}, tmpl.Targets)
}

func TestParseRepeatedTargetListedOnce(t *testing.T) {
	tmpl, err := Parse("page", `<c-footer/><c-footer/>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"footer"}, tmpl.Targets)
}

func TestParseCollectsParamsAndDefaults(t *testing.T) {
	src := `@{default("title", "Untitled")}<h1>@{title}</h1><p>@{author}, @{title}</p>@{yield}`
	tmpl, err := Parse("card", src)
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "author"}, tmpl.Params)
	assert.Equal(t, map[string]string{"title": "Untitled"}, tmpl.Defaults)

	// The declaration renders to nothing.
	text := tmpl.Nodes[0].(types.TextNode)
	assert.NotContains(t, text.Text, "default(")
	assert.Contains(t, text.Text, "@{title}")
	assert.Contains(t, text.Text, "@{yield}")
}

func TestParseFirstDefaultWins(t *testing.T) {
	tmpl, err := Parse("card", `@{default("x", "one")}@{default("x", "two")}`)
	require.NoError(t, err)
	assert.Equal(t, "one", tmpl.Defaults["x"])
}

func TestParseCommentsAreOpaque(t *testing.T) {
	tmpl, err := Parse("page", `<!-- <c-old-hero> not closed --> <c-hero/>`)
	require.NoError(t, err)

	assert.Equal(t, []string{"hero"}, tmpl.Targets)
	text := tmpl.Nodes[0].(types.TextNode)
	assert.Contains(t, text.Text, "<c-old-hero>")
}

func TestParseInvocationPosition(t *testing.T) {
	src := "line one\nline two <c-hero/>"
	tmpl, err := Parse("page", src)
	require.NoError(t, err)

	inv := tmpl.Nodes[1].(*types.InvocationNode)
	assert.Equal(t, 2, inv.Line)
	assert.Equal(t, 10, inv.Column)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{"unterminated open tag", `<c-card title="x"`},
		{"unterminated body", `<c-card>never closed`},
		{"mismatched close", `<c-card>text</c-footer>`},
		{"close without open", `text</c-card>`},
		{"missing name", `<c->oops</c->`},
		{"unterminated attribute", `<c-card title="oops/>`},
		{"unquoted attribute value", `<c-card title=oops/>`},
		{"slot outside invocation", `<c-slot name="x">content</c-slot>`},
		{"slot without name", `<c-card><c-slot>content</c-slot></c-card>`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("bad/unit", tc.src)
			require.Error(t, err)
			assert.True(t, errors.IsParseError(err), "expected parse error, got %v", err)

			var ee *errors.EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, "bad/unit", ee.UnitID)
		})
	}
}

func TestParseErrorDoesNotClaimOtherUnits(t *testing.T) {
	_, err := Parse("broken", `<c-card>`)
	require.Error(t, err)

	tmpl, err := Parse("fine", `<c-card>ok</c-card>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"card"}, tmpl.Targets)
}

func TestParseBareAmpersandAndLooseAngleBrackets(t *testing.T) {
	src := `if a < b && b > c then <c-math/>`
	tmpl, err := Parse("page", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, tmpl.Targets)
}

func TestParseMultipleSameNameSlotsConcatenate(t *testing.T) {
	src := `<c-card><c-slot name="header">one</c-slot><c-slot name="header">two</c-slot></c-card>`
	tmpl, err := Parse("page", src)
	require.NoError(t, err)

	inv := tmpl.Nodes[0].(*types.InvocationNode)
	require.Len(t, inv.Slots["header"], 2)
}
