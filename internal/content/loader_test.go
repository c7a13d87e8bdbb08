package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

func TestLoadComponent(t *testing.T) {
	loader := NewLoader()

	unit, err := loader.LoadUnit(types.SourceChange{
		Path:   "ui/button.html",
		Kind:   types.KindComponent,
		Change: types.ChangeAdded,
		Text:   `@{default("label", "Go")}<button class="btn"><c-ui.icon/>@{label}</button>`,
	})
	require.NoError(t, err)

	assert.Equal(t, "ui/button", unit.ID)
	assert.Equal(t, types.KindComponent, unit.Kind)
	assert.Equal(t, []string{"ui/icon"}, unit.Targets)
	assert.Equal(t, map[string]string{"label": "Go"}, unit.Defaults)
	assert.NotEmpty(t, unit.Hash)
}

func TestLoadComponentParseError(t *testing.T) {
	loader := NewLoader()

	_, err := loader.LoadUnit(types.SourceChange{
		Path: "broken.html",
		Kind: types.KindComponent,
		Text: `<c-card>never closed`,
	})
	require.Error(t, err)
	assert.True(t, errors.IsParseError(err))
}

func TestLoadPageHTML(t *testing.T) {
	loader := NewLoader()

	source := "---\ntitle: About Us\nlayout: layouts/base\n---\n<p>Who we are.</p><c-team/>"
	unit, err := loader.LoadUnit(types.SourceChange{
		Path:   "about.html",
		Kind:   types.KindContent,
		Change: types.ChangeAdded,
		Text:   source,
	})
	require.NoError(t, err)

	assert.Equal(t, "about", unit.ID)
	assert.Equal(t, types.KindContent, unit.Kind)
	assert.Equal(t, "About Us", unit.Metadata["title"])
	assert.Equal(t, "about-us", unit.Metadata["slug"])
	assert.Equal(t, []string{"layouts/base", "team"}, unit.Targets)
	assert.Equal(t, HashText(source), unit.Hash)

	// The page body becomes the default slot of a synthetic layout
	// invocation carrying the frontmatter as attributes.
	require.Len(t, unit.Nodes, 1)
	wrapper, ok := unit.Nodes[0].(*types.InvocationNode)
	require.True(t, ok)
	assert.Equal(t, "layouts/base", wrapper.Target)
	assert.Equal(t, "About Us", wrapper.Attributes["title"])
	assert.NotContains(t, wrapper.Attributes, "layout")
	assert.NotEmpty(t, wrapper.DefaultSlot)
}

func TestLoadPageWithoutLayout(t *testing.T) {
	loader := NewLoader()

	unit, err := loader.LoadUnit(types.SourceChange{
		Path: "plain.html",
		Kind: types.KindContent,
		Text: "<p>standalone page</p>",
	})
	require.NoError(t, err)

	assert.Empty(t, unit.Targets)
	require.Len(t, unit.Nodes, 1)
	_, isText := unit.Nodes[0].(types.TextNode)
	assert.True(t, isText)
}

func TestLoadPageMarkdown(t *testing.T) {
	loader := NewLoader()

	source := "---\ntitle: First Post\nlayout: layouts/blog\ntags:\n  - go\n  - web\n---\n\n# Introduction\n\n<c-card title=\"Hi\">Body text</c-card>\n\nSome *markdown* here.\n"
	unit, err := loader.LoadUnit(types.SourceChange{
		Path:   "blog/first-post.md",
		Kind:   types.KindContent,
		Change: types.ChangeAdded,
		Text:   source,
	})
	require.NoError(t, err)

	assert.Equal(t, "blog/first-post", unit.ID)
	assert.Equal(t, "First Post", unit.Metadata["title"])
	assert.Equal(t, "go, web", unit.Metadata["tags"])
	assert.Equal(t, []string{"layouts/blog", "card"}, unit.Targets)

	wrapper, ok := unit.Nodes[0].(*types.InvocationNode)
	require.True(t, ok)
	assert.Equal(t, "layouts/blog", wrapper.Target)

	// Markdown converted, heading anchored, component tag preserved.
	body := flattenText(wrapper.DefaultSlot)
	assert.Contains(t, body, `<h1 id="introduction">Introduction</h1>`)
	assert.Contains(t, body, "<em>markdown</em>")
}

func TestLoadPageMarkdownComponentSurvivesConversion(t *testing.T) {
	loader := NewLoader()

	unit, err := loader.LoadUnit(types.SourceChange{
		Path: "guide.md",
		Kind: types.KindContent,
		Text: "intro\n\n<c-callout level=\"warn\">Careful now.</c-callout>\n",
	})
	require.NoError(t, err)

	require.Contains(t, unit.Targets, "callout")
	var inv *types.InvocationNode
	for _, node := range unit.Nodes {
		if n, ok := node.(*types.InvocationNode); ok && n.Target == "callout" {
			inv = n
		}
	}
	require.NotNil(t, inv)
	assert.Equal(t, "warn", inv.Attributes["level"])
}

func TestLoadPageExternalMetadataOverrides(t *testing.T) {
	loader := NewLoader()

	unit, err := loader.LoadUnit(types.SourceChange{
		Path:     "post.md",
		Kind:     types.KindContent,
		Text:     "---\ntitle: Draft\n---\ncontent",
		Metadata: map[string]string{"title": "Final"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Final", unit.Metadata["title"])
}

func TestRoute(t *testing.T) {
	assert.Equal(t, "blog/post.html", Route("blog/post"))
	assert.Equal(t, "index.html", Route("index"))
	assert.Equal(t, "/", RouteURL("index"))
	assert.Equal(t, "/blog/post.html", RouteURL("blog/post"))
}

func TestHashText(t *testing.T) {
	assert.Equal(t, HashText("abc"), HashText("abc"))
	assert.NotEqual(t, HashText("abc"), HashText("abd"))
	assert.NotEmpty(t, HashText(""))
}

// flattenText joins the literal text of a node sequence, recursing through
// invocations, for coarse content assertions.
func flattenText(nodes []types.Node) string {
	var out string
	for _, node := range nodes {
		switch n := node.(type) {
		case types.TextNode:
			out += n.Text
		case *types.InvocationNode:
			out += flattenText(n.DefaultSlot)
		}
	}
	return out
}
