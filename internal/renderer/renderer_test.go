package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/parser"
	"github.com/EldroidTech/eldroid-ssg/internal/registry"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

func mustUnit(t *testing.T, id, source string) *types.RenderableUnit {
	t.Helper()
	tmpl, err := parser.Parse(id, source)
	require.NoError(t, err)
	return &types.RenderableUnit{
		ID:         id,
		Kind:       types.KindComponent,
		SourcePath: "components/" + id + ".html",
		Source:     source,
		Nodes:      tmpl.Nodes,
		Targets:    tmpl.Targets,
		Params:     tmpl.Params,
		Defaults:   tmpl.Defaults,
	}
}

func newResolver(t *testing.T, sources map[string]string) *registry.ComponentRegistry {
	t.Helper()
	reg := registry.NewComponentRegistry()
	for id, source := range sources {
		require.NoError(t, reg.Register(mustUnit(t, id, source)))
	}
	return reg
}

func TestRenderPlainText(t *testing.T) {
	reg := newResolver(t, nil)
	r := New(reg, Options{})

	unit := mustUnit(t, "page", "<h1>Hello</h1>\n<p>No components here.</p>")
	result, err := r.Render(unit, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<h1>Hello</h1>\n<p>No components here.</p>", result.HTML)
	assert.Equal(t, "page", result.UnitID)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.Diagnostics)
}

func TestRenderParameterSubstitution(t *testing.T) {
	reg := newResolver(t, nil)
	r := New(reg, Options{})
	unit := mustUnit(t, "page", `@{default("title", "Untitled")}<h1>@{title}</h1>`)

	tests := []struct {
		name     string
		params   map[string]string
		expected string
	}{
		{
			name:     "declared default applies",
			params:   nil,
			expected: "<h1>Untitled</h1>",
		},
		{
			name:     "caller value wins over default",
			params:   map[string]string{"title": "Release Notes"},
			expected: "<h1>Release Notes</h1>",
		},
		{
			name:     "empty caller value overrides default",
			params:   map[string]string{"title": ""},
			expected: "<h1></h1>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Render(unit, tt.params, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.HTML)
		})
	}
}

func TestRenderNestedComponents(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"ui/icon": `<svg class="icon @{name}"></svg>`,
		"card":    `@{default("title", "Untitled")}<div class="card"><h2>@{title}</h2><c-ui.icon name="star"/><div class="body">@{yield}</div></div>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<main><c-card title="Getting Started">Read this first.</c-card></main>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	expected := `<main><div class="card"><h2>Getting Started</h2><svg class="icon star"></svg><div class="body">Read this first.</div></div></main>`
	assert.Equal(t, expected, result.HTML)
	assert.False(t, result.Degraded)
}

func TestRenderIdempotent(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"footer": `<footer>@{var("site.name")}</footer>`,
		"card":   `@{default("title", "Untitled")}<div class="card"><h2>@{title}</h2>@{yield}</div>`,
	})
	vars := func(pageID, key string) (string, bool) {
		if key == "site.name" {
			return "Eldroid", true
		}
		return "", false
	}
	r := New(reg, Options{Vars: vars})

	page := mustUnit(t, "page", `<c-card title="@{heading}">Body</c-card><c-footer/>`)
	params := map[string]string{"heading": "Notes"}

	first, err := r.Render(page, params, nil)
	require.NoError(t, err)
	second, err := r.Render(page, params, nil)
	require.NoError(t, err)

	assert.Equal(t, first.HTML, second.HTML)
	assert.Equal(t, first.Degraded, second.Degraded)
	assert.Len(t, second.Diagnostics, len(first.Diagnostics))
}

func TestRenderSlotScoping(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"card": `@{default("title", "Untitled")}<div class="card"><h2>@{title}</h2><header>@{yield("header")}</header><div class="body">@{yield}</div></div>`,
	})
	r := New(reg, Options{})

	// The card receives title="Hi"; the slot content references @{title}
	// and must see the page's own binding, not the card's.
	page := mustUnit(t, "page", `@{default("title", "Outer")}<c-card title="Hi"><c-slot name="header"><em>@{title}</em></c-slot>Body text</c-card>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	expected := `<div class="card"><h2>Hi</h2><header><em>Outer</em></header><div class="body">Body text</div></div>`
	assert.Equal(t, expected, result.HTML)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.Diagnostics)
}

func TestRenderMissingSlotContent(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"panel": `<section><header>@{yield("header")}</header><div>@{yield}</div></section>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<c-panel/>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<section><header></header><div></div></section>", result.HTML)
	assert.Empty(t, result.Diagnostics)
}

func TestRenderRepeatedInvocationIsNotCycle(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"footer": `<footer>site footer</footer>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<c-footer/><hr/><c-footer/>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<footer>site footer</footer><hr/><footer>site footer</footer>`, result.HTML)
	assert.Equal(t, 2, strings.Count(result.HTML, "site footer"))
	assert.NotContains(t, result.HTML, "eldroid-cycle")
	assert.False(t, result.Degraded)
}

func TestRenderSiblingsShareComponent(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"icon":  `<svg/>`,
		"left":  `<nav><c-icon/></nav>`,
		"right": `<aside><c-icon/></aside>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<c-left/><c-right/>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<nav><svg/></nav><aside><svg/></aside>`, result.HTML)
	assert.False(t, result.Degraded)
}

func TestRenderSelfCycle(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"x": `<p>intro</p><c-x/>`,
	})

	// The logical cycle check fires before the depth check, so the marker
	// appears for any ceiling setting.
	for _, maxDepth := range []int{0, 1, 8} {
		r := New(reg, Options{MaxDepth: maxDepth})
		unit, ok := reg.Lookup("x")
		require.True(t, ok)

		result, err := r.Render(unit, nil, nil)
		require.NoError(t, err)

		expected := `<p>intro</p><span class="eldroid-cycle" data-component="x">component cycle: x</span>`
		assert.Equal(t, expected, result.HTML)
		assert.True(t, result.Degraded)
		require.Len(t, result.Diagnostics, 1)
		assert.Equal(t, errors.DiagCycleDetected, result.Diagnostics[0].Kind)
		assert.Equal(t, errors.SeverityWarning, result.Diagnostics[0].Severity)
	}
}

func TestRenderMutualCycle(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"a": `<div>A:<c-b/></div>`,
		"b": `<div>B:<c-a/></div>`,
	})
	r := New(reg, Options{})

	unit, ok := reg.Lookup("a")
	require.True(t, ok)
	result, err := r.Render(unit, nil, nil)
	require.NoError(t, err)

	expected := `<div>A:<div>B:<span class="eldroid-cycle" data-component="a">component cycle: a</span></div></div>`
	assert.Equal(t, expected, result.HTML)
	assert.True(t, result.Degraded)
	require.Len(t, result.Diagnostics, 1)
	assert.Contains(t, result.Diagnostics[0].Message, "a > b")
}

func TestRenderPageSharingComponentIdentifier(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"about": `<section>About the team</section>`,
	})
	r := New(reg, Options{})

	source := `<h1>About</h1><c-about/>`
	tmpl, err := parser.Parse("about", source)
	require.NoError(t, err)
	page := &types.RenderableUnit{
		ID:      "about",
		Kind:    types.KindContent,
		Source:  source,
		Nodes:   tmpl.Nodes,
		Targets: tmpl.Targets,
	}

	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<h1>About</h1><section>About the team</section>`, result.HTML)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.Diagnostics)
}

func TestRenderUnknownComponent(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"ui/button": `<button>@{label}</button>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<p>before</p><c-ui.Button label="Go"/><p>after</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	marker := `<span class="eldroid-unknown-component" data-component="ui/Button">unknown component: ui/Button</span>`
	assert.Equal(t, `<p>before</p>`+marker+`<p>after</p>`, result.HTML)
	assert.True(t, result.Degraded)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, errors.DiagUnresolvedComponent, result.Diagnostics[0].Kind)
	assert.Contains(t, result.Diagnostics[0].Message, `did you mean "ui/button"`)
}

func TestRenderDegradedPropagatesFromNestedUnits(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"section": `<section><c-widget/></section>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<c-section/>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Contains(t, result.HTML, "eldroid-unknown-component")
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "section", result.Diagnostics[0].UnitID)
}

func TestRenderUndefinedParameter(t *testing.T) {
	reg := newResolver(t, nil)
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<p>@{missing}</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<p></p>", result.HTML)
	assert.False(t, result.Degraded)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, errors.DiagUndefinedParameter, result.Diagnostics[0].Kind)
	assert.Contains(t, result.Diagnostics[0].Message, `"missing"`)
}

func TestRenderEmptyAttributeOverridesDefault(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"badge": `@{default("label", "New")}<span class="badge">@{label}</span>`,
	})
	r := New(reg, Options{})

	tests := []struct {
		name     string
		source   string
		expected string
	}{
		{
			name:     "absent attribute keeps default",
			source:   `<c-badge/>`,
			expected: `<span class="badge">New</span>`,
		},
		{
			name:     "empty attribute overrides default",
			source:   `<c-badge label=""/>`,
			expected: `<span class="badge"></span>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := mustUnit(t, "page", tt.source)
			result, err := r.Render(page, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.HTML)
		})
	}
}

func TestRenderAttributeEvaluatedInCallerScope(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"button": `<button>@{label}</button>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `@{default("cta", "Go")}<c-button label="@{cta}"/>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "<button>Go</button>", result.HTML)
	assert.Empty(t, result.Diagnostics)
}

func TestRenderDepthCeiling(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"c0": `<c-c1/>`,
		"c1": `<c-c2/>`,
		"c2": `<c-c3/>`,
		"c3": `<c-c4/>`,
		"c4": `end`,
	})

	unit, ok := reg.Lookup("c0")
	require.True(t, ok)

	result, err := New(reg, Options{MaxDepth: 3}).Render(unit, nil, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsRenderLimit(err))
	var ee *errors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "c0", ee.UnitID)

	result, err = New(reg, Options{MaxDepth: 4}).Render(unit, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "end", result.HTML)
}

func TestRenderVariableResolution(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"meta": `<title>@{var("site.title")}</title>`,
	})

	var seenPageID string
	vars := func(pageID, key string) (string, bool) {
		seenPageID = pageID
		if key == "site.title" {
			return "Eldroid Docs", true
		}
		return "", false
	}
	r := New(reg, Options{Vars: vars})

	// Variable lookups carry the entry unit's identity even when the
	// reference sits inside a nested component.
	page := mustUnit(t, "blog/post", `<c-meta/><p>@{var("nope")}</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<title>Eldroid Docs</title><p>@{var("nope")}</p>`, result.HTML)
	assert.Equal(t, "blog/post", seenPageID)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, errors.DiagUnknownVariable, result.Diagnostics[0].Kind)
}

func TestRenderVariableWithoutLookup(t *testing.T) {
	reg := newResolver(t, nil)
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<p>@{var("site.title")}</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<p>@{var("site.title")}</p>`, result.HTML)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, errors.DiagUnknownVariable, result.Diagnostics[0].Kind)
}

func TestRenderCallerSuppliedSlots(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"footer": `<footer>fin</footer>`,
	})
	r := New(reg, Options{})

	layout := mustUnit(t, "layouts/base", `<html><body><header>@{yield("top")}</header>@{yield}</body></html>`)
	slots := map[string][]types.Node{
		"":    {types.TextNode{Text: "Hello"}, &types.InvocationNode{Target: "footer"}},
		"top": {types.TextNode{Text: "Nav"}},
	}

	result, err := r.Render(layout, nil, slots)
	require.NoError(t, err)
	assert.Equal(t, `<html><body><header>Nav</header>Hello<footer>fin</footer></body></html>`, result.HTML)
}

func TestRenderCommentContentIsOpaque(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"footer": `<footer>fin</footer>`,
	})
	r := New(reg, Options{})

	page := mustUnit(t, "page", `<!-- <c-footer/> --><p>visible</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `<!-- <c-footer/> --><p>visible</p>`, result.HTML)
	assert.NotContains(t, result.HTML, "<footer>")
}

func TestRenderID(t *testing.T) {
	reg := newResolver(t, map[string]string{
		"hero": `@{default("title", "Welcome")}<h1>@{title}</h1>`,
	})
	r := New(reg, Options{})

	result, err := r.RenderID("hero")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Welcome</h1>", result.HTML)

	_, err = r.RenderID("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRenderForwardsDiagnosticsToCollector(t *testing.T) {
	reg := newResolver(t, nil)
	collector := errors.NewCollector()
	r := New(reg, Options{Collector: collector})

	page := mustUnit(t, "page", `<c-ghost/><p>@{missing}</p>`)
	result, err := r.Render(page, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, 2, collector.Count())
	byKind := collector.ByKind(errors.DiagUnresolvedComponent)
	require.Len(t, byKind, 1)
	assert.Equal(t, "page", byKind[0].UnitID)
}
