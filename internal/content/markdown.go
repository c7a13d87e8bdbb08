// Package content loads source files into renderable units. Markdown pages
// pass through goldmark before template parsing, so component invocations in
// page bodies survive conversion as raw HTML; .html pages skip conversion and
// only have their frontmatter stripped. A page whose frontmatter names a
// layout is wrapped in a synthetic invocation of that layout, with the page
// body as the layout's default slot and the frontmatter entries as its
// attributes.
package content

import (
	"bytes"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gparser "github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
)

// Converter turns markdown page sources into HTML bodies plus frontmatter
// metadata. Safe for concurrent use; per-document state lives in the parser
// context.
type Converter struct {
	md goldmark.Markdown
}

// NewConverter builds the markdown converter. Raw HTML is passed through
// unmodified so component tags in page bodies reach the template parser
// intact.
func NewConverter() *Converter {
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Footnote,
				meta.Meta,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
					highlighting.WithFormatOptions(
						chromahtml.WithClasses(true),
					),
				),
			),
			goldmark.WithParserOptions(
				gparser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				ghtml.WithUnsafe(),
			),
		),
	}
}

// Convert renders markdown to HTML and extracts YAML frontmatter. Heading
// anchors are generated with Slugify so they stay ASCII and deterministic.
func (c *Converter) Convert(source string) (string, map[string]string, error) {
	var buf bytes.Buffer
	pc := gparser.NewContext(gparser.WithIDs(newSlugIDs()))
	if err := c.md.Convert([]byte(source), &buf, gparser.WithContext(pc)); err != nil {
		return "", nil, err
	}
	return buf.String(), flattenMeta(meta.Get(pc)), nil
}
