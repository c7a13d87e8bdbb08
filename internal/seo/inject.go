package seo

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// Apply parses a rendered page and appends the missing SEO tags to its head:
// description/keywords/author metas, the canonical link, OpenGraph and
// Twitter cards, and a JSON-LD structured data block. Tags the page already
// carries are left alone.
func Apply(doc string, page PageSEO, cfg Config) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc, err
	}

	head := findElement(root, atom.Head)
	if head == nil {
		return doc, nil
	}

	present := inventory(head)
	canonical := page.canonical(cfg)

	if !present.title && page.Title != "" {
		title := newElement(atom.Title)
		title.AppendChild(textNode(page.Title))
		head.AppendChild(title)
	}

	description := page.Description
	if description == "" {
		description = cfg.DefaultDescription
	}
	if description != "" && !present.metaNames["description"] {
		head.AppendChild(metaName("description", description))
	}

	keywords := page.Keywords
	if len(keywords) == 0 {
		keywords = cfg.DefaultKeywords
	}
	if len(keywords) > 0 && !present.metaNames["keywords"] {
		head.AppendChild(metaName("keywords", strings.Join(keywords, ", ")))
	}

	if page.Author != "" && !present.metaNames["author"] {
		head.AppendChild(metaName("author", page.Author))
	}

	if canonical != "" && !present.canonical {
		head.AppendChild(newElement(atom.Link,
			html.Attribute{Key: "rel", Val: "canonical"},
			html.Attribute{Key: "href", Val: canonical},
		))
	}

	appendProperty := func(prop, content string) {
		if content != "" && !present.metaProps[prop] {
			head.AppendChild(metaProperty(prop, content))
		}
	}
	appendName := func(name, content string) {
		if content != "" && !present.metaNames[name] {
			head.AppendChild(metaName(name, content))
		}
	}

	appendProperty("og:title", page.Title)
	appendProperty("og:type", "article")
	appendProperty("og:url", canonical)
	appendProperty("og:description", page.Description)
	if page.Image != "" {
		appendProperty("og:image", page.Image)
		appendProperty("og:image:alt", page.Title)
	}

	appendName("twitter:card", "summary_large_image")
	if cfg.SocialMedia != nil {
		appendName("twitter:site", cfg.SocialMedia.TwitterSite)
		appendName("twitter:creator", cfg.SocialMedia.TwitterCreator)
	}
	appendName("twitter:title", page.Title)
	appendName("twitter:description", page.Description)

	// Article tags only make sense for blog-style content.
	if page.SchemaType == "BlogPosting" {
		appendProperty("article:author", page.Author)
		if !page.PublishedDate.IsZero() {
			appendProperty("article:published_time", page.PublishedDate.Format(time.RFC3339))
		}
		if !page.LastModified.IsZero() {
			appendProperty("article:modified_time", page.LastModified.Format(time.RFC3339))
		}
		appendProperty("article:section", page.Category)
		for _, tag := range page.Tags {
			head.AppendChild(metaProperty("article:tag", tag))
		}
	}

	if data, err := json.MarshalIndent(structuredData(page, cfg), "", "  "); err == nil {
		script := newElement(atom.Script, html.Attribute{Key: "type", Val: "application/ld+json"})
		script.AppendChild(textNode("\n" + string(data) + "\n"))
		head.AppendChild(script)
	}

	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return doc, err
	}
	return b.String(), nil
}

// Processor returns the page post-processor wired into the engine when SEO is
// enabled. It reads each page's frontmatter, honors an inline
// <!-- SEO {...} --> override, and reports malformed overrides to the
// diagnostic stream without failing the page.
func Processor(cfg Config, collector *errors.Collector) func(*types.RenderableUnit, string) (string, error) {
	return func(unit *types.RenderableUnit, doc string) (string, error) {
		page := FromMetadata(unit.ID, unit.Metadata)

		override, err := ParseInlineOverride(doc)
		if err != nil && collector != nil {
			collector.Add(errors.Diagnostic{
				Kind:     errors.DiagAudit,
				Severity: errors.SeverityWarning,
				UnitID:   unit.ID,
				Message:  fmt.Sprintf("invalid inline SEO override: %v", err),
			})
		}
		page = page.Merge(override)

		return Apply(doc, page, cfg)
	}
}

type headContents struct {
	title     bool
	canonical bool
	metaNames map[string]bool
	metaProps map[string]bool
}

func inventory(head *html.Node) headContents {
	present := headContents{
		metaNames: make(map[string]bool),
		metaProps: make(map[string]bool),
	}
	for child := head.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		switch child.DataAtom {
		case atom.Title:
			present.title = true
		case atom.Meta:
			if name := attrValue(child, "name"); name != "" {
				present.metaNames[name] = true
			}
			if prop := attrValue(child, "property"); prop != "" {
				present.metaProps[prop] = true
			}
		case atom.Link:
			if attrValue(child, "rel") == "canonical" {
				present.canonical = true
			}
		}
	}
	return present
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, a); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func newElement(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func textNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func metaName(name, content string) *html.Node {
	return newElement(atom.Meta,
		html.Attribute{Key: "name", Val: name},
		html.Attribute{Key: "content", Val: content},
	)
}

func metaProperty(prop, content string) *html.Node {
	return newElement(atom.Meta,
		html.Attribute{Key: "property", Val: prop},
		html.Attribute{Key: "content", Val: content},
	)
}
