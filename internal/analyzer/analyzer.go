// Package analyzer audits emitted HTML after a build: mixed-content
// references, insecure external links, oversized inline assets, missing alt
// text, plus page-weight heuristics. Findings go to the diagnostic stream and
// optionally to per-page report files.
package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
)

// DefaultMaxInlineBytes is the size above which an inline style or script
// counts as oversized.
const DefaultMaxInlineBytes = 10 * 1024

var importantMetaTags = []string{"description", "viewport", "robots"}

// PageAnalysis is the audit result for one page.
type PageAnalysis struct {
	PageID            string
	SizeBytes         int
	ImageCount        int
	ImagesMissingAlt  []string
	MixedContent      []string
	InsecureTargets   []string
	OversizedInline   []string
	BlockingScripts   int
	RenderBlockingCSS int
	MissingMetaTags   []string
	Recommendations   []string
}

// Analyzer walks rendered documents and reports findings.
type Analyzer struct {
	collector      *errors.Collector
	maxInlineBytes int
}

// New creates an analyzer. Findings are mirrored onto the collector when one
// is given.
func New(collector *errors.Collector) *Analyzer {
	return &Analyzer{
		collector:      collector,
		maxInlineBytes: DefaultMaxInlineBytes,
	}
}

// AnalyzePage audits a single rendered page.
func (a *Analyzer) AnalyzePage(id, doc string) *PageAnalysis {
	analysis := &PageAnalysis{
		PageID:    id,
		SizeBytes: len(doc),
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		a.warn(id, fmt.Sprintf("analysis skipped, unparseable page: %v", err))
		return analysis
	}

	metaNames := make(map[string]bool)
	a.walk(root, analysis, metaNames)

	for _, name := range importantMetaTags {
		if !metaNames[name] {
			analysis.MissingMetaTags = append(analysis.MissingMetaTags, name)
		}
	}

	a.recommend(analysis)

	for _, src := range analysis.MixedContent {
		a.warn(id, fmt.Sprintf("mixed content: %s is loaded over plain HTTP", src))
	}
	for _, target := range analysis.InsecureTargets {
		a.warn(id, fmt.Sprintf("insecure external link: %s opens a new tab without rel=noopener", target))
	}
	for _, img := range analysis.ImagesMissingAlt {
		a.warn(id, fmt.Sprintf("image without alt text: %s", img))
	}
	for _, asset := range analysis.OversizedInline {
		a.warn(id, fmt.Sprintf("oversized inline asset: %s", asset))
	}

	return analysis
}

func (a *Analyzer) walk(n *html.Node, analysis *PageAnalysis, metaNames map[string]bool) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Img:
			analysis.ImageCount++
			src := attrValue(n, "src")
			if !hasAttr(n, "alt") {
				name := src
				if name == "" {
					name = fmt.Sprintf("image #%d", analysis.ImageCount)
				}
				analysis.ImagesMissingAlt = append(analysis.ImagesMissingAlt, name)
			}
			a.checkMixedContent(src, analysis)

		case atom.Script:
			if src := attrValue(n, "src"); src != "" {
				a.checkMixedContent(src, analysis)
			}
			if !hasAttr(n, "defer") && !hasAttr(n, "async") {
				analysis.BlockingScripts++
			}
			a.checkInlineSize(n, "script", analysis)

		case atom.Style:
			a.checkInlineSize(n, "style", analysis)

		case atom.Link:
			if attrValue(n, "rel") == "stylesheet" {
				analysis.RenderBlockingCSS++
				a.checkMixedContent(attrValue(n, "href"), analysis)
			}

		case atom.A:
			if attrValue(n, "target") == "_blank" {
				rel := attrValue(n, "rel")
				if !strings.Contains(rel, "noopener") && !strings.Contains(rel, "noreferrer") {
					target := attrValue(n, "href")
					if target == "" {
						target = "(no href)"
					}
					analysis.InsecureTargets = append(analysis.InsecureTargets, target)
				}
			}

		case atom.Iframe, atom.Source, atom.Video, atom.Audio, atom.Embed:
			a.checkMixedContent(attrValue(n, "src"), analysis)

		case atom.Meta:
			if name := attrValue(n, "name"); name != "" {
				metaNames[name] = true
			}
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		a.walk(child, analysis, metaNames)
	}
}

func (a *Analyzer) checkMixedContent(src string, analysis *PageAnalysis) {
	if strings.HasPrefix(src, "http://") {
		analysis.MixedContent = append(analysis.MixedContent, src)
	}
}

func (a *Analyzer) checkInlineSize(n *html.Node, kind string, analysis *PageAnalysis) {
	var size int
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			size += len(child.Data)
		}
	}
	if size > a.maxInlineBytes {
		analysis.OversizedInline = append(analysis.OversizedInline,
			fmt.Sprintf("inline %s (%d bytes)", kind, size))
	}
}

func (a *Analyzer) recommend(analysis *PageAnalysis) {
	rec := func(format string, args ...any) {
		analysis.Recommendations = append(analysis.Recommendations, fmt.Sprintf(format, args...))
	}

	if analysis.SizeBytes > 500_000 {
		rec("Page size exceeds 500KB. Consider minifying HTML, CSS, and JavaScript.")
	}
	if len(analysis.MixedContent) > 0 {
		rec("Resources served over plain HTTP will be blocked on HTTPS sites: %s",
			strings.Join(analysis.MixedContent, ", "))
	}
	if len(analysis.InsecureTargets) > 0 {
		rec("Add rel=\"noopener\" to links opening new tabs: %s",
			strings.Join(analysis.InsecureTargets, ", "))
	}
	if len(analysis.ImagesMissingAlt) > 0 {
		rec("Add alt text to %d image(s): %s",
			len(analysis.ImagesMissingAlt), strings.Join(analysis.ImagesMissingAlt, ", "))
	}
	if len(analysis.OversizedInline) > 0 {
		rec("Move oversized inline assets into cacheable files: %s",
			strings.Join(analysis.OversizedInline, ", "))
	}
	if analysis.BlockingScripts > 0 {
		rec("Found %d blocking script(s). Consider adding 'defer' or 'async' attributes.",
			analysis.BlockingScripts)
	}
	if analysis.RenderBlockingCSS > 2 {
		rec("Multiple render-blocking stylesheets detected. Consider combining CSS files.")
	}
	if len(analysis.MissingMetaTags) > 0 {
		rec("Missing important meta tags: %s", strings.Join(analysis.MissingMetaTags, ", "))
	}
}

func (a *Analyzer) warn(id, message string) {
	if a.collector == nil {
		return
	}
	a.collector.Add(errors.Diagnostic{
		Kind:     errors.DiagAudit,
		Severity: errors.SeverityWarning,
		UnitID:   id,
		Message:  message,
	})
}

// Report renders the analysis as plain text for per-page report files.
func (p *PageAnalysis) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "page %s: %d bytes, %d image(s)\n", p.PageID, p.SizeBytes, p.ImageCount)
	fmt.Fprintf(&b, "blocking scripts: %d\n", p.BlockingScripts)
	fmt.Fprintf(&b, "render-blocking stylesheets: %d\n", p.RenderBlockingCSS)

	section := func(title string, entries []string) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, entry := range entries {
			fmt.Fprintf(&b, "  %s\n", entry)
		}
	}
	section("mixed content", p.MixedContent)
	section("insecure targets", p.InsecureTargets)
	section("images missing alt", p.ImagesMissingAlt)
	section("oversized inline assets", p.OversizedInline)
	section("missing meta tags", p.MissingMetaTags)

	if len(p.Recommendations) > 0 {
		b.WriteString("recommendations:\n")
		for _, rec := range p.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}
	return b.String()
}

// WriteReports writes one report per analyzed page under dir, mirroring the
// page tree.
func WriteReports(dir string, analyses []*PageAnalysis) error {
	for _, analysis := range analyses {
		path := filepath.Join(dir, filepath.FromSlash(analysis.PageID)+".report.txt")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.NewIOError("create report directory", err).WithContext("path", path)
		}
		if err := os.WriteFile(path, []byte(analysis.Report()), 0o644); err != nil {
			return errors.NewIOError("write analysis report", err).WithContext("path", path)
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

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
