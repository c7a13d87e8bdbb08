// Package minify shrinks final output when release mode or --minify is set.
package minify

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

var scriptTypePattern = regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`)

// Minifier shrinks HTML, CSS and JS. HTML keeps its document structure, end
// tags and attribute quotes so downstream tooling (the reload injector, the
// analyzer) still finds what it expects.
type Minifier struct {
	m *minify.M
}

// New builds a minifier with embedded style and script handling enabled.
func New() *Minifier {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFuncRegexp(scriptTypePattern, js.Minify)
	return &Minifier{m: m}
}

// HTML minifies a full document, including inline styles and scripts.
func (mn *Minifier) HTML(src string) (string, error) {
	return mn.m.String("text/html", src)
}

// CSS minifies a stylesheet.
func (mn *Minifier) CSS(src string) (string, error) {
	return mn.m.String("text/css", src)
}

// JS minifies a script.
func (mn *Minifier) JS(src string) (string, error) {
	return mn.m.String("application/javascript", src)
}

// ForPath minifies by file extension. Unknown types pass through untouched,
// so copying arbitrary assets through it is safe.
func (mn *Minifier) ForPath(path, src string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return mn.HTML(src)
	case ".css":
		return mn.CSS(src)
	case ".js", ".mjs":
		return mn.JS(src)
	default:
		return src, nil
	}
}

// Processor returns the page post-processor applied when minification is on.
// A page that fails to minify ships unminified with a warning diagnostic; the
// unit itself never fails over cosmetics.
func Processor(collector *errors.Collector) func(*types.RenderableUnit, string) (string, error) {
	mn := New()
	return func(unit *types.RenderableUnit, doc string) (string, error) {
		out, err := mn.HTML(doc)
		if err != nil {
			if collector != nil {
				collector.Add(errors.Diagnostic{
					Kind:     errors.DiagAudit,
					Severity: errors.SeverityWarning,
					UnitID:   unit.ID,
					Message:  fmt.Sprintf("minification skipped: %v", err),
				})
			}
			return doc, nil
		}
		return out, nil
	}
}
