package content

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/parser"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// layoutKey is the frontmatter entry naming the component a page is wrapped
// in.
const layoutKey = "layout"

// Loader turns raw source changes into renderable units.
type Loader struct {
	converter *Converter
}

// NewLoader creates a loader with a shared markdown converter.
func NewLoader() *Loader {
	return &Loader{converter: NewConverter()}
}

// LoadUnit builds the unit for one source change. Component sources parse
// as-is; content sources run the page pipeline (frontmatter, markdown,
// layout wrapping) first.
func (l *Loader) LoadUnit(change types.SourceChange) (*types.RenderableUnit, error) {
	if change.Kind == types.KindContent {
		return l.loadPage(change)
	}
	return l.loadComponent(change)
}

func (l *Loader) loadComponent(change types.SourceChange) (*types.RenderableUnit, error) {
	id := types.IDFromRelPath(change.Path)
	tmpl, err := parser.Parse(id, change.Text)
	if err != nil {
		return nil, err
	}
	return &types.RenderableUnit{
		ID:         id,
		Kind:       types.KindComponent,
		SourcePath: change.Path,
		Source:     change.Text,
		Nodes:      tmpl.Nodes,
		Targets:    tmpl.Targets,
		Params:     tmpl.Params,
		Defaults:   tmpl.Defaults,
		Hash:       HashText(change.Text),
		ParsedAt:   time.Now(),
	}, nil
}

func (l *Loader) loadPage(change types.SourceChange) (*types.RenderableUnit, error) {
	id := types.IDFromRelPath(change.Path)

	var (
		body     string
		metadata map[string]string
		err      error
	)
	if isMarkdownPath(change.Path) {
		body, metadata, err = l.converter.Convert(change.Text)
	} else {
		metadata, body, err = SplitFrontmatter(change.Text)
	}
	if err != nil {
		return nil, errors.NewParseError(id, err.Error()).WithContext("path", change.Path)
	}

	if metadata == nil {
		metadata = make(map[string]string)
	}
	for key, value := range change.Metadata {
		metadata[key] = value
	}
	if title := metadata["title"]; title != "" && metadata["slug"] == "" {
		metadata["slug"] = Slugify(title)
	}

	tmpl, err := parser.Parse(id, body)
	if err != nil {
		return nil, err
	}

	nodes := tmpl.Nodes
	targets := tmpl.Targets
	if layout := strings.TrimSpace(metadata[layoutKey]); layout != "" {
		// The synthetic wrapper invokes the layout with the page body as
		// its default slot and the frontmatter entries as attributes.
		attrs := make(map[string]string, len(metadata))
		for key, value := range metadata {
			if key != layoutKey {
				attrs[key] = value
			}
		}
		nodes = []types.Node{&types.InvocationNode{
			Target:      layout,
			Attributes:  attrs,
			DefaultSlot: tmpl.Nodes,
		}}
		targets = types.TargetsOf(nodes)
	}

	return &types.RenderableUnit{
		ID:         id,
		Kind:       types.KindContent,
		SourcePath: change.Path,
		Source:     change.Text,
		Nodes:      nodes,
		Targets:    targets,
		Params:     tmpl.Params,
		Defaults:   tmpl.Defaults,
		Hash:       HashText(change.Text),
		Metadata:   metadata,
		ParsedAt:   time.Now(),
	}, nil
}

// HashText fingerprints one source text. Hex-encoded xxhash keeps hashes
// short enough to embed in cache keys and log lines.
func HashText(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}

// Route maps a content unit identifier to its output path under the build
// directory ("blog/post" -> "blog/post.html").
func Route(id string) string {
	return id + ".html"
}

// RouteURL maps a content unit identifier to its absolute site path
// ("index" -> "/", "blog/post" -> "/blog/post.html").
func RouteURL(id string) string {
	if id == "index" {
		return "/"
	}
	return "/" + Route(id)
}

func isMarkdownPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// DescribeUnit is the one-line human form used by list output and log lines.
func DescribeUnit(unit *types.RenderableUnit) string {
	return fmt.Sprintf("%s (%s, %d deps)", unit.ID, unit.Kind, len(unit.Targets))
}
