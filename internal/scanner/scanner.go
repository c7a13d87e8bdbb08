// Package scanner discovers template sources for the build engine.
//
// The scanner walks the components and content roots, filters out dotfiles
// and ignored paths, reads matching files, and packages them as the source
// change batches the engine ingests. The watcher funnels its events through
// the same classification so the walk and watch paths always agree. The
// engine itself never touches the disk.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// Scanner locates renderable sources under two roots: components and content.
type Scanner struct {
	componentsDir string
	contentDir    string
	ignore        []string
}

// New creates a scanner over the two source roots. Ignore patterns are
// filepath.Match globs tested against base names and root-relative paths.
func New(componentsDir, contentDir string, ignore []string) *Scanner {
	return &Scanner{componentsDir: componentsDir, contentDir: contentDir, ignore: ignore}
}

type scanRoot struct {
	dir  string
	kind types.UnitKind
}

func (s *Scanner) roots() []scanRoot {
	return []scanRoot{
		{s.componentsDir, types.KindComponent},
		{s.contentDir, types.KindContent},
	}
}

// ScanAll walks both roots and returns every discovered source as one batch,
// components first, in stable path order. Missing roots are skipped so a
// components-only or content-only project still builds.
func (s *Scanner) ScanAll() ([]types.SourceChange, error) {
	var changes []types.SourceChange
	for _, root := range s.roots() {
		batch, err := s.walkRoot(root)
		if err != nil {
			return nil, err
		}
		changes = append(changes, batch...)
	}
	return changes, nil
}

func (s *Scanner) walkRoot(root scanRoot) ([]types.SourceChange, error) {
	if _, err := os.Stat(root.dir); os.IsNotExist(err) {
		return nil, nil
	}

	var paths []string
	err := filepath.WalkDir(root.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root.dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !matchesKind(name, root.kind) {
			return nil
		}
		rel, err := filepath.Rel(root.dir, path)
		if err != nil {
			return err
		}
		if s.ignored(rel, name) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError("walk source root", err).WithContext("root", root.dir)
	}
	sort.Strings(paths)

	changes := make([]types.SourceChange, 0, len(paths))
	for _, rel := range paths {
		text, err := os.ReadFile(filepath.Join(root.dir, rel))
		if err != nil {
			return nil, errors.NewIOError("read source file", err).
				WithContext("path", filepath.Join(root.dir, rel))
		}
		changes = append(changes, types.SourceChange{
			Path:   filepath.ToSlash(rel),
			Kind:   root.kind,
			Change: types.ChangeAdded,
			Text:   string(text),
		})
	}
	return changes, nil
}

// Classified locates one path within the scanner's roots.
type Classified struct {
	// Rel is the root-relative path, slash-separated
	Rel string
	// Kind is the unit family of the owning root
	Kind types.UnitKind
}

// Classify reports whether path belongs to one of the scanner's roots with a
// recognized extension and without crossing a hidden or ignored segment. The
// path must be spelled the same way the roots were (both relative or both
// absolute). Classification never touches the disk, so it also works for
// paths that no longer exist.
func (s *Scanner) Classify(path string) (Classified, bool) {
	for _, root := range s.roots() {
		rel, err := filepath.Rel(root.dir, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		name := filepath.Base(rel)
		if !matchesKind(name, root.kind) || hiddenSegment(rel) || s.ignored(rel, name) {
			continue
		}
		return Classified{Rel: filepath.ToSlash(rel), Kind: root.kind}, true
	}
	return Classified{}, false
}

// ReadChange builds the engine-facing change for one on-disk event. Removed
// changes carry no text; everything else is read from disk here so the engine
// stays free of filesystem access. The bool reports whether the path was a
// recognized source at all.
func (s *Scanner) ReadChange(path string, change types.ChangeKind) (types.SourceChange, bool, error) {
	c, ok := s.Classify(path)
	if !ok {
		return types.SourceChange{}, false, nil
	}
	if change == types.ChangeRemoved {
		return types.SourceChange{Path: c.Rel, Kind: c.Kind, Change: types.ChangeRemoved}, true, nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return types.SourceChange{}, false,
			errors.NewIOError("read source file", err).WithContext("path", path)
	}
	return types.SourceChange{Path: c.Rel, Kind: c.Kind, Change: change, Text: string(text)}, true, nil
}

// matchesKind reports whether a file name carries a renderable extension for
// the given root. Markdown only counts under the content root.
func matchesKind(name string, kind types.UnitKind) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	case ".md", ".markdown":
		return kind == types.KindContent
	}
	return false
}

// hiddenSegment reports whether any element of a relative path is a dotfile
// or dot-directory.
func hiddenSegment(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (s *Scanner) ignored(rel, name string) bool {
	slashRel := filepath.ToSlash(rel)
	for _, pattern := range s.ignore {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, slashRel); matched {
			return true
		}
	}
	return false
}
