// Package types provides common type definitions used throughout eldroid-ssg.
// This package contains shared types to avoid circular dependencies between packages.
package types

import (
	"path/filepath"
	"strings"
	"time"
)

// UnitKind distinguishes the two families of renderable units.
type UnitKind int

const (
	// KindComponent is a reusable template living under the components root.
	KindComponent UnitKind = iota
	// KindContent is a page living under the content root.
	KindContent
)

func (k UnitKind) String() string {
	switch k {
	case KindComponent:
		return "component"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// RenderableUnit is a single parsed template entity: a content page or a
// component. Units are immutable once built; a source change produces a
// replacement unit rather than mutating the old one in place.
type RenderableUnit struct {
	// ID is the stable path-like key (content route or component identifier,
	// e.g. "blog/post-1" or "ui/button")
	ID string
	// Kind reports whether this unit is a component or a content page
	Kind UnitKind
	// SourcePath is the path the unit was loaded from, relative to its root
	SourcePath string
	// Source is the raw markup text the unit was parsed from
	Source string
	// Nodes is the parsed body: literal text spans and component invocations
	Nodes []Node
	// Targets lists the component identifiers this unit invokes, deduplicated
	Targets []string
	// Params lists the parameter names referenced in the unit's own text spans
	Params []string
	// Defaults holds parameter defaults declared by the unit itself
	Defaults map[string]string
	// Hash is the content hash of Source, used for change detection
	Hash string
	// Metadata carries frontmatter key/value pairs for content units. The
	// engine passes it through without interpreting it.
	Metadata map[string]string
	// ParsedAt records when the unit was built, for diagnostics ordering
	ParsedAt time.Time
}

// EventType represents the type of unit change event.
type EventType string

const (
	EventTypeAdded   EventType = "added"
	EventTypeUpdated EventType = "updated"
	EventTypeRemoved EventType = "removed"
)

// UnitEvent represents a change in the component registry or content store,
// used for real-time notifications to watchers like the development server.
type UnitEvent struct {
	// Type indicates the kind of change (added, updated, removed)
	Type EventType
	// Unit contains the unit information (may be nil for removed events)
	Unit *RenderableUnit
	// Timestamp records when the event occurred for ordering and filtering
	Timestamp time.Time
}

// ChangeKind classifies a source file change reported by the watcher or the
// initial walk.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeModified
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// SourceChange is one file event fed into the build engine. The engine never
// reads files itself; the walker and watcher supply the raw text.
type SourceChange struct {
	// Path is the source path relative to its root (components or content)
	Path string
	// Kind is the component/content classification of the path
	Kind UnitKind
	// Change says whether the file was added, modified, or removed
	Change ChangeKind
	// Text is the raw file contents (empty for removals)
	Text string
	// Metadata carries extracted frontmatter for content files, nil otherwise
	Metadata map[string]string
}

// ValidationState tracks a unit through one invalidation cycle.
type ValidationState int

const (
	StateUnvalidated ValidationState = iota
	StateValidating
	StateValid
	StateInvalid
)

func (s ValidationState) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateValidating:
		return "validating"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// IDFromRelPath derives a unit identifier from a root-relative source path:
// the extension is stripped and separators normalized to forward slashes.
// Derivation is case-preserving; "Ui/Button.html" and "ui/button.html" yield
// distinct identifiers.
func IDFromRelPath(relPath string) string {
	p := filepath.ToSlash(relPath)
	ext := filepath.Ext(p)
	p = strings.TrimSuffix(p, ext)
	return strings.TrimPrefix(p, "./")
}
