package engine

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/EldroidTech/eldroid-ssg/internal/content"
	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// RenderedOutput is one unit's last successful render. Outputs survive later
// failed renders of the same unit, so the dev server and output writer always
// have the last good page to fall back on.
type RenderedOutput struct {
	ID          string
	Kind        types.UnitKind
	HTML        string
	Degraded    bool
	Fingerprint string
	RenderedAt  time.Time
}

type outputStore struct {
	mutex   sync.RWMutex
	entries map[string]RenderedOutput
}

func newOutputStore() *outputStore {
	return &outputStore{entries: make(map[string]RenderedOutput)}
}

func (s *outputStore) set(key string, out RenderedOutput) {
	s.mutex.Lock()
	s.entries[key] = out
	s.mutex.Unlock()
}

func (s *outputStore) get(key string) (RenderedOutput, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out, ok := s.entries[key]
	return out, ok
}

func (s *outputStore) remove(key string) {
	s.mutex.Lock()
	delete(s.entries, key)
	s.mutex.Unlock()
}

func (s *outputStore) list(kind types.UnitKind) []RenderedOutput {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	var out []RenderedOutput
	for _, entry := range s.entries {
		if entry.Kind == kind {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Page returns the last good render of a content unit.
func (e *Engine) Page(id string) (RenderedOutput, bool) {
	return e.outputs.get(pageKey(id))
}

// Component returns the last good render of a component, as used by the
// preview route.
func (e *Engine) Component(id string) (RenderedOutput, bool) {
	return e.outputs.get(id)
}

// Pages returns the last good render of every content unit, sorted by id.
func (e *Engine) Pages() []RenderedOutput {
	return e.outputs.list(types.KindContent)
}

// WriteTo writes every page's last good output under dir, creating
// directories as needed. Returns the number of files written.
func (e *Engine) WriteTo(dir string) (int, error) {
	written := 0
	for _, page := range e.Pages() {
		path := filepath.Join(dir, filepath.FromSlash(content.Route(page.ID)))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, errors.NewIOError("create output directory", err).WithContext("path", path)
		}
		if err := os.WriteFile(path, []byte(page.HTML), 0o644); err != nil {
			return written, errors.NewIOError("write page", err).WithContext("path", path)
		}
		written++
	}
	return written, nil
}
