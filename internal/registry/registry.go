// Package registry maintains the component table for a site: a mapping from
// component identifier to its parsed renderable unit. The registry is an
// explicit value shared by reference into the build engine, never an ambient
// singleton, so concurrent builds and tests stay isolated. Every successful
// mutation bumps a generation counter; renders run against an immutable
// snapshot taken at a generation boundary.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// ComponentRegistry is the canonical owner of component units. Identifiers
// derive from the component's path relative to the components root with the
// extension stripped ("ui/button.html" -> "ui/button"), case-sensitive.
type ComponentRegistry struct {
	units      map[string]*types.RenderableUnit
	sources    map[string]string
	generation uint64
	mutex      sync.RWMutex
	watchers   []chan types.UnitEvent
}

// NewComponentRegistry creates a new component registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		units:   make(map[string]*types.RenderableUnit),
		sources: make(map[string]string),
	}
}

// Register adds or replaces a component unit. Re-registering an identifier
// from the same source path atomically replaces the prior entry.
// Registering an identifier already claimed by a different source path fails
// with a RegistrationConflict and leaves the existing entry intact.
func (r *ComponentRegistry) Register(unit *types.RenderableUnit) error {
	r.mutex.Lock()

	if owner, claimed := r.sources[unit.ID]; claimed && owner != unit.SourcePath {
		r.mutex.Unlock()
		return errors.NewRegistrationConflict(unit.ID, owner, unit.SourcePath)
	}

	eventType := types.EventTypeAdded
	if _, exists := r.units[unit.ID]; exists {
		eventType = types.EventTypeUpdated
	}

	r.units[unit.ID] = unit
	r.sources[unit.ID] = unit.SourcePath
	r.generation++

	event := types.UnitEvent{
		Type:      eventType,
		Unit:      unit,
		Timestamp: time.Now(),
	}
	watchers := make([]chan types.UnitEvent, len(r.watchers))
	copy(watchers, r.watchers)
	r.mutex.Unlock()

	r.notify(watchers, event)
	return nil
}

// Lookup returns the unit registered under id.
func (r *ComponentRegistry) Lookup(id string) (*types.RenderableUnit, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	unit, ok := r.units[id]
	return unit, ok
}

// SourceOf returns the source path that owns an identifier.
func (r *ComponentRegistry) SourceOf(id string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	path, ok := r.sources[id]
	return path, ok
}

// AllIDs returns every registered identifier, sorted for deterministic
// iteration.
func (r *ComponentRegistry) AllIDs() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	ids := make([]string, 0, len(r.units))
	for id := range r.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAll returns a copy of the component table.
func (r *ComponentRegistry) GetAll() map[string]*types.RenderableUnit {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	all := make(map[string]*types.RenderableUnit, len(r.units))
	for id, unit := range r.units {
		all[id] = unit
	}
	return all
}

// Remove drops a component. Removing an unknown id is a no-op.
func (r *ComponentRegistry) Remove(id string) {
	r.mutex.Lock()
	unit, exists := r.units[id]
	if !exists {
		r.mutex.Unlock()
		return
	}
	delete(r.units, id)
	delete(r.sources, id)
	r.generation++

	event := types.UnitEvent{
		Type:      types.EventTypeRemoved,
		Unit:      unit,
		Timestamp: time.Now(),
	}
	watchers := make([]chan types.UnitEvent, len(r.watchers))
	copy(watchers, r.watchers)
	r.mutex.Unlock()

	r.notify(watchers, event)
}

// Count returns the number of registered components.
func (r *ComponentRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.units)
}

// Generation returns the registry's mutation counter. Two equal generations
// bracket an unchanged registry.
func (r *ComponentRegistry) Generation() uint64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.generation
}

// Snapshot returns an immutable view of the component table and the
// generation it was taken at. Renders resolve against a snapshot so a batch
// of registry mutations is never partially visible mid-render.
func (r *ComponentRegistry) Snapshot() *Snapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	units := make(map[string]*types.RenderableUnit, len(r.units))
	for id, unit := range r.units {
		units[id] = unit
	}
	return &Snapshot{units: units, generation: r.generation}
}

// Watch subscribes a channel to registry change events. Events are delivered
// with non-blocking sends; a full channel misses events rather than stalling
// registration.
func (r *ComponentRegistry) Watch(watcher chan types.UnitEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.watchers = append(r.watchers, watcher)
}

// UnWatch removes a previously subscribed channel.
func (r *ComponentRegistry) UnWatch(watcher chan types.UnitEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, w := range r.watchers {
		if w == watcher {
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

func (r *ComponentRegistry) notify(watchers []chan types.UnitEvent, event types.UnitEvent) {
	for _, watcher := range watchers {
		select {
		case watcher <- event:
		default:
		}
	}
}

// Snapshot is a read-only view of the registry for one build generation.
type Snapshot struct {
	units      map[string]*types.RenderableUnit
	generation uint64
}

// Lookup returns the unit registered under id at snapshot time.
func (s *Snapshot) Lookup(id string) (*types.RenderableUnit, bool) {
	unit, ok := s.units[id]
	return unit, ok
}

// AllIDs returns the identifiers present at snapshot time, sorted.
func (s *Snapshot) AllIDs() []string {
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Generation returns the registry generation the snapshot was taken at.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}
