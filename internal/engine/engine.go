// Package engine orchestrates incremental site builds. A batch of source
// changes is ingested atomically: units are reloaded, registry and dependency
// graph updated, the affected closure invalidated, and the closure re-rendered
// leaves-first against a registry snapshot taken at the batch boundary.
// Renders run on a bounded worker pool; a unit that fails to render keeps its
// last successful output so a broken edit never blanks previously good pages.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/EldroidTech/eldroid-ssg/internal/content"
	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/graph"
	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/registry"
	"github.com/EldroidTech/eldroid-ssg/internal/renderer"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

// DefaultCacheSize bounds the render cache when Options leaves CacheSize
// unset.
const DefaultCacheSize = 1024

// PostProcessor transforms a rendered content page before it is stored and
// written. Processors run in order; an error fails the unit.
type PostProcessor func(unit *types.RenderableUnit, html string) (string, error)

// Options configures an Engine.
type Options struct {
	// Workers bounds the render pool (default: GOMAXPROCS)
	Workers int
	// MaxDepth is the renderer's recursion ceiling (default renderer.DefaultMaxDepth)
	MaxDepth int
	// CacheSize is the render cache capacity in entries (default DefaultCacheSize)
	CacheSize int
	// Vars resolves @{var(...)} references during rendering
	Vars renderer.VarLookup
	// PostProcess is applied to content page output after rendering
	PostProcess []PostProcessor
	// Logger receives build progress; defaults to the standard logger
	Logger logging.Logger
	// Collector receives build diagnostics; a unit's entries are replaced
	// whenever it is reprocessed. Defaults to a fresh collector.
	Collector *errors.Collector
}

// Engine owns the incremental build state for one site.
type Engine struct {
	opts      Options
	loader    *content.Loader
	registry  *registry.ComponentRegistry
	graph     *graph.DependencyGraph
	collector *errors.Collector
	logger    logging.Logger

	// buildMu serializes batches so registry, graph, and validation state
	// always reflect a whole batch, never part of one.
	buildMu sync.Mutex

	stateMu      sync.RWMutex
	pages        map[string]*types.RenderableUnit
	states       map[string]types.ValidationState
	fingerprints map[string]string

	outputs     *outputStore
	renderCache *lru.Cache[string, cachedRender]
	cacheEpoch  atomic.Uint64
	metrics     *Metrics
}

type cachedRender struct {
	html        string
	degraded    bool
	diagnostics []errors.Diagnostic
}

// New creates an engine over a component registry.
func New(reg *registry.ComponentRegistry, opts Options) (*Engine, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Collector == nil {
		opts.Collector = errors.NewCollector()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger(logging.DefaultConfig()).WithComponent("engine")
	}

	cache, err := lru.New[string, cachedRender](opts.CacheSize)
	if err != nil {
		return nil, errors.NewInternalError("create render cache", err)
	}

	return &Engine{
		opts:         opts,
		loader:       content.NewLoader(),
		registry:     reg,
		graph:        graph.NewDependencyGraph(),
		collector:    opts.Collector,
		logger:       opts.Logger,
		pages:        make(map[string]*types.RenderableUnit),
		states:       make(map[string]types.ValidationState),
		fingerprints: make(map[string]string),
		outputs:      newOutputStore(),
		renderCache:  cache,
		metrics:      &Metrics{},
	}, nil
}

// ApplyChanges ingests one batch of source changes and revalidates the
// affected closure. The batch is atomic: no render observes some of its
// registrations without the rest. Unloadable units fail individually and are
// reported in the summary; the rest of the batch proceeds.
func (e *Engine) ApplyChanges(ctx context.Context, changes []types.SourceChange) (*BuildSummary, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	summary := newSummary()
	changed := make(map[string]struct{}, len(changes))

	for _, change := range changes {
		key := e.applyChange(ctx, change, summary)
		if key != "" {
			changed[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(changed))
	for key := range changed {
		keys = append(keys, key)
	}
	return e.revalidate(ctx, keys, summary)
}

// BuildAll revalidates every known unit. Cached renders still apply; use
// InvalidateRenderCache first to force full re-rendering.
func (e *Engine) BuildAll(ctx context.Context) (*BuildSummary, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	var keys []string
	keys = append(keys, e.registry.AllIDs()...)
	e.stateMu.RLock()
	for id := range e.pages {
		keys = append(keys, pageKey(id))
	}
	e.stateMu.RUnlock()

	return e.revalidate(ctx, keys, newSummary())
}

// InvalidateRenderCache makes every cached render stale and marks all units
// invalid. Called when something outside the dependency graph changes, such
// as the site variables file.
func (e *Engine) InvalidateRenderCache() {
	e.cacheEpoch.Add(1)
	e.stateMu.Lock()
	for key := range e.states {
		e.states[key] = types.StateInvalid
	}
	e.stateMu.Unlock()
}

// applyChange ingests a single source change and returns the graph key to
// invalidate, or "" when nothing structural changed.
func (e *Engine) applyChange(ctx context.Context, change types.SourceChange, summary *BuildSummary) string {
	id := types.IDFromRelPath(change.Path)
	key := keyFor(change.Kind, id)

	// Reprocessing supersedes the unit's earlier diagnostics; failure paths
	// below record fresh ones.
	e.collector.ClearUnit(id)

	if change.Change == types.ChangeRemoved {
		if change.Kind == types.KindContent {
			e.stateMu.Lock()
			delete(e.pages, id)
			delete(e.states, key)
			delete(e.fingerprints, key)
			e.stateMu.Unlock()
		} else {
			e.registry.Remove(id)
			e.stateMu.Lock()
			delete(e.states, key)
			delete(e.fingerprints, key)
			e.stateMu.Unlock()
		}
		// Out-edges go; in-edges stay dangling so dependents revalidate
		// now and again if the id ever comes back.
		e.graph.Remove(key)
		e.outputs.remove(key)
		summary.Removed++
		return key
	}

	unit, err := e.loader.LoadUnit(change)
	if err != nil {
		// The previous unit, if any, stays registered: dependents keep
		// rendering against the last good definition.
		e.collector.AddError(err)
		summary.fail(id, err)
		e.setState(key, types.StateInvalid)
		e.logger.Warn(ctx, err, "unit failed to load",
			"path", change.Path, "unit", id)
		return ""
	}

	if change.Kind == types.KindContent {
		e.stateMu.Lock()
		e.pages[id] = unit
		e.stateMu.Unlock()
	} else if err := e.registry.Register(unit); err != nil {
		e.collector.AddError(err)
		summary.fail(id, err)
		e.logger.Warn(ctx, err, "component registration rejected",
			"path", change.Path, "unit", id)
		return ""
	}

	e.graph.UpdateEdges(key, unit.Targets)
	summary.Loaded++
	return key
}

// revalidate computes the affected closure of the changed keys, recomputes
// fingerprints bottom-up, and re-renders everything invalid. Caller holds
// buildMu.
func (e *Engine) revalidate(ctx context.Context, changedKeys []string, summary *BuildSummary) (*BuildSummary, error) {
	affected := e.graph.AffectedBy(changedKeys)

	// Sweep in units whose validation never finished, so work interrupted
	// by cancellation is retried. Invalid units are not swept: they stay
	// failed until a change touches them or their dependencies.
	e.stateMu.Lock()
	seen := make(map[string]struct{}, len(affected))
	for _, key := range affected {
		seen[key] = struct{}{}
	}
	for key, state := range e.states {
		if state == types.StateUnvalidated || state == types.StateValidating {
			if _, dup := seen[key]; !dup {
				affected = append(affected, key)
				seen[key] = struct{}{}
			}
		}
	}
	for _, key := range affected {
		delete(e.fingerprints, key)
	}

	order := e.graph.TopoOrder(affected)

	// Fingerprints combine bottom-up, so compute them in dependency order
	// while collecting the units that still exist.
	work := make([]renderWork, 0, len(order))
	visiting := make(map[string]bool)
	for _, key := range order {
		unit := e.unitForLocked(key)
		if unit == nil {
			delete(e.states, key)
			continue
		}
		e.states[key] = types.StateInvalid
		work = append(work, renderWork{
			key:  key,
			unit: unit,
			fp:   e.fingerprintLocked(key, visiting),
		})
	}
	e.stateMu.Unlock()

	// Every unit about to re-render drops its stale diagnostics; the render
	// outcomes below re-report whatever still applies.
	for _, item := range work {
		e.collector.ClearUnit(item.unit.ID)
	}

	summary.Total = len(work)
	e.renderAll(ctx, work, summary)

	summary.Generation = e.registry.Generation()
	summary.Duration = time.Since(summary.Started)
	e.metrics.record(summary)

	e.logger.Info(ctx, "build finished",
		"rendered", summary.Rendered,
		"cached", summary.CacheHits,
		"failed", len(summary.Failed),
		"degraded", len(summary.Degraded),
		"duration", summary.Duration.String(),
		"generation", summary.Generation)

	if err := ctx.Err(); err != nil {
		summary.Interrupted = true
		return summary, err
	}
	return summary, nil
}

type renderWork struct {
	key  string
	unit *types.RenderableUnit
	fp   string
}

type renderOutcome struct {
	done        bool
	html        string
	degraded    bool
	cacheHit    bool
	diagnostics []errors.Diagnostic
	err         error
}

// renderAll expands every work item against one registry snapshot on a
// bounded pool. Cancellation is cooperative: it is honored between unit
// renders, never inside one.
func (e *Engine) renderAll(ctx context.Context, work []renderWork, summary *BuildSummary) {
	if len(work) == 0 {
		return
	}

	snapshot := e.registry.Snapshot()
	epoch := e.cacheEpoch.Load()

	outcomes := make([]renderOutcome, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, item := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.setState(item.key, types.StateValidating)
			// Diagnostics are collected from the render result rather than
			// streamed, so cache hits can replay the ones they stand for.
			rend := renderer.New(snapshot, renderer.Options{
				MaxDepth: e.opts.MaxDepth,
				Vars:     e.varLookupFor(item.unit),
			})
			outcomes[i] = e.renderUnit(rend, item, epoch)
			return nil
		})
	}
	// The only group error is cancellation; render failures are carried in
	// the outcomes so one broken unit cannot stop its siblings.
	_ = g.Wait()

	for i, oc := range outcomes {
		item := work[i]
		if !oc.done {
			// Never attempted (batch canceled): back to unvalidated so
			// the next batch sweeps it in.
			e.setState(item.key, types.StateUnvalidated)
			continue
		}
		for _, d := range oc.diagnostics {
			e.collector.Add(d)
		}
		if oc.err != nil {
			e.collector.AddError(oc.err)
			summary.fail(item.unit.ID, oc.err)
			e.setState(item.key, types.StateInvalid)
			continue
		}
		e.outputs.set(item.key, RenderedOutput{
			ID:          item.unit.ID,
			Kind:        item.unit.Kind,
			HTML:        oc.html,
			Degraded:    oc.degraded,
			Fingerprint: item.fp,
			RenderedAt:  time.Now(),
		})
		e.setState(item.key, types.StateValid)
		summary.Rendered++
		if oc.cacheHit {
			summary.CacheHits++
		}
		if oc.degraded {
			summary.Degraded = append(summary.Degraded, item.unit.ID)
		}
	}
}

func (e *Engine) renderUnit(rend *renderer.Renderer, item renderWork, epoch uint64) renderOutcome {
	key := renderCacheKey(item.key, item.fp, epoch)
	if cached, ok := e.renderCache.Get(key); ok {
		return renderOutcome{done: true, html: cached.html, degraded: cached.degraded,
			diagnostics: cached.diagnostics, cacheHit: true}
	}

	var params map[string]string
	if item.unit.Kind == types.KindContent {
		params = item.unit.Metadata
	}
	result, err := rend.Render(item.unit, params, nil)
	if err != nil {
		return renderOutcome{done: true, err: err}
	}

	html := result.HTML
	if item.unit.Kind == types.KindContent {
		for _, process := range e.opts.PostProcess {
			html, err = process(item.unit, html)
			if err != nil {
				return renderOutcome{done: true, diagnostics: result.Diagnostics,
					err: fmt.Errorf("postprocess %s: %w", item.unit.ID, err)}
			}
		}
	}

	e.renderCache.Add(key, cachedRender{html: html, degraded: result.Degraded, diagnostics: result.Diagnostics})
	return renderOutcome{done: true, html: html, degraded: result.Degraded, diagnostics: result.Diagnostics}
}

// varLookupFor scopes @{var(...)} resolution to one render entry. A content
// entry resolves against its own frontmatter before the configured site
// variables; everything below it in the expansion shares the entry's scope.
// Component entries see only the site variables.
func (e *Engine) varLookupFor(entry *types.RenderableUnit) renderer.VarLookup {
	base := e.opts.Vars
	if entry.Kind != types.KindContent || len(entry.Metadata) == 0 {
		return base
	}
	meta := entry.Metadata
	return func(pageID, key string) (string, bool) {
		if value, ok := meta[key]; ok {
			return value, true
		}
		if base == nil {
			return "", false
		}
		return base(pageID, key)
	}
}

// RenderPreview renders one component on demand against the current registry
// state, bypassing cache and stores. Used by the dev server's preview route.
func (e *Engine) RenderPreview(id string) (*renderer.Result, error) {
	rend := renderer.New(e.registry.Snapshot(), renderer.Options{
		MaxDepth: e.opts.MaxDepth,
		Vars:     e.opts.Vars,
	})
	return rend.RenderID(id)
}

// AffectedPages returns the content pages that would have to re-render if the
// given component ids changed, sorted. The dev-server layer uses it to decide
// which output routes to notify browsers about.
func (e *Engine) AffectedPages(componentIDs []string) []string {
	affected := e.graph.AffectedBy(componentIDs)
	pages := make([]string, 0, len(affected))
	for _, key := range affected {
		if kind, id := splitKey(key); kind == types.KindContent {
			pages = append(pages, id)
		}
	}
	sort.Strings(pages)
	return pages
}

// Dependents returns the units that directly invoke the given component.
// Content units come back as their bare page ids.
func (e *Engine) Dependents(componentID string) []string {
	deps := e.graph.Dependents(componentID)
	out := make([]string, 0, len(deps))
	for _, key := range deps {
		_, id := splitKey(key)
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// State reports where a unit currently sits in the validation lifecycle.
func (e *Engine) State(kind types.UnitKind, id string) types.ValidationState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.states[keyFor(kind, id)]
}

// Fingerprint returns a unit's current combined fingerprint.
func (e *Engine) Fingerprint(kind types.UnitKind, id string) (string, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	fp, ok := e.fingerprints[keyFor(kind, id)]
	return fp, ok
}

// PageUnit returns the loaded content unit for id.
func (e *Engine) PageUnit(id string) (*types.RenderableUnit, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	unit, ok := e.pages[id]
	return unit, ok
}

// PageIDs returns the identifiers of all loaded content units, sorted.
func (e *Engine) PageIDs() []string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	ids := make([]string, 0, len(e.pages))
	for id := range e.pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Registry exposes the component registry for listing and previews.
func (e *Engine) Registry() *registry.ComponentRegistry {
	return e.registry
}

// Collector exposes the shared diagnostics collector.
func (e *Engine) Collector() *errors.Collector {
	return e.collector
}

// Metrics returns a point-in-time copy of the build counters.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.snapshot()
}

func (e *Engine) setState(key string, state types.ValidationState) {
	e.stateMu.Lock()
	e.states[key] = state
	e.stateMu.Unlock()
}

// unitForLocked resolves a graph key to its unit. Caller holds stateMu.
func (e *Engine) unitForLocked(key string) *types.RenderableUnit {
	kind, id := splitKey(key)
	if kind == types.KindContent {
		return e.pages[id]
	}
	unit, ok := e.registry.Lookup(id)
	if !ok {
		return nil
	}
	return unit
}
