package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EldroidTech/eldroid-ssg/internal/analyzer"
	"github.com/EldroidTech/eldroid-ssg/internal/config"
	"github.com/EldroidTech/eldroid-ssg/internal/content"
	"github.com/EldroidTech/eldroid-ssg/internal/engine"
	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/logging"
	"github.com/EldroidTech/eldroid-ssg/internal/minify"
	"github.com/EldroidTech/eldroid-ssg/internal/registry"
	"github.com/EldroidTech/eldroid-ssg/internal/scanner"
	"github.com/EldroidTech/eldroid-ssg/internal/seo"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
	"github.com/EldroidTech/eldroid-ssg/internal/vars"
)

// pipeline wires the site sources to the build engine: variables, the
// component registry, the engine with its post-processors, and the scanner
// that feeds both the initial walk and watch mode.
type pipeline struct {
	cfg       *config.Config
	logger    logging.Logger
	collector *errors.Collector
	engine    *engine.Engine
	scanner   *scanner.Scanner
	vars      *vars.Store
	seoConfig seo.Config
}

// newPipeline assembles a build pipeline from the loaded configuration.
func newPipeline(cfg *config.Config, logger logging.Logger) (*pipeline, error) {
	if err := vars.LoadDotenv("."); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	store, err := vars.Load(".", cfg.Build.Release)
	if err != nil {
		return nil, fmt.Errorf("failed to load site variables: %w", err)
	}

	seoCfg, err := seo.LoadConfig(seo.DefaultConfigFile)
	if err != nil {
		return nil, err
	}
	if seoCfg == nil {
		seoCfg = &seo.Config{
			SiteName:           cfg.Site.Name,
			BaseURL:            cfg.Site.BaseURL,
			DefaultDescription: cfg.Site.Description,
		}
	}

	collector := errors.NewCollector()

	var post []engine.PostProcessor
	if cfg.Build.EnableSEO {
		post = append(post, seoProcessor(*seoCfg, collector))
	}
	if cfg.Build.Minify {
		post = append(post, minify.Processor(collector))
	}

	eng, err := engine.New(registry.NewComponentRegistry(), engine.Options{
		Workers:     cfg.Build.Workers,
		MaxDepth:    cfg.Build.MaxDepth,
		Vars:        store.Lookup,
		PostProcess: post,
		Logger:      logger.WithComponent("engine"),
		Collector:   collector,
	})
	if err != nil {
		return nil, err
	}

	ignore := append([]string{cfg.Build.OutputDir}, cfg.Watch.Ignore...)
	return &pipeline{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		engine:    eng,
		scanner:   scanner.New(cfg.Build.ComponentsDir, cfg.Build.InputDir, ignore),
		vars:      store,
		seoConfig: *seoCfg,
	}, nil
}

// seoProcessor derives each page's SEO data from its frontmatter, applies any
// inline override comment, and injects the missing tags. SEO problems degrade
// to warnings; the page still ships.
func seoProcessor(cfg seo.Config, collector *errors.Collector) engine.PostProcessor {
	return func(unit *types.RenderableUnit, doc string) (string, error) {
		page := seo.FromMetadata(unit.ID, unit.Metadata)
		override, err := seo.ParseInlineOverride(doc)
		if err != nil {
			collector.Add(errors.Diagnostic{
				Kind:     errors.DiagAudit,
				Severity: errors.SeverityWarning,
				UnitID:   unit.ID,
				Message:  fmt.Sprintf("invalid inline SEO override: %v", err),
			})
		} else if override != nil {
			page = page.Merge(override)
		}

		out, err := seo.Apply(doc, page, cfg)
		if err != nil {
			collector.Add(errors.Diagnostic{
				Kind:     errors.DiagAudit,
				Severity: errors.SeverityWarning,
				UnitID:   unit.ID,
				Message:  fmt.Sprintf("SEO injection skipped: %v", err),
			})
			return doc, nil
		}
		return out, nil
	}
}

// fullBuild walks the source roots and runs one complete build generation.
func (p *pipeline) fullBuild(ctx context.Context) (*engine.BuildSummary, error) {
	changes, err := p.scanner.ScanAll()
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	if len(changes) == 0 {
		p.logger.Warn(ctx, nil, "no source files found",
			"content", p.cfg.Build.InputDir, "components", p.cfg.Build.ComponentsDir)
	}
	return p.engine.ApplyChanges(ctx, changes)
}

// sitePages assembles the feed generators' view of the rendered site.
func (p *pipeline) sitePages() []seo.SitePage {
	pages := make([]seo.SitePage, 0)
	for _, out := range p.engine.Pages() {
		page := seo.FromMetadata(out.ID, metadataFor(p.engine, out.ID))
		pages = append(pages, seo.SitePage{
			ID:      out.ID,
			Route:   content.RouteURL(out.ID),
			LastMod: out.RenderedAt,
			Page:    page,
		})
	}
	return pages
}

func metadataFor(eng *engine.Engine, id string) map[string]string {
	if unit, ok := eng.PageUnit(id); ok {
		return unit.Metadata
	}
	return nil
}

// analyzePages audits every rendered page and returns the per-page reports.
func (p *pipeline) analyzePages() []*analyzer.PageAnalysis {
	aud := analyzer.New(p.collector)
	analyses := make([]*analyzer.PageAnalysis, 0)
	for _, out := range p.engine.Pages() {
		analyses = append(analyses, aud.AnalyzePage(out.ID, out.HTML))
	}
	return analyses
}

// buildRunner serializes watch-mode builds and cancels the in-flight build
// when a newer batch arrives. Cancellation is cooperative: units already
// rendering finish, units not yet started move to the superseding build.
type buildRunner struct {
	pipe  *pipeline
	mutex sync.Mutex
	abort context.CancelFunc
}

func newBuildRunner(pipe *pipeline) *buildRunner {
	return &buildRunner{pipe: pipe}
}

// run applies one change batch as its own build generation.
func (r *buildRunner) run(ctx context.Context, changes []types.SourceChange) (*engine.BuildSummary, error) {
	r.mutex.Lock()
	if r.abort != nil {
		r.abort()
	}
	buildCtx, cancel := context.WithCancel(ctx)
	r.abort = cancel
	r.mutex.Unlock()

	start := time.Now()
	summary, err := r.pipe.engine.ApplyChanges(buildCtx, changes)
	if err != nil && buildCtx.Err() != nil && ctx.Err() == nil {
		// Superseded, not failed: the next batch re-renders what this one
		// did not reach.
		r.pipe.logger.Info(ctx, "build superseded by newer changes",
			"elapsed", time.Since(start).String())
		return summary, nil
	}
	return summary, err
}
