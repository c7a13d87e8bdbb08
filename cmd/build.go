package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EldroidTech/eldroid-ssg/internal/analyzer"
	"github.com/EldroidTech/eldroid-ssg/internal/config"
	"github.com/EldroidTech/eldroid-ssg/internal/errors"
	"github.com/EldroidTech/eldroid-ssg/internal/minify"
	"github.com/EldroidTech/eldroid-ssg/internal/seo"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the site once and write the output tree",
	Long: `Build the whole site: scan components and content, expand every page, and
write the result to the output directory.

Examples:
  eldroid build                   # Build with .eldroid.yml settings
  eldroid build --release         # Production build (minify + audit)
  eldroid build --output-dir dist # Build to a specific directory
  eldroid build --clean           # Remove stale output first`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().String("input-dir", "", "Content directory (default \"content\")")
	buildCmd.Flags().StringP("output-dir", "o", "", "Output directory (default \"output\")")
	buildCmd.Flags().String("components-dir", "", "Components directory (default \"components\")")
	buildCmd.Flags().Bool("release", false, "Production build: implies --minify and --analyze")
	buildCmd.Flags().Bool("minify", false, "Minify HTML/CSS/JS output")
	buildCmd.Flags().Bool("enable-seo", false, "Inject SEO tags and emit sitemap/robots/RSS")
	buildCmd.Flags().Bool("analyze", false, "Audit the emitted HTML and write reports")
	buildCmd.Flags().Bool("clean", false, "Delete the output directory before building")
	buildCmd.Flags().Int("workers", 0, "Render worker count (default: number of CPUs)")

	viper.BindPFlag("build.input_dir", buildCmd.Flags().Lookup("input-dir"))
	viper.BindPFlag("build.output_dir", buildCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("build.components_dir", buildCmd.Flags().Lookup("components-dir"))
	viper.BindPFlag("build.release", buildCmd.Flags().Lookup("release"))
	viper.BindPFlag("build.minify", buildCmd.Flags().Lookup("minify"))
	viper.BindPFlag("build.enable_seo", buildCmd.Flags().Lookup("enable-seo"))
	viper.BindPFlag("build.analyze", buildCmd.Flags().Lookup("analyze"))
	viper.BindPFlag("build.clean", buildCmd.Flags().Lookup("clean"))
	viper.BindPFlag("build.workers", buildCmd.Flags().Lookup("workers"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger()
	pipe, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Build.Clean {
		if err := os.RemoveAll(cfg.Build.OutputDir); err != nil {
			return fmt.Errorf("failed to clean output directory: %w", err)
		}
	}

	summary, err := pipe.fullBuild(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if err := writeSite(pipe); err != nil {
		return err
	}

	fmt.Println(summary.Report())
	if !summary.OK() {
		return fmt.Errorf("build finished with %d failed unit(s)", len(summary.Failed))
	}
	return nil
}

// writeSite flushes rendered pages, static assets, feeds, and audit reports
// to the output directory.
func writeSite(pipe *pipeline) error {
	cfg := pipe.cfg

	written, err := pipe.engine.WriteTo(cfg.Build.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	pipe.logger.Info(context.Background(), "output written",
		"pages", written, "dir", cfg.Build.OutputDir)

	if err := copyStaticAssets(pipe); err != nil {
		return fmt.Errorf("failed to copy static assets: %w", err)
	}

	if cfg.Build.EnableSEO {
		pages := pipe.sitePages()
		baseURL := pipe.seoConfig.BaseURL
		if err := seo.WriteSitemap(cfg.Build.OutputDir, baseURL, pages); err != nil {
			return fmt.Errorf("failed to write sitemap: %w", err)
		}
		if err := seo.WriteRobots(cfg.Build.OutputDir, baseURL); err != nil {
			return fmt.Errorf("failed to write robots.txt: %w", err)
		}
		if err := seo.WriteRSS(cfg.Build.OutputDir, pipe.seoConfig, pages); err != nil {
			return fmt.Errorf("failed to write RSS feed: %w", err)
		}
	}

	if cfg.Build.Analyze {
		analyses := pipe.analyzePages()
		reportDir := filepath.Join(cfg.Build.OutputDir, "reports")
		if err := analyzer.WriteReports(reportDir, analyses); err != nil {
			return fmt.Errorf("failed to write analysis reports: %w", err)
		}
	}

	return nil
}

// copyStaticAssets mirrors non-template files from the content tree into the
// output tree, minifying CSS/JS on the way when minification is on. Template
// sources are skipped: their rendered form is already written.
func copyStaticAssets(pipe *pipeline) error {
	cfg := pipe.cfg
	root := cfg.Build.InputDir
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	mn := minify.New()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		name := strings.ToLower(d.Name())
		if strings.HasPrefix(name, ".") ||
			strings.HasSuffix(name, ".html") || strings.HasSuffix(name, ".md") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if cfg.Build.Minify {
			out, err := mn.ForPath(path, string(data))
			if err != nil {
				pipe.collector.Add(errors.Diagnostic{
					Kind:     errors.DiagAudit,
					Severity: errors.SeverityWarning,
					UnitID:   rel,
					Message:  fmt.Sprintf("asset minification skipped: %v", err),
				})
			} else {
				data = []byte(out)
			}
		}

		dst := filepath.Join(cfg.Build.OutputDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}
