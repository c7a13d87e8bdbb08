package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EldroidTech/eldroid-ssg/internal/config"
	"github.com/EldroidTech/eldroid-ssg/internal/server"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
	"github.com/EldroidTech/eldroid-ssg/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the development server with live reload",
	Long: `Build the site, watch the sources, and serve rendered pages from memory.
Connected browsers reload automatically on each successful rebuild; pages
that fail to build keep serving their last good output while the error is
reported on the diagnostic stream.

Examples:
  eldroid serve                   # Serve on localhost:8080
  eldroid serve --port 3000       # Custom port
  eldroid serve --host 0.0.0.0    # Listen on all interfaces`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("host", "H", "", "Host to bind (default \"localhost\")")
	serveCmd.Flags().IntP("port", "p", 0, "Port to bind (default 8080)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger()
	pipe, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipe.fullBuild(ctx)
	if err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}
	fmt.Println(summary.Report())

	srv := server.New(pipe.engine, server.Options{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		StaticDir: cfg.Build.InputDir,
		Logger:    logger.WithComponent("server"),
	})

	w, err := startWatching(ctx, pipe, cfg)
	if err != nil {
		return err
	}
	defer w.Stop()

	runner := newBuildRunner(pipe)
	w.AddHandler(func(hctx context.Context, changes []types.SourceChange) error {
		summary, err := runner.run(hctx, changes)
		if err != nil {
			return err
		}
		srv.NotifyBuild(summary)
		if summary != nil && !summary.OK() {
			fmt.Println(summary.Report())
		}
		return nil
	})

	logger.Info(ctx, "development server ready",
		"url", fmt.Sprintf("http://%s", srv.Addr()),
		"pages", len(pipe.engine.PageIDs()),
		"components", pipe.engine.Registry().Count())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startWatching configures the filesystem watcher over both source roots and
// launches its loops. Handlers added afterwards see every later batch.
func startWatching(ctx context.Context, pipe *pipeline, cfg *config.Config) (*watcher.Watcher, error) {
	w, err := watcher.New(pipe.scanner, time.Duration(cfg.Watch.DebounceMS)*time.Millisecond, pipe.logger.WithComponent("watcher"))
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.WatchRoot(cfg.Build.ComponentsDir); err != nil {
		return nil, fmt.Errorf("failed to watch components: %w", err)
	}
	if err := w.WatchRoot(cfg.Build.InputDir); err != nil {
		return nil, fmt.Errorf("failed to watch content: %w", err)
	}
	w.Start(ctx)
	return w, nil
}
