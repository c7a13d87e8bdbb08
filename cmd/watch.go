package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/EldroidTech/eldroid-ssg/internal/config"
	"github.com/EldroidTech/eldroid-ssg/internal/types"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild the output on every source change, without serving",
	Long: `Run a full build, then keep rebuilding the affected pages and rewriting the
output directory whenever content or components change. Useful alongside an
external web server pointed at the output tree.

Examples:
  eldroid watch
  eldroid watch --output-dir dist --minify`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	if err := writeSite(pipe); err != nil {
		return err
	}
	fmt.Println(summary.Report())

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
		if summary == nil || summary.Interrupted {
			return nil
		}
		if err := writeSite(pipe); err != nil {
			return err
		}
		fmt.Println(summary.Report())
		return nil
	})

	logger.Info(ctx, "watching for changes",
		"content", cfg.Build.InputDir,
		"components", cfg.Build.ComponentsDir,
		"output", cfg.Build.OutputDir)

	<-ctx.Done()
	return nil
}
