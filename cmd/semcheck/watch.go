package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/semcheck/processor/ast"
	"github.com/c360studio/semcheck/rules"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		opts     ScanOptions
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan changed files whenever sources change",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Watch(ctx, opts, debounce)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipCrossFile, "skip-cross-file", false, "Skip the cross-file pass of two-pass scanners")
	cmd.Flags().StringSliceVar(&opts.SkipRules, "skip-rule", nil, "Rule file stem to skip (repeatable)")
	cmd.Flags().StringVar(&opts.Behavior, "behavior", "", "Behavior rule directory to load after common rules")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a batch of changes is scanned")
	return cmd
}

// Watch scans once, then rescans incrementally after each debounced batch of
// source changes until ctx is done.
func (a *App) Watch(ctx context.Context, opts ScanOptions, debounce time.Duration) error {
	w, err := ast.NewWatcher(ast.WatcherConfig{
		RepoRoot:      a.cfg.Repo.Path,
		Extensions:    a.cfg.Scan.Extensions,
		Exclude:       a.cfg.Scan.Exclude,
		DebounceDelay: debounce,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			a.logger.Warn("Failed to stop watcher", "error", err)
		}
	}()

	files, err := a.Discover(ctx)
	if err != nil {
		return err
	}
	w.Seed(files.All())

	if err := a.scanAndPrint(ctx, opts); err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Batches():
			if !ok {
				return nil
			}
			paths := make([]string, 0, len(batch))
			for _, ev := range batch {
				paths = append(paths, ev.Path)
			}
			a.logger.Info("Sources changed, rescanning", "files", paths)
			if err := a.scanAndPrint(ctx, opts); err != nil {
				return err
			}
		}
	}
}

// scanAndPrint runs one scan for watch mode. Scanner failures are printed
// and the loop keeps going; configuration problems end it.
func (a *App) scanAndPrint(ctx context.Context, opts ScanOptions) error {
	res, err := a.Scan(ctx, opts)
	if res != nil {
		a.PrintReport(res.Report)
	}
	var execErr *rules.ExecutionError
	switch {
	case err == nil, errors.As(err, &execErr):
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return err
}
