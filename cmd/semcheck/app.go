package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/c360studio/semcheck/config"
	"github.com/c360studio/semcheck/domain"
	"github.com/c360studio/semcheck/metrics"
	"github.com/c360studio/semcheck/processor/ast"
	"github.com/c360studio/semcheck/report"
	"github.com/c360studio/semcheck/rules"
	"github.com/c360studio/semcheck/scanner"
	"github.com/c360studio/semcheck/scanner/duplicates"
	"github.com/c360studio/semcheck/storage"
)

// App is the main application that wires together all components.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	metrics *metrics.Recorder
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger, out io.Writer) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		metrics: metrics.NewRecorder(),
	}
}

// ScanOptions are the per-invocation overrides of the scan command.
type ScanOptions struct {
	All             bool
	SkipCrossFile   bool
	ContinueOnError bool
	SkipRules       []string
	Exclude         []string
	Behavior        string
	Formats         []report.Format
	Workers         int
	DomainModel     string
}

// ScanResult is a finished run.
type ScanResult struct {
	Report *report.Report
	// Paths are the written report files.
	Paths []string
}

// LoadRules discovers and loads the rules for behavior, or the configured
// behavior when empty.
func (a *App) LoadRules(behavior string) (*rules.Set, error) {
	if behavior == "" {
		behavior = a.cfg.Rules.Behavior
	}
	return rules.DiscoverAndLoad(a.cfg.RuleDirs(), behavior, rules.LoadOptions{
		ScannerParams: a.cfg.ScannerParams(),
		Logger:        a.logger,
	})
}

// Discover lists the project's source files.
func (a *App) Discover(ctx context.Context) (ast.FileSet, error) {
	return ast.Discover(ctx, a.cfg.Repo.Path, ast.DiscoverOptions{
		Extensions:   a.cfg.Scan.Extensions,
		TestPatterns: a.cfg.Scan.TestPatterns,
		Exclude:      a.cfg.Scan.Exclude,
	})
}

func (a *App) loadDomain(path string) (*domain.Model, error) {
	if path == "" {
		path = a.cfg.Domain.Model
	}
	if path == "" {
		return nil, nil
	}
	m, err := domain.LoadFile(a.cfg.ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("load domain model: %w", err)
	}
	return m, nil
}

// openCache returns the shared KV cache when one is configured. Without one
// the nil store lets each scanner open its own directory under CacheDir.
func (a *App) openCache(ctx context.Context) (storage.Store, func(), error) {
	if a.cfg.Scan.CacheURL == "" {
		return nil, func() {}, nil
	}
	kv, err := storage.ConnectKV(ctx, a.cfg.Scan.CacheURL, a.cfg.Scan.CacheBucket)
	if err != nil {
		return nil, nil, fmt.Errorf("open block cache: %w", err)
	}
	return kv, func() {
		if err := kv.Close(); err != nil {
			a.logger.Warn("Failed to close block cache", "error", err)
		}
	}, nil
}

// cacheStore returns the store `cache clear` empties.
func (a *App) cacheStore(ctx context.Context) (storage.Store, func(), error) {
	store, closeFn, err := a.openCache(ctx)
	if err != nil || store != nil {
		return store, closeFn, err
	}
	fs, err := storage.NewFileStore(filepath.Join(a.cfg.ResolvePath(a.cfg.Scan.CacheDir), duplicates.CacheSubdir))
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {}, nil
}

// Scan runs every rule over the project, writes the reports and publishes
// them when NATS is configured. The report is returned even when the run
// halted on a scanner failure.
func (a *App) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	set, err := a.LoadRules(opts.Behavior)
	if err != nil {
		return nil, err
	}
	model, err := a.loadDomain(opts.DomainModel)
	if err != nil {
		return nil, err
	}
	files, err := a.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}
	a.logger.Info("Discovered files",
		"code", len(files[ast.KindCode]),
		"test", len(files[ast.KindTest]),
		"rules", len(set.Rules))

	cache, closeCache, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	run := scanner.NewRunContext(scanner.RunContext{
		Sources:  scanner.NewSourceSet(nil),
		Cache:    cache,
		CacheDir: a.cfg.ResolvePath(a.cfg.Scan.CacheDir),
		Logger:   a.logger,
		Metrics:  a.metrics,
		Status:   scanner.LogStatus{Logger: a.logger},
	})
	defer run.Sources.Close()

	workers := opts.Workers
	if workers == 0 {
		workers = a.cfg.Scan.Workers
	}
	behavior := opts.Behavior
	if behavior == "" {
		behavior = a.cfg.Rules.Behavior
	}
	reportDir := a.cfg.ResolvePath(a.cfg.Report.Dir)

	rep, verr := set.Validate(ctx, rules.ValidationContext{
		DomainModel:             model,
		Files:                   files,
		SkipRules:               append(append([]string(nil), a.cfg.Rules.Skip...), opts.SkipRules...),
		ExcludePaths:            opts.Exclude,
		SkipCrossFile:           opts.SkipCrossFile || a.cfg.Scan.SkipCrossFile,
		ScanAll:                 opts.All,
		MaxCrossFileComparisons: a.cfg.Scan.MaxCrossFileComparisons,
		RequireDomainModel:      a.cfg.Domain.Required,
		ReportDir:               reportDir,
		Behavior:                behavior,
		Workers:                 workers,
		ContinueOnError:         opts.ContinueOnError || a.cfg.Scan.ContinueOnError,
		Run:                     run,
	})
	if rep == nil {
		return nil, verr
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = a.cfg.ReportFormats()
	}
	paths, err := report.Save(reportDir, rep, formats...)
	if err != nil {
		return nil, errors.Join(verr, fmt.Errorf("save report: %w", err))
	}
	a.logger.Debug("Wrote reports", "paths", paths)

	if a.cfg.Report.NATSURL != "" {
		if err := a.publish(ctx, rep); err != nil {
			a.logger.Warn("Failed to publish report", "url", a.cfg.Report.NATSURL, "error", err)
		}
	}
	if a.cfg.Report.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.ResolvePath(a.cfg.Report.MetricsFile)); err != nil {
			a.logger.Warn("Failed to write metrics", "path", a.cfg.Report.MetricsFile, "error", err)
		}
	}

	return &ScanResult{Report: rep, Paths: paths}, verr
}

func (a *App) publish(ctx context.Context, rep *report.Report) error {
	pub, err := report.DialNATS(a.cfg.Report.NATSURL, a.cfg.Report.NATSSubject)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("Failed to close NATS connection", "error", err)
		}
	}()
	if err := pub.Publish(ctx, rep); err != nil {
		return err
	}
	a.logger.Info("Published report", "subject", pub.Subject(), "run_id", rep.RunID)
	return nil
}

// PrintReport writes the styled status lines and the summary.
func (a *App) PrintReport(rep *report.Report) {
	for _, line := range rep.StatusLines() {
		fmt.Fprintln(a.out, styleStatusLine(line))
	}
	fmt.Fprintln(a.out)
	fmt.Fprint(a.out, rep.Summary())
}
