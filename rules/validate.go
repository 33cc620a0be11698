package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semcheck/domain"
	"github.com/c360studio/semcheck/processor/ast"
	"github.com/c360studio/semcheck/report"
	"github.com/c360studio/semcheck/scanner"
)

// ErrMissingDomainModel is returned before scanning when a domain model is
// required and none was supplied.
var ErrMissingDomainModel = errors.New("domain model is required but was not provided")

// ExecutionError is returned when a scanner fails and the run halts.
type ExecutionError struct {
	RuleFile string
	Scanner  string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule %s: scanner %s failed: %v", e.RuleFile, e.Scanner, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ValidationContext is the input of one validation run.
type ValidationContext struct {
	DomainModel *domain.Model
	// Files are the project files by kind.
	Files ast.FileSet

	// SkipRules are rule file stems to skip.
	SkipRules []string
	// ExcludePaths are doublestar globs or path prefixes removed from Files.
	ExcludePaths []string

	SkipCrossFile bool
	// ScanAll disables the incremental changed-file filter.
	ScanAll                 bool
	MaxCrossFileComparisons int
	RequireDomainModel      bool

	// ReportDir holds prior reports; its newest report's timestamp decides
	// which files changed. Empty means every file is changed.
	ReportDir string
	Behavior  string

	Status scanner.StatusSink
	// Workers bounds parallel file-by-file scanning per rule; 0 or 1 is
	// sequential.
	Workers         int
	ContinueOnError bool

	// Run supplies shared collaborators (sources, cache, metrics). Nil
	// creates a fresh run context.
	Run *scanner.RunContext
}

// OutcomeKind tags how a rule's run ended.
type OutcomeKind int

const (
	Executed OutcomeKind = iota
	LoadFailed
	ExecutionFailed
	Skipped
	NoScanner
)

// Outcome is the tagged result of running one rule.
type Outcome struct {
	Kind       OutcomeKind
	FileByFile []scanner.Violation
	CrossFile  []scanner.Violation
	Err        error
}

// Status maps the outcome onto the report status.
func (o Outcome) Status() report.Status {
	switch o.Kind {
	case LoadFailed:
		return report.StatusLoadFailed
	case ExecutionFailed:
		return report.StatusExecutionFailed
	case Skipped:
		return report.StatusSkipped
	case NoScanner:
		return report.StatusNoScanner
	}
	return report.StatusExecuted
}

// Validate runs every rule in discovery order and returns the report. When
// a scanner fails and ContinueOnError is false, the partial report is
// returned together with an *ExecutionError.
func (s *Set) Validate(ctx context.Context, vc ValidationContext) (*report.Report, error) {
	if vc.RequireDomainModel && vc.DomainModel == nil {
		return nil, ErrMissingDomainModel
	}
	run, release := s.runContext(vc)
	defer release()
	logger := run.Log()

	all := FilterFiles(vc.Files, vc.ExcludePaths)
	changed := ChangedFiles(all, vc.ReportDir, vc.ScanAll, logger)
	skip := make(map[string]bool, len(vc.SkipRules))
	for _, name := range vc.SkipRules {
		skip[name] = true
	}

	rep := report.New(vc.Behavior)
	for _, rule := range s.Rules {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		start := time.Now()
		outcome := s.runRule(ctx, run, rule, all, changed, vc, skip[rule.Stem()])
		if outcome.Err != nil && ctx.Err() != nil {
			return rep, ctx.Err()
		}
		entry := newEntry(rule, outcome)
		rep.Add(entry)

		run.Metrics.RuleFinished(rule.Stem(), string(entry.ScannerStatus.Status), time.Since(start))
		countViolations(run, rule, outcome)

		if outcome.Kind == ExecutionFailed {
			logger.Error("Scanner failed", "rule", rule.File, "scanner", rule.Definition.Scanner, "error", outcome.Err)
			if !vc.ContinueOnError {
				return rep, &ExecutionError{RuleFile: rule.File, Scanner: rule.Definition.Scanner, Err: outcome.Err}
			}
		}
	}
	return rep, nil
}

// runContext derives the run for vc. release closes the source set when the
// run did not come with one; callers own sources they pass in.
func (s *Set) runContext(vc ValidationContext) (*scanner.RunContext, func()) {
	rc := scanner.RunContext{Logger: s.opts.Logger}
	if vc.Run != nil {
		rc = *vc.Run
	}
	if vc.DomainModel != nil {
		rc.Domain = vc.DomainModel
	}
	if vc.Status != nil {
		rc.Status = vc.Status
	}
	owned := rc.Sources == nil
	run := scanner.NewRunContext(rc)
	if !owned {
		return run, func() {}
	}
	return run, run.Sources.Close
}

func (s *Set) runRule(ctx context.Context, run *scanner.RunContext, rule *Rule, all, changed ast.FileSet, vc ValidationContext, skipped bool) Outcome {
	name := rule.Name
	if skipped {
		run.Progress(scanner.ProgressUpdate{Rule: name, Phase: scanner.PhaseSkip, Message: "skipped by request"})
		return Outcome{Kind: Skipped}
	}
	if rule.Definition.Scanner == "" {
		run.Progress(scanner.ProgressUpdate{Rule: name, Phase: scanner.PhaseDone, Message: "no scanner"})
		return Outcome{Kind: NoScanner}
	}
	sc, err := rule.Scanner()
	if err != nil {
		run.Progress(scanner.ProgressUpdate{Rule: name, Phase: scanner.PhaseDone, Message: "load failed: " + err.Error()})
		return Outcome{Kind: LoadFailed, Err: err}
	}

	kind := sc.Family().FileKind()
	files := changed[kind]
	run.Progress(scanner.ProgressUpdate{Rule: name, Phase: scanner.PhaseStart, Total: len(files),
		Message: fmt.Sprintf("%s over %d changed of %d %s files", sc.ID(), len(files), len(all[kind]), kind)})

	out := Outcome{Kind: Executed}
	out.FileByFile, err = scanFiles(ctx, run, rule, sc, files, vc.Workers)
	if err != nil {
		return Outcome{Kind: ExecutionFailed, Err: err}
	}

	if cf, ok := scanner.IsTwoPass(sc); ok && !vc.SkipCrossFile {
		out.CrossFile, err = cf.ScanCrossFile(ctx, scanner.CrossFileRequest{
			Run:            run,
			Rule:           rule.Ref(),
			Changed:        files,
			All:            all[kind],
			MaxComparisons: vc.MaxCrossFileComparisons,
		})
		if err != nil {
			return Outcome{Kind: ExecutionFailed, FileByFile: out.FileByFile, Err: fmt.Errorf("cross-file pass: %w", err)}
		}
	}

	if sev, ok := rule.SeverityOverride(); ok {
		out.FileByFile = withSeverity(out.FileByFile, sev)
		out.CrossFile = withSeverity(out.CrossFile, sev)
	}
	if out.FileByFile == nil {
		out.FileByFile = []scanner.Violation{}
	}
	if out.CrossFile == nil {
		out.CrossFile = []scanner.Violation{}
	}
	rule.fileViolations = out.FileByFile
	rule.crossViolations = out.CrossFile

	run.Progress(scanner.ProgressUpdate{Rule: name, Phase: scanner.PhaseDone, Done: len(files), Total: len(files),
		Message: fmt.Sprintf("%d violations", len(out.FileByFile)+len(out.CrossFile))})
	return out
}

// scanFiles runs the file-by-file pass. Results keep the order of files
// whatever the worker count.
func scanFiles(ctx context.Context, run *scanner.RunContext, rule *Rule, sc scanner.Scanner, files []string, workers int) ([]scanner.Violation, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([][]scanner.Violation, len(files))
	var done atomic.Int64
	start := time.Now()
	ref := rule.Ref()
	family := string(sc.Family())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mod, err := run.Sources.Get(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				run.Log().Warn("Skipping file that failed to parse", "file", path, "error", err)
				run.Metrics.ParseError()
				return nil
			}
			vs, err := sc.ScanFile(gctx, scanner.FileRequest{Run: run, File: mod, Rule: ref})
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = vs
			run.Metrics.FileScanned(family)

			n := int(done.Add(1))
			run.Progress(scanner.NewProgress(rule.Name, scanner.PhaseFile, n, len(files), start, path))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []scanner.Violation
	for _, vs := range results {
		out = append(out, vs...)
	}
	return out, nil
}

func withSeverity(vs []scanner.Violation, sev scanner.Severity) []scanner.Violation {
	if vs == nil {
		return nil
	}
	out := make([]scanner.Violation, len(vs))
	for i, v := range vs {
		out[i] = v.WithSeverity(sev)
	}
	return out
}

func countViolations(run *scanner.RunContext, rule *Rule, o Outcome) {
	bySeverity := make(map[scanner.Severity]int)
	for _, v := range o.FileByFile {
		bySeverity[v.Severity]++
	}
	for _, v := range o.CrossFile {
		bySeverity[v.Severity]++
	}
	for sev, n := range bySeverity {
		run.Metrics.Violations(rule.Stem(), string(sev), n)
	}
}

func newEntry(rule *Rule, o Outcome) report.Entry {
	e := report.Entry{
		RuleFile:    rule.File,
		RuleContent: rule.Content(),
		RuleName:    rule.Name,
		Priority:    rule.PriorityValue(),
		ScannerStatus: report.ScannerStatus{
			Status:      o.Status(),
			ScannerPath: rule.Definition.Scanner,
		},
	}
	switch o.Kind {
	case Executed:
		n := len(o.FileByFile) + len(o.CrossFile)
		e.ScannerStatus.ViolationsFound = &n
		e.ScannerResults = &report.ScannerResults{FileByFile: o.FileByFile, CrossFile: o.CrossFile}
	case LoadFailed, ExecutionFailed:
		e.ScannerStatus.Error = o.Err.Error()
	}
	return e
}

// FilterFiles drops excluded paths and returns sorted copies per kind.
func FilterFiles(files ast.FileSet, exclude []string) ast.FileSet {
	out := make(ast.FileSet, len(files))
	for kind, paths := range files {
		kept := make([]string, 0, len(paths))
		for _, p := range paths {
			if len(exclude) > 0 && ast.MatchAny(exclude, p) {
				continue
			}
			kept = append(kept, p)
		}
		sort.Strings(kept)
		out[kind] = kept
	}
	return out
}

// ChangedFiles returns the files modified after the newest report in
// reportDir. With scanAll, no reportDir or no prior report, every file is
// changed. The result is always a subset of all.
func ChangedFiles(all ast.FileSet, reportDir string, scanAll bool, logger *slog.Logger) ast.FileSet {
	if logger == nil {
		logger = slog.Default()
	}
	if scanAll || reportDir == "" {
		return all
	}
	_, since, err := report.FindLatest(reportDir)
	if err != nil {
		if !errors.Is(err, report.ErrNoReport) {
			logger.Warn("Cannot read prior reports, scanning all files", "dir", reportDir, "error", err)
		}
		return all
	}
	logger.Debug("Incremental scan", "since", since)

	out := make(ast.FileSet, len(all))
	for kind, paths := range all {
		kept := make([]string, 0, len(paths))
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil || info.ModTime().After(since) {
				kept = append(kept, p)
			}
		}
		out[kind] = kept
	}
	return out
}
