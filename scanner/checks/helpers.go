package checks

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("duplicate_helper_definition", func(env scanner.Env) scanner.Scanner {
		return &duplicateHelpers{
			check:  newCheck("duplicate_helper_definition", scanner.FamilyTest, scanner.SeverityWarning, env),
			ignore: toSet(env.Params.Strings("ignore", nil)),
		}
	})
}

// hookNames are pytest and unittest hooks every test module may define.
var hookNames = map[string]bool{
	"setup": true, "teardown": true,
	"setup_module": true, "teardown_module": true,
	"setup_function": true, "teardown_function": true,
	"setup_method": true, "teardown_method": true,
	"setup_class": true, "teardown_class": true,
	"setUp": true, "tearDown": true,
}

type duplicateHelpers struct {
	check
	ignore map[string]bool
}

// RequiresTwoPass implements scanner.CrossFileScanner.
func (s *duplicateHelpers) RequiresTwoPass() bool { return true }

// ScanFile reports nothing: duplication only shows across files.
func (s *duplicateHelpers) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	return nil, nil
}

type helperSite struct {
	file string
	line int
}

// ScanCrossFile collects module-level helpers and fixtures across every test
// file and reports each name defined in more than one of them, anchored on a
// changed file.
func (s *duplicateHelpers) ScanCrossFile(ctx context.Context, req scanner.CrossFileRequest) ([]scanner.Violation, error) {
	run := req.Run
	if run == nil {
		run = scanner.NewRunContext(scanner.RunContext{Logger: s.logger})
	}
	changed := make(map[string]bool, len(req.Changed))
	for _, c := range req.Changed {
		changed[c] = true
	}

	sites := make(map[string][]helperSite)
	for _, path := range req.All {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod, err := run.Sources.Get(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			run.Log().Warn("Skipping unparsable test file", "file", path, "error", err)
			continue
		}
		for _, fn := range mod.Functions() {
			if s.isSharedHelper(fn) {
				sites[fn.Name] = append(sites[fn.Name], helperSite{file: path, line: fn.LineNumber()})
			}
		}
	}

	names := make([]string, 0, len(sites))
	for name := range sites {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []scanner.Violation
	for _, name := range names {
		defs := sites[name]
		files := distinctFiles(defs)
		if len(files) < 2 {
			continue
		}
		anchor, ok := firstChanged(defs, changed)
		if !ok {
			continue
		}
		out = append(out, scanner.NewViolation(req.Rule, anchor.file, anchor.line, s.severity,
			"Helper '"+name+"' is defined in "+plural(len(files), "test file")+
				"; move it to a shared conftest.py or helper module: "+strings.Join(files, ", ")))
	}
	return out, nil
}

func (s *duplicateHelpers) isSharedHelper(fn *python.Function) bool {
	if fn.Class != nil || fn.Parent != nil || fn.IsTestFunction() {
		return false
	}
	if strings.HasPrefix(fn.Name, "pytest_") || hookNames[fn.Name] || s.ignore[strings.ToLower(fn.Name)] {
		return false
	}
	return true
}

func distinctFiles(defs []helperSite) []string {
	seen := make(map[string]bool)
	var files []string
	for _, d := range defs {
		if !seen[d.file] {
			seen[d.file] = true
			files = append(files, filepath.ToSlash(d.file))
		}
	}
	sort.Strings(files)
	return files
}

func firstChanged(defs []helperSite, changed map[string]bool) (helperSite, bool) {
	for _, d := range defs {
		if changed[d.file] {
			return d, true
		}
	}
	return helperSite{}, false
}
