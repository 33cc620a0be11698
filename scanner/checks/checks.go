// Package checks is the structural rule-check catalog: independent scanners
// that each match one code pattern and report it with a fixed message
// template. Every scanner registers itself in scanner.DefaultRegistry.
package checks

import (
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/domain"
	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

// check carries what every catalog scanner shares.
type check struct {
	scanner.Base
	severity scanner.Severity
	params   scanner.Params
	logger   *slog.Logger
}

func newCheck(id string, family scanner.Family, def scanner.Severity, env scanner.Env) check {
	sev := def
	if s, err := scanner.ParseSeverity(env.Params.String("severity", "")); err == nil {
		sev = s
	}
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return check{
		Base:     scanner.NewBase(id, family),
		severity: sev,
		params:   env.Params,
		logger:   logger.With("scanner", id),
	}
}

func (c check) report(req scanner.FileRequest, line int, format string, args ...any) scanner.Violation {
	return req.Violation(line, c.severity, fmt.Sprintf(format, args...))
}

// register adds a catalog scanner whose constructor cannot fail.
func register(id string, build func(env scanner.Env) scanner.Scanner) {
	scanner.Register(id, func(env scanner.Env) (scanner.Scanner, error) {
		return build(env), nil
	})
}

// testFunctions returns the test functions of m, methods of test classes
// included.
func testFunctions(m *python.Module) []*python.Function {
	var out []*python.Function
	for _, fn := range m.Functions() {
		if fn.IsTestFunction() {
			out = append(out, fn)
		}
	}
	return out
}

// domainModel returns the run's domain model, nil when none was loaded.
func domainModel(req scanner.FileRequest) *domain.Model {
	if req.Run == nil {
		return nil
	}
	return req.Run.Domain
}

// toSet builds a lookup from a word list, lowercased.
func toSet(words []string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[strings.ToLower(w)] = true
	}
	return out
}

// nameWords splits an identifier into lowercase words, ignoring leading and
// trailing underscores.
func nameWords(name string) []string {
	return domain.SplitWords(strings.Trim(name, "_"))
}

// walkFunctionBody visits fn's body without entering nested definitions.
func walkFunctionBody(fn *python.Function, visit func(*sitter.Node) bool) {
	python.WalkBody(fn.Body(), visit)
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
