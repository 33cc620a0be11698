package checks

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("guard_clause", func(env scanner.Env) scanner.Scanner {
		return &guardClause{check: newCheck("guard_clause", scanner.FamilyCode, scanner.SeverityWarning, env)}
	})
	register("mixed_responsibilities", func(env scanner.Env) scanner.Scanner {
		return &mixedResponsibilities{
			check:           newCheck("mixed_responsibilities", scanner.FamilyCode, scanner.SeverityWarning, env),
			minComputations: env.Params.Int("min_computations", 3),
		}
	})
}

type guardClause struct {
	check
}

// ScanFile flags defensive existence checks on required parameters. A
// check that raises immediately is fail-fast and allowed; so is any check on
// a parameter that is optional by default or annotation.
func (s *guardClause) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range m.Functions() {
		if fn.IsTestFunction() {
			continue
		}
		required := make(map[string]bool)
		for _, p := range fn.ExplicitParameters() {
			if p.Kind != python.ParamVarArgs && p.Kind != python.ParamVarKwargs && !p.IsOptional() {
				required[p.Name] = true
			}
		}
		if len(required) == 0 {
			continue
		}

		walkFunctionBody(fn, func(n *sitter.Node) bool {
			if n.Type() != "if_statement" {
				return true
			}
			name := existenceCheckTarget(m, n.ChildByFieldName("condition"))
			if name == "" || !required[name] || raisesImmediately(n.ChildByFieldName("consequence")) {
				return true
			}
			out = append(out, s.report(req, python.StartLine(n),
				"Function '%s' defensively checks required parameter '%s' with 'if %s'; trust required inputs or fail fast with raise",
				fn.QualifiedName(), name, m.Text(n.ChildByFieldName("condition"))))
			return true
		})
	}
	return out, nil
}

// existenceCheckTarget returns the identifier tested by "x", "not x",
// "x is None", "x is not None", "x == None" or "x != None".
func existenceCheckTarget(m *python.Module, cond *sitter.Node) string {
	if cond == nil {
		return ""
	}
	switch cond.Type() {
	case "identifier":
		return m.Text(cond)
	case "not_operator":
		arg := cond.ChildByFieldName("argument")
		if arg != nil && arg.Type() == "identifier" {
			return m.Text(arg)
		}
	case "parenthesized_expression":
		if cond.NamedChildCount() == 1 {
			return existenceCheckTarget(m, cond.NamedChild(0))
		}
	case "comparison_operator":
		if cond.NamedChildCount() != 2 {
			return ""
		}
		left, right := cond.NamedChild(0), cond.NamedChild(1)
		if left.Type() != "identifier" || right.Type() != "none" {
			return ""
		}
		switch strings.Join(python.Operators(cond), " ") {
		case "is", "is not", "==", "!=":
			return m.Text(left)
		}
	}
	return ""
}

func raisesImmediately(block *sitter.Node) bool {
	stmts := python.Statements(block)
	return len(stmts) > 0 && python.Kind(stmts[0]) == python.StmtRaise
}

type mixedResponsibilities struct {
	check
	minComputations int
}

// ioCallees are calls that reach outside the process.
var ioCallees = map[string]bool{
	"open": true, "print": true, "input": true,
}

var ioPrefixes = []string{
	"requests.", "urllib.", "httpx.", "socket.", "subprocess.", "shutil.",
	"os.remove", "os.rename", "os.makedirs", "os.listdir", "json.dump", "json.load",
	"pickle.dump", "pickle.load", "csv.", "sqlite3.",
}

var ioMethods = map[string]bool{
	"read": true, "write": true, "readlines": true, "writelines": true,
	"commit": true, "execute": true, "executemany": true, "fetchone": true, "fetchall": true,
	"send": true, "sendall": true, "recv": true, "read_text": true, "write_text": true,
	"read_bytes": true, "write_bytes": true, "urlopen": true,
}

// IOCalls returns the distinct I/O callees of fn, sorted.
func IOCalls(fn *python.Function) []string {
	seen := make(map[string]bool)
	for _, callee := range fn.Calls() {
		if isIOCall(callee) {
			seen[callee] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func isIOCall(callee string) bool {
	if ioCallees[callee] {
		return true
	}
	for _, p := range ioPrefixes {
		if strings.HasPrefix(callee, p) {
			return true
		}
	}
	return strings.Contains(callee, ".") && ioMethods[python.LastName(callee)]
}

// computations counts arithmetic and comparison operations in fn.
func computations(fn *python.Function) int {
	n := 0
	walkFunctionBody(fn, func(node *sitter.Node) bool {
		switch node.Type() {
		case "binary_operator", "augmented_assignment", "comparison_operator":
			n++
		}
		return true
	})
	return n
}

// ScanFile flags functions that perform I/O and also compute.
func (s *mixedResponsibilities) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if fn.IsTestFunction() {
			continue
		}
		io := IOCalls(fn)
		if len(io) == 0 {
			continue
		}
		if c := computations(fn); c >= s.minComputations {
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' mixes I/O (%s) with computation (%s); separate the calculation from the side effects",
				fn.QualifiedName(), strings.Join(io, ", "), plural(c, "operation")))
		}
	}
	return out, nil
}
