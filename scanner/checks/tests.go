package checks

import (
	"context"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("arrange_act_assert", func(env scanner.Env) scanner.Scanner {
		return &arrangeActAssert{check: newCheck("arrange_act_assert", scanner.FamilyTest, scanner.SeverityWarning, env)}
	})
	register("one_concept_per_test", func(env scanner.Env) scanner.Scanner {
		return &oneConcept{
			check:       newCheck("one_concept_per_test", scanner.FamilyTest, scanner.SeverityWarning, env),
			maxSubjects: env.Params.Int("max_subjects", 3),
		}
	})
	register("business_readable_test_name", func(env scanner.Env) scanner.Scanner {
		return &readableTestName{
			check:     newCheck("business_readable_test_name", scanner.FamilyTest, scanner.SeverityInfo, env),
			minWords:  env.Params.Int("min_words", 3),
			technical: toSet(env.Params.Strings("technical_tokens", defaultTechnicalTokens)),
		}
	})
	register("test_conditional_logic", func(env scanner.Env) scanner.Scanner {
		return &testConditionalLogic{check: newCheck("test_conditional_logic", scanner.FamilyTest, scanner.SeverityWarning, env)}
	})
	register("test_missing_assertion", func(env scanner.Env) scanner.Scanner {
		return &testMissingAssertion{check: newCheck("test_missing_assertion", scanner.FamilyTest, scanner.SeverityError, env)}
	})
}

// Callee prefixes that count as assertions besides the assert statement.
var assertionPrefixes = []string{"assert", "verify", "then_", "expect", "should"}

// Context managers that assert on raised errors or warnings.
var assertionContexts = map[string]bool{
	"raises": true, "warns": true, "deprecated_call": true,
	"assertRaises": true, "assertRaisesRegex": true, "assertWarns": true, "assertLogs": true,
}

func isAssertionCallee(name string) bool {
	last := python.LastName(name)
	if assertionContexts[last] || name == "pytest.fail" {
		return true
	}
	lower := strings.ToLower(last)
	for _, p := range assertionPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// isAssertion reports a top-level test statement that asserts.
func isAssertion(m *python.Module, stmt *sitter.Node) bool {
	switch python.Kind(stmt) {
	case python.StmtAssert:
		return true
	case python.StmtCall:
		return isAssertionCallee(python.CallName(m, python.StatementCall(stmt)))
	case python.StmtWith:
		found := false
		python.Walk(stmt.ChildByFieldName("body"), func(n *sitter.Node) bool {
			found = found || n.Type() == "assert_statement"
			return !found
		})
		return found || withAsserts(m, stmt)
	}
	return false
}

// withAsserts reports "with pytest.raises(...)" style context managers.
func withAsserts(m *python.Module, stmt *sitter.Node) bool {
	found := false
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		child := stmt.NamedChild(i)
		if child.Type() != "with_clause" {
			continue
		}
		python.Walk(child, func(n *sitter.Node) bool {
			if n.Type() == "call" && isAssertionCallee(python.CallName(m, n)) {
				found = true
			}
			return !found
		})
	}
	return found
}

// isAction reports a top-level test statement that exercises code.
func isAction(m *python.Module, stmt *sitter.Node) bool {
	switch python.Kind(stmt) {
	case python.StmtCall, python.StmtAssign, python.StmtAugAssign, python.StmtWith:
	default:
		return false
	}
	if isAssertion(m, stmt) {
		return false
	}
	found := false
	python.Walk(stmt, func(n *sitter.Node) bool {
		found = found || n.Type() == "call" || n.Type() == "await"
		return !found
	})
	return found
}

type arrangeActAssert struct {
	check
}

// ScanFile flags tests that assert, act again and assert again, and tests
// whose final action is never asserted on.
func (s *arrangeActAssert) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range testFunctions(m) {
		var (
			asserted    bool
			interleaved bool
			reacted     *sitter.Node
			lastAssert  = -1
			lastAction  = -1
			stmts       = fn.Statements()
		)
		for i, stmt := range stmts {
			switch {
			case isAssertion(m, stmt):
				if reacted != nil && !interleaved {
					interleaved = true
					out = append(out, s.report(req, python.StartLine(reacted),
						"Test '%s' acts again after asserting; split it so each test has one arrange, act, assert sequence",
						fn.QualifiedName()))
				}
				asserted = true
				lastAssert = i
			case isAction(m, stmt):
				if asserted && reacted == nil {
					reacted = stmt
				}
				lastAction = i
			}
		}
		if !interleaved && lastAssert >= 0 && lastAction > lastAssert {
			out = append(out, s.report(req, python.StartLine(stmts[lastAction]),
				"Test '%s' ends with an action that is never asserted on; assert on its outcome or move it to arrange",
				fn.QualifiedName()))
		}
	}
	return out, nil
}

type oneConcept struct {
	check
	maxSubjects int
}

// subject returns the root name an assertion is about: the first operand's
// base identifier, self.attr for attributes on self.
func subject(m *python.Module, expr *sitter.Node) string {
	for expr != nil {
		switch expr.Type() {
		case "comparison_operator", "boolean_operator":
			expr = expr.NamedChild(0)
		case "not_operator":
			expr = expr.ChildByFieldName("argument")
		case "parenthesized_expression":
			expr = expr.NamedChild(0)
		case "call":
			fn := expr.ChildByFieldName("function")
			if fn != nil && fn.Type() == "identifier" {
				// isinstance(x, T), len(x): the subject is the argument.
				if args := expr.ChildByFieldName("arguments"); args != nil && args.NamedChildCount() > 0 {
					expr = args.NamedChild(0)
					continue
				}
			}
			expr = fn
		case "subscript":
			expr = expr.ChildByFieldName("value")
		case "attribute":
			obj := expr.ChildByFieldName("object")
			if obj != nil && obj.Type() == "identifier" && m.Text(obj) == "self" {
				return "self." + m.Text(expr.ChildByFieldName("attribute"))
			}
			expr = obj
		case "identifier":
			return m.Text(expr)
		default:
			return ""
		}
	}
	return ""
}

// assertionSubject extracts the subject of an assert statement or an
// assertion helper call's first argument.
func assertionSubject(m *python.Module, stmt *sitter.Node) string {
	switch python.Kind(stmt) {
	case python.StmtAssert:
		if stmt.NamedChildCount() == 0 {
			return ""
		}
		return subject(m, stmt.NamedChild(0))
	case python.StmtCall:
		call := python.StatementCall(stmt)
		args := call.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() == 0 {
			return ""
		}
		return subject(m, args.NamedChild(0))
	}
	return ""
}

// ScanFile flags tests asserting on too many distinct subjects.
func (s *oneConcept) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range testFunctions(m) {
		seen := make(map[string]bool)
		var subjects []string
		for _, stmt := range fn.Statements() {
			if !isAssertion(m, stmt) {
				continue
			}
			subj := assertionSubject(m, stmt)
			if subj == "" || seen[subj] {
				continue
			}
			seen[subj] = true
			subjects = append(subjects, subj)
		}
		if len(subjects) > s.maxSubjects {
			out = append(out, s.report(req, fn.LineNumber(),
				"Test '%s' asserts on %d different subjects (%s; max %d); test one concept per test",
				fn.QualifiedName(), len(subjects), strings.Join(subjects, ", "), s.maxSubjects))
		}
	}
	return out, nil
}

var defaultTechnicalTokens = []string{
	"func", "function", "method", "impl", "util", "utils", "param", "params",
	"args", "kwargs", "obj", "var", "tmp", "temp", "foo", "bar", "baz",
	"dict", "list", "none", "mock", "stub", "case", "ok", "works", "basic",
}

type readableTestName struct {
	check
	minWords  int
	technical map[string]bool
}

// ScanFile flags test names that do not read as a behavior description.
func (s *readableTestName) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range testFunctions(req.File) {
		words := strings.FieldsFunc(strings.TrimPrefix(fn.Name, "test_"), func(r rune) bool { return r == '_' })
		var technical []string
		for _, w := range words {
			if s.technical[strings.ToLower(w)] || isNumeric(w) {
				technical = append(technical, w)
			}
		}
		switch {
		case len(words) < s.minWords:
			out = append(out, s.report(req, fn.LineNumber(),
				"Test name '%s' has %s; describe the behavior, e.g. test_<subject>_<does>_<when>",
				fn.Name, plural(len(words), "word")))
		case len(technical) > 0:
			out = append(out, s.report(req, fn.LineNumber(),
				"Test name '%s' uses technical tokens (%s); name the business behavior instead",
				fn.Name, strings.Join(technical, ", ")))
		}
	}
	return out, nil
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

type testConditionalLogic struct {
	check
}

var conditionalStatements = map[string]string{
	"if_statement":    "if",
	"for_statement":   "for",
	"while_statement": "while",
}

// ScanFile flags branching and looping inside tests.
func (s *testConditionalLogic) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range testFunctions(req.File) {
		walkFunctionBody(fn, func(n *sitter.Node) bool {
			kw, ok := conditionalStatements[n.Type()]
			if !ok {
				return true
			}
			out = append(out, s.report(req, python.StartLine(n),
				"Test '%s' contains '%s' logic; tests should be straight-line, use parametrize for variants",
				fn.QualifiedName(), kw))
			return false
		})
	}
	return out, nil
}

type testMissingAssertion struct {
	check
}

// ScanFile flags tests that never assert, directly or through a helper.
func (s *testMissingAssertion) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range testFunctions(m) {
		if fn.IsFixture() {
			continue
		}
		found := false
		walkFunctionBody(fn, func(n *sitter.Node) bool {
			switch n.Type() {
			case "assert_statement":
				found = true
			case "call":
				if isAssertionCallee(python.CallName(m, n)) {
					found = true
				}
			}
			return !found
		})
		if !found {
			out = append(out, s.report(req, fn.LineNumber(),
				"Test '%s' has no assertion; assert on the outcome or use pytest.raises",
				fn.QualifiedName()))
		}
	}
	return out, nil
}
