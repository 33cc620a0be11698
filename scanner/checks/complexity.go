package checks

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("cyclomatic_complexity", func(env scanner.Env) scanner.Scanner {
		return &cyclomatic{
			check: newCheck("cyclomatic_complexity", scanner.FamilyCode, scanner.SeverityWarning, env),
			max:   env.Params.Int("max_complexity", 10),
		}
	})
	register("cognitive_complexity", func(env scanner.Env) scanner.Scanner {
		return &cognitive{
			check: newCheck("cognitive_complexity", scanner.FamilyCode, scanner.SeverityWarning, env),
			max:   env.Params.Int("max_complexity", 15),
		}
	})
	register("function_length", func(env scanner.Env) scanner.Scanner {
		return &functionLength{
			check: newCheck("function_length", scanner.FamilyCode, scanner.SeverityWarning, env),
			max:   env.Params.Int("max_lines", 50),
		}
	})
	register("class_size", func(env scanner.Env) scanner.Scanner {
		return &classSize{
			check:      newCheck("class_size", scanner.FamilyCode, scanner.SeverityWarning, env),
			maxMethods: env.Params.Int("max_methods", 20),
			maxLines:   env.Params.Int("max_lines", 300),
		}
	})
	register("nesting_depth", func(env scanner.Env) scanner.Scanner {
		return &nestingDepth{
			check: newCheck("nesting_depth", scanner.FamilyCode, scanner.SeverityWarning, env),
			max:   env.Params.Int("max_depth", 4),
		}
	})
}

type cyclomatic struct {
	check
	max int
}

// CyclomaticComplexity is McCabe's measure: one plus each decision point.
func CyclomaticComplexity(fn *python.Function) int {
	n := 1
	walkFunctionBody(fn, func(node *sitter.Node) bool {
		switch node.Type() {
		case "if_statement", "elif_clause", "for_statement", "while_statement",
			"except_clause", "conditional_expression", "case_clause",
			"for_in_clause", "if_clause":
			n++
		case "boolean_operator":
			n++
		}
		return true
	})
	return n
}

// ScanFile flags functions above the complexity threshold.
func (s *cyclomatic) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if c := CyclomaticComplexity(fn); c > s.max {
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' has cyclomatic complexity %d (max %d); split it into smaller functions",
				fn.QualifiedName(), c, s.max))
		}
	}
	return out, nil
}

type cognitive struct {
	check
	max int
}

// CognitiveComplexity weights each break in linear flow by how deeply it is
// nested. Boolean operator sequences add one per change of operator.
func CognitiveComplexity(fn *python.Function) int {
	total := 0
	var score func(n, parent *sitter.Node, nesting int)
	children := func(n *sitter.Node, nesting int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			score(n.NamedChild(i), n, nesting)
		}
	}
	// branches scores the blocks of a compound statement one level deeper
	// and everything else (conditions, targets) at the current level.
	branches := func(n *sitter.Node, nesting int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "block":
				children(c, nesting+1)
			case "elif_clause", "else_clause":
				total++
				for j := 0; j < int(c.NamedChildCount()); j++ {
					cc := c.NamedChild(j)
					if cc.Type() == "block" {
						children(cc, nesting+1)
					} else {
						score(cc, c, nesting)
					}
				}
			default:
				score(c, n, nesting)
			}
		}
	}
	score = func(n, parent *sitter.Node, nesting int) {
		switch n.Type() {
		case "function_definition", "class_definition", "decorated_definition", "lambda":
			// Scored on their own.
		case "if_statement", "for_statement", "while_statement":
			total += 1 + nesting
			branches(n, nesting)
		case "except_clause", "except_group_clause", "match_statement":
			total += 1 + nesting
			children(n, nesting+1)
		case "conditional_expression":
			total += 1 + nesting
			children(n, nesting)
		case "boolean_operator":
			if !sameBooleanOperator(n, parent) {
				total++
			}
			children(n, nesting)
		default:
			children(n, nesting)
		}
	}
	if body := fn.Body(); body != nil {
		children(body, 0)
	}
	return total
}

func sameBooleanOperator(child, parent *sitter.Node) bool {
	if parent.Type() != "boolean_operator" {
		return false
	}
	return equalOps(python.Operators(child), python.Operators(parent))
}

func equalOps(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ScanFile flags functions above the cognitive complexity threshold.
func (s *cognitive) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if c := CognitiveComplexity(fn); c > s.max {
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' has cognitive complexity %d (max %d); flatten nesting or extract helpers",
				fn.QualifiedName(), c, s.max))
		}
	}
	return out, nil
}

type functionLength struct {
	check
	max int
}

// ScanFile flags functions spanning more lines than allowed.
func (s *functionLength) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if n := fn.LineCount(); n > s.max {
			out = append(out, s.report(req, fn.LineNumber(),
				"Function '%s' is %d lines long (max %d); extract cohesive steps into functions",
				fn.QualifiedName(), n, s.max))
		}
	}
	return out, nil
}

type classSize struct {
	check
	maxMethods int
	maxLines   int
}

// ScanFile flags classes with too many methods or lines.
func (s *classSize) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, cls := range req.File.Classes() {
		methods := len(cls.Methods())
		lines := cls.LineCount()
		switch {
		case methods > s.maxMethods:
			out = append(out, s.report(req, cls.LineNumber(),
				"Class '%s' has %d methods (max %d); split responsibilities into collaborating classes",
				cls.Name, methods, s.maxMethods))
		case lines > s.maxLines:
			out = append(out, s.report(req, cls.LineNumber(),
				"Class '%s' is %d lines long (max %d); split responsibilities into collaborating classes",
				cls.Name, lines, s.maxLines))
		}
	}
	return out, nil
}

type nestingDepth struct {
	check
	max int
}

var nestingTypes = map[string]bool{
	"if_statement": true, "for_statement": true, "while_statement": true,
	"try_statement": true, "with_statement": true, "match_statement": true,
}

// MaxNesting returns the deepest control-flow nesting in fn and the line of
// the innermost statement reaching it. elif chains do not add depth.
func MaxNesting(fn *python.Function) (int, int) {
	best, line := 0, 0
	var visit func(node *sitter.Node, depth int)
	visit = func(node *sitter.Node, depth int) {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch t := child.Type(); {
			case t == "function_definition" || t == "class_definition" || t == "decorated_definition" || t == "lambda":
			case nestingTypes[t]:
				d := depth + 1
				if d > best {
					best, line = d, python.StartLine(child)
				}
				visit(child, d)
			default:
				visit(child, depth)
			}
		}
	}
	if body := fn.Body(); body != nil {
		visit(body, 0)
	}
	return best, line
}

// ScanFile flags functions nesting control flow deeper than allowed.
func (s *nestingDepth) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, fn := range req.File.Functions() {
		if depth, line := MaxNesting(fn); depth > s.max {
			out = append(out, s.report(req, line,
				"Function '%s' nests control flow %d levels deep (max %d); use guard clauses or extract functions",
				fn.QualifiedName(), depth, s.max))
		}
	}
	return out, nil
}
