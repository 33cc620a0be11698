package python

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// StmtKind classifies a statement node.
type StmtKind string

const (
	StmtAssign    StmtKind = "ASSIGN"
	StmtAugAssign StmtKind = "AUG_ASSIGN"
	StmtCall      StmtKind = "CALL"
	StmtExpr      StmtKind = "EXPR"
	StmtDocstring StmtKind = "DOCSTRING"
	StmtReturn    StmtKind = "RETURN"
	StmtRaise     StmtKind = "RAISE"
	StmtAssert    StmtKind = "ASSERT"
	StmtPass      StmtKind = "PASS"
	StmtIf        StmtKind = "IF"
	StmtFor       StmtKind = "FOR"
	StmtWhile     StmtKind = "WHILE"
	StmtTry       StmtKind = "TRY"
	StmtWith      StmtKind = "WITH"
	StmtMatch     StmtKind = "MATCH"
	StmtFunction  StmtKind = "FUNCTIONDEF"
	StmtClass     StmtKind = "CLASSDEF"
	StmtImport    StmtKind = "IMPORT"
	StmtBreak     StmtKind = "BREAK"
	StmtContinue  StmtKind = "CONTINUE"
	StmtDelete    StmtKind = "DELETE"
	StmtGlobal    StmtKind = "GLOBAL"
	StmtOther     StmtKind = "OTHER"
)

// Walk visits node and its named descendants in pre-order. Returning false
// from fn skips the children of that node.
func Walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		Walk(node.NamedChild(i), fn)
	}
}

// WalkBody is Walk without entering nested function, class or lambda
// definitions.
func WalkBody(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		Walk(node.NamedChild(i), func(n *sitter.Node) bool {
			switch n.Type() {
			case "function_definition", "class_definition", "decorated_definition", "lambda":
				return false
			}
			return fn(n)
		})
	}
}

// Statements returns the statement children of a block, skipping comments.
func Statements(block *sitter.Node) []*sitter.Node {
	if block == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, block.NamedChildCount())
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// StartLine returns the 1-based first line of node.
func StartLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPoint().Row) + 1
}

// EndLine returns the 1-based last line of node. A node ending at column 0
// belongs to the previous line.
func EndLine(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	end := node.EndPoint()
	if end.Column == 0 && end.Row > node.StartPoint().Row {
		return int(end.Row)
	}
	return int(end.Row) + 1
}

// LineSpan returns the number of lines covered by nodes first..last.
func LineSpan(first, last *sitter.Node) int {
	return EndLine(last) - StartLine(first) + 1
}

// CountNodes counts node and all its named descendants.
func CountNodes(node *sitter.Node) int {
	n := 0
	Walk(node, func(*sitter.Node) bool {
		n++
		return true
	})
	return n
}

// IsDocstring reports an expression statement holding only a string literal.
func IsDocstring(stmt *sitter.Node) bool {
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return false
	}
	t := stmt.NamedChild(0).Type()
	return t == "string" || t == "concatenated_string"
}

// Expression returns the single expression wrapped by an expression
// statement, or nil.
func Expression(stmt *sitter.Node) *sitter.Node {
	if stmt == nil || stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
		return nil
	}
	return stmt.NamedChild(0)
}

// Kind classifies a statement node.
func Kind(stmt *sitter.Node) StmtKind {
	if stmt == nil {
		return StmtOther
	}
	switch stmt.Type() {
	case "expression_statement":
		if IsDocstring(stmt) {
			return StmtDocstring
		}
		expr := Expression(stmt)
		if expr == nil {
			return StmtExpr
		}
		switch expr.Type() {
		case "assignment":
			return StmtAssign
		case "augmented_assignment":
			return StmtAugAssign
		case "call":
			return StmtCall
		case "await":
			if expr.NamedChildCount() > 0 && expr.NamedChild(0).Type() == "call" {
				return StmtCall
			}
		}
		return StmtExpr
	case "return_statement":
		return StmtReturn
	case "raise_statement":
		return StmtRaise
	case "assert_statement":
		return StmtAssert
	case "pass_statement":
		return StmtPass
	case "if_statement":
		return StmtIf
	case "for_statement":
		return StmtFor
	case "while_statement":
		return StmtWhile
	case "try_statement":
		return StmtTry
	case "with_statement":
		return StmtWith
	case "match_statement":
		return StmtMatch
	case "function_definition":
		return StmtFunction
	case "class_definition":
		return StmtClass
	case "decorated_definition":
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			switch stmt.NamedChild(i).Type() {
			case "class_definition":
				return StmtClass
			case "function_definition":
				return StmtFunction
			}
		}
		return StmtOther
	case "import_statement", "import_from_statement", "future_import_statement":
		return StmtImport
	case "break_statement":
		return StmtBreak
	case "continue_statement":
		return StmtContinue
	case "delete_statement":
		return StmtDelete
	case "global_statement", "nonlocal_statement":
		return StmtGlobal
	}
	return StmtOther
}

// IsCompound reports statement kinds that own nested blocks.
func IsCompound(kind StmtKind) bool {
	switch kind {
	case StmtIf, StmtFor, StmtWhile, StmtTry, StmtWith, StmtMatch:
		return true
	}
	return false
}

// NestedBlocks returns the blocks owned by a compound statement: bodies,
// elif/else branches, except handlers and finally clauses.
func NestedBlocks(stmt *sitter.Node) []*sitter.Node {
	var blocks []*sitter.Node
	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			switch child.Type() {
			case "block":
				blocks = append(blocks, child)
			case "elif_clause", "else_clause", "except_clause", "except_group_clause",
				"finally_clause", "case_clause":
				collect(child)
			}
		}
	}
	collect(stmt)
	if stmt.Type() == "match_statement" {
		if body := stmt.ChildByFieldName("body"); body != nil {
			collect(body)
		}
	}
	return blocks
}

// CallName returns the dotted callee of a call node, e.g. "self.repo.save".
// Calls on non-name expressions keep only the trailing attribute chain.
func CallName(m *Module, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	return dottedName(m, fn)
}

func dottedName(m *Module, node *sitter.Node) string {
	switch node.Type() {
	case "identifier":
		return m.Text(node)
	case "attribute":
		obj := dottedName(m, node.ChildByFieldName("object"))
		attr := m.Text(node.ChildByFieldName("attribute"))
		if obj == "" {
			return attr
		}
		return obj + "." + attr
	case "call":
		inner := CallName(m, node)
		if inner == "" {
			return ""
		}
		return inner + "()"
	case "subscript":
		inner := dottedName(m, node.ChildByFieldName("value"))
		if inner == "" {
			return ""
		}
		return inner + "[]"
	}
	return ""
}

// LastName returns the final segment of a dotted name.
func LastName(dotted string) string {
	dotted = strings.TrimSuffix(dotted, "()")
	if idx := strings.LastIndex(dotted, "."); idx != -1 {
		return dotted[idx+1:]
	}
	return dotted
}

// StatementCall returns the call node of a call statement, or nil.
func StatementCall(stmt *sitter.Node) *sitter.Node {
	expr := Expression(stmt)
	if expr == nil {
		return nil
	}
	if expr.Type() == "await" && expr.NamedChildCount() > 0 {
		expr = expr.NamedChild(0)
	}
	if expr.Type() == "call" {
		return expr
	}
	return nil
}

// Operators returns the anonymous operator tokens of an operator node, e.g.
// ["<", "not in"] for a chained comparison.
func Operators(node *sitter.Node) []string {
	var ops []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.IsNamed() {
			continue
		}
		switch t := child.Type(); t {
		case "(", ")", ",", ":", "[", "]":
		default:
			ops = append(ops, t)
		}
	}
	return ops
}

// AssignmentTargets counts chained targets of an assignment expression:
// a = b = 1 has two.
func AssignmentTargets(assign *sitter.Node) int {
	n := 0
	for assign != nil && assign.Type() == "assignment" {
		n++
		assign = assign.ChildByFieldName("right")
	}
	return n
}

// IsSelfAttributeAssign reports "self.attr = value".
func IsSelfAttributeAssign(m *Module, stmt *sitter.Node) bool {
	if Kind(stmt) != StmtAssign {
		return false
	}
	left := Expression(stmt).ChildByFieldName("left")
	if left == nil || left.Type() != "attribute" {
		return false
	}
	obj := left.ChildByFieldName("object")
	return obj != nil && m.Text(obj) == "self"
}
