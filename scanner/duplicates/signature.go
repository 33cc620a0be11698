package duplicates

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
)

// Signature encodes stmts as pipe-joined statement tags, e.g.
// "ASSIGN(1_targets)|IF(CMP(>)){RETURN}|CALL". Names and literal values are
// dropped; statement shape, nesting and operators are kept.
func Signature(m *python.Module, stmts []*sitter.Node) string {
	tags := make([]string, 0, len(stmts))
	for _, s := range stmts {
		tags = append(tags, statementTag(m, s))
	}
	return strings.Join(tags, "|")
}

func blockTags(m *python.Module, block *sitter.Node) string {
	return "{" + Signature(m, python.Statements(block)) + "}"
}

func statementTag(m *python.Module, stmt *sitter.Node) string {
	kind := python.Kind(stmt)
	switch kind {
	case python.StmtAssign:
		return fmt.Sprintf("ASSIGN(%d_targets)", python.AssignmentTargets(python.Expression(stmt)))
	case python.StmtAugAssign:
		ops := python.Operators(python.Expression(stmt))
		return "AUG_ASSIGN(" + strings.Join(ops, ",") + ")"
	case python.StmtIf:
		var b strings.Builder
		b.WriteString("IF(" + conditionTag(stmt.ChildByFieldName("condition")) + ")")
		b.WriteString(blockTags(m, stmt.ChildByFieldName("consequence")))
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			child := stmt.NamedChild(i)
			switch child.Type() {
			case "elif_clause":
				b.WriteString("ELIF(" + conditionTag(child.ChildByFieldName("condition")) + ")")
				b.WriteString(blockTags(m, child.ChildByFieldName("consequence")))
			case "else_clause":
				b.WriteString("ELSE" + blockTags(m, child.ChildByFieldName("body")))
			}
		}
		return b.String()
	case python.StmtWhile:
		return "WHILE(" + conditionTag(stmt.ChildByFieldName("condition")) + ")" +
			blockTags(m, stmt.ChildByFieldName("body")) + elseTag(m, stmt)
	case python.StmtFor:
		return "FOR" + blockTags(m, stmt.ChildByFieldName("body")) + elseTag(m, stmt)
	case python.StmtWith:
		return "WITH" + blockTags(m, stmt.ChildByFieldName("body"))
	case python.StmtTry:
		var b strings.Builder
		b.WriteString("TRY" + blockTags(m, stmt.ChildByFieldName("body")))
		for i := 0; i < int(stmt.NamedChildCount()); i++ {
			child := stmt.NamedChild(i)
			label := ""
			switch child.Type() {
			case "except_clause", "except_group_clause":
				label = "EXCEPT"
			case "else_clause":
				label = "ELSE"
			case "finally_clause":
				label = "FINALLY"
			default:
				continue
			}
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if blk := child.NamedChild(j); blk.Type() == "block" {
					b.WriteString(label + blockTags(m, blk))
				}
			}
		}
		return b.String()
	case python.StmtMatch:
		var b strings.Builder
		b.WriteString("MATCH")
		for _, blk := range python.NestedBlocks(stmt) {
			b.WriteString(blockTags(m, blk))
		}
		return b.String()
	}
	return string(kind)
}

func elseTag(m *python.Module, stmt *sitter.Node) string {
	alt := stmt.ChildByFieldName("alternative")
	if alt == nil || alt.Type() != "else_clause" {
		return ""
	}
	return "ELSE" + blockTags(m, alt.ChildByFieldName("body"))
}

// conditionTag encodes a condition expression shape.
func conditionTag(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "comparison_operator":
		return "CMP(" + strings.Join(python.Operators(n), ",") + ")"
	case "boolean_operator":
		op := strings.Join(python.Operators(n), ",")
		return "BOOL(" + op + ":" + conditionTag(n.ChildByFieldName("left")) + "," +
			conditionTag(n.ChildByFieldName("right")) + ")"
	case "not_operator":
		return "NOT(" + conditionTag(n.ChildByFieldName("argument")) + ")"
	case "parenthesized_expression":
		if n.NamedChildCount() > 0 {
			return conditionTag(n.NamedChild(0))
		}
	case "call":
		return "CALL"
	case "identifier", "attribute", "subscript":
		return "NAME"
	}
	return strings.ToUpper(n.Type())
}
