package checks

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

func init() {
	register("private_member_access", func(env scanner.Env) scanner.Scanner {
		return &privateAccess{check: newCheck("private_member_access", scanner.FamilyCode, scanner.SeverityWarning, env)}
	})
	register("law_of_demeter", func(env scanner.Env) scanner.Scanner {
		return &lawOfDemeter{
			check:    newCheck("law_of_demeter", scanner.FamilyCode, scanner.SeverityWarning, env),
			maxChain: env.Params.Int("max_chain", 3),
			ignore:   env.Params.Strings("ignore_roots", []string{"os", "sys", "np", "pd", "datetime"}),
		}
	})
	register("magic_number", func(env scanner.Env) scanner.Scanner {
		allowed := make(map[float64]bool)
		for _, s := range env.Params.Strings("allowed", []string{"0", "1", "-1", "2"}) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				allowed[f] = true
			}
		}
		return &magicNumber{
			check:   newCheck("magic_number", scanner.FamilyCode, scanner.SeverityInfo, env),
			allowed: allowed,
		}
	})
	register("wildcard_import", func(env scanner.Env) scanner.Scanner {
		return &wildcardImport{check: newCheck("wildcard_import", scanner.FamilyCode, scanner.SeverityWarning, env)}
	})
}

type privateAccess struct {
	check
}

var ownReceivers = map[string]bool{"self": true, "cls": true, "super()": true}

// ScanFile flags obj._attr where obj is not self or cls.
func (s *privateAccess) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	seen := make(map[int]bool)
	python.Walk(m.Root, func(n *sitter.Node) bool {
		if n.Type() != "attribute" {
			return true
		}
		attr := m.Text(n.ChildByFieldName("attribute"))
		if !strings.HasPrefix(attr, "_") || python.IsDunderName(attr) {
			return true
		}
		obj := n.ChildByFieldName("object")
		if obj == nil || ownReceivers[strings.ReplaceAll(m.Text(obj), " ", "")] {
			return true
		}
		line := python.StartLine(n)
		if seen[line] {
			return true
		}
		seen[line] = true
		out = append(out, s.report(req, line,
			"Access to private member '%s' of '%s'; use the object's public interface",
			attr, m.Text(obj)))
		return true
	})
	return out, nil
}

type lawOfDemeter struct {
	check
	maxChain int
	ignore   []string
}

// chainDepth counts attribute hops in an access chain, calls and
// subscripts included: a.b().c.d is three.
func chainDepth(n *sitter.Node) (int, *sitter.Node) {
	depth := 0
	for n != nil {
		switch n.Type() {
		case "attribute":
			depth++
			n = n.ChildByFieldName("object")
		case "call":
			n = n.ChildByFieldName("function")
		case "subscript":
			n = n.ChildByFieldName("value")
		default:
			return depth, n
		}
	}
	return depth, nil
}

// isChainTop reports an attribute that is not itself part of a longer chain.
func isChainTop(n *sitter.Node) bool {
	p := n.Parent()
	for p != nil {
		switch p.Type() {
		case "attribute":
			return false
		case "call":
			if fn := p.ChildByFieldName("function"); fn == nil || !sameNode(fn, n) {
				return true
			}
			n, p = p, p.Parent()
			continue
		case "subscript":
			if v := p.ChildByFieldName("value"); v == nil || !sameNode(v, n) {
				return true
			}
			n, p = p, p.Parent()
			continue
		}
		return true
	}
	return true
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// ScanFile flags access chains longer than the limit.
func (s *lawOfDemeter) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	seen := make(map[int]bool)
	python.Walk(m.Root, func(n *sitter.Node) bool {
		if n.Type() != "attribute" || !isChainTop(n) {
			return true
		}
		depth, root := chainDepth(n)
		if depth <= s.maxChain || s.ignored(m, root) {
			return true
		}
		line := python.StartLine(n)
		if seen[line] {
			return true
		}
		seen[line] = true
		out = append(out, s.report(req, line,
			"Chain '%s' reaches through %d objects (max %d); ask the nearest collaborator instead",
			collapseSpace(m.Text(n)), depth, s.maxChain))
		return true
	})
	return out, nil
}

func (s *lawOfDemeter) ignored(m *python.Module, root *sitter.Node) bool {
	if root == nil {
		return false
	}
	name := m.Text(root)
	for _, ig := range s.ignore {
		if name == ig {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

type magicNumber struct {
	check
	allowed map[float64]bool
}

// ScanFile flags numeric literals inside functions other than the allowed
// values. UPPER_CASE constant assignments and default values are exempt.
func (s *magicNumber) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	m := req.File
	for _, fn := range m.Functions() {
		walkFunctionBody(fn, func(n *sitter.Node) bool {
			switch n.Type() {
			case "assignment":
				if isConstantName(m.Text(n.ChildByFieldName("left"))) {
					return false
				}
			case "integer", "float":
				text := m.Text(n)
				value, ok := parseNumber(text)
				if !ok {
					return true
				}
				if p := n.Parent(); p != nil && p.Type() == "unary_operator" && strings.HasPrefix(m.Text(p), "-") {
					value, text = -value, "-"+text
				}
				if s.allowed[value] {
					return true
				}
				out = append(out, s.report(req, python.StartLine(n),
					"Magic number %s in '%s'; name it as a constant", text, fn.QualifiedName()))
			}
			return true
		})
	}
	return out, nil
}

func parseNumber(text string) (float64, bool) {
	clean := strings.ReplaceAll(strings.ToLower(text), "_", "")
	clean = strings.TrimRight(clean, "jl")
	if i, err := strconv.ParseInt(clean, 0, 64); err == nil {
		return float64(i), true
	}
	f, err := strconv.ParseFloat(clean, 64)
	return f, err == nil
}

func isConstantName(name string) bool {
	if name == "" {
		return false
	}
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

type wildcardImport struct {
	check
}

// ScanFile flags "from x import *".
func (s *wildcardImport) ScanFile(ctx context.Context, req scanner.FileRequest) ([]scanner.Violation, error) {
	var out []scanner.Violation
	for _, imp := range req.File.Imports() {
		if imp.IsWildcard() {
			out = append(out, s.report(req, imp.LineNumber(),
				"Wildcard import from '%s'; import the names you use explicitly", imp.Module))
		}
	}
	return out, nil
}
