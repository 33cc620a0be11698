package duplicates

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
)

// Rejection thresholds for candidate blocks.
const (
	helperDominance    = 0.6
	assertDominance    = 0.6
	loggingDominance   = 0.5
	constructorAssigns = 0.8
)

// rejectReason explains why a candidate was dropped; empty keeps it.
func (x *Extractor) rejectReason(m *python.Module, stmts []*sitter.Node) string {
	switch {
	case onlyDocOrPass(stmts):
		return "docstring_or_pass"
	case x.helperRatio(m, stmts) >= helperDominance:
		return "helper_delegation"
	case assertRatio(m, stmts) >= assertDominance:
		return "assertions"
	case isListBuilding(m, stmts):
		return "list_building"
	case loggingRatio(m, stmts) >= loggingDominance:
		return "logging"
	case countReal(stmts) < x.opts.MinRealStatements:
		return "too_few_statements"
	}
	return ""
}

// isTrivialFunction reports functions that never yield blocks: simple
// constructors and property getters.
func isTrivialFunction(fn *python.Function) bool {
	if fn.IsProperty() {
		return true
	}
	if fn.Name != "__init__" {
		return false
	}
	stmts := fn.Statements()
	if len(stmts) == 0 {
		return true
	}
	assigns := 0
	for _, s := range stmts {
		if python.IsSelfAttributeAssign(fn.Module(), s) {
			assigns++
		}
	}
	return float64(assigns)/float64(len(stmts)) >= constructorAssigns
}

func onlyDocOrPass(stmts []*sitter.Node) bool {
	for _, s := range stmts {
		switch python.Kind(s) {
		case python.StmtDocstring, python.StmtPass:
		case python.StmtExpr:
			if e := python.Expression(s); e == nil || e.Type() != "ellipsis" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// statementCallee returns the callee of a call statement, an assignment from
// a call, or a returned call.
func statementCallee(m *python.Module, stmt *sitter.Node) string {
	var call *sitter.Node
	switch python.Kind(stmt) {
	case python.StmtCall:
		call = python.StatementCall(stmt)
	case python.StmtAssign:
		call = unwrapAwait(python.Expression(stmt).ChildByFieldName("right"))
	case python.StmtReturn:
		if stmt.NamedChildCount() > 0 {
			call = unwrapAwait(stmt.NamedChild(0))
		}
	}
	if call == nil || call.Type() != "call" {
		return ""
	}
	return python.CallName(m, call)
}

func unwrapAwait(n *sitter.Node) *sitter.Node {
	if n != nil && n.Type() == "await" && n.NamedChildCount() > 0 {
		return n.NamedChild(0)
	}
	return n
}

func (x *Extractor) isHelperName(name string) bool {
	return hasHelperPrefix(x.opts.HelperPrefixes, name)
}

func hasHelperPrefix(prefixes []string, name string) bool {
	name = strings.TrimPrefix(name, "self.")
	name = python.LastName(name)
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (x *Extractor) helperRatio(m *python.Module, stmts []*sitter.Node) float64 {
	if len(stmts) == 0 {
		return 0
	}
	n := 0
	for _, s := range stmts {
		if callee := statementCallee(m, s); callee != "" && x.isHelperName(callee) {
			n++
		}
	}
	return float64(n) / float64(len(stmts))
}

func isAssertion(m *python.Module, stmt *sitter.Node) bool {
	if python.Kind(stmt) == python.StmtAssert {
		return true
	}
	callee := python.LastName(statementCallee(m, stmt))
	return strings.HasPrefix(callee, "assert")
}

func assertRatio(m *python.Module, stmts []*sitter.Node) float64 {
	if len(stmts) == 0 {
		return 0
	}
	n := 0
	for _, s := range stmts {
		if isAssertion(m, s) {
			n++
		}
	}
	return float64(n) / float64(len(stmts))
}

var loggingRoots = map[string]bool{"print": true, "logger": true, "logging": true, "log": true, "LOGGER": true, "LOG": true}

func isLoggingCall(m *python.Module, stmt *sitter.Node) bool {
	if python.Kind(stmt) != python.StmtCall {
		return false
	}
	callee := strings.TrimPrefix(statementCallee(m, stmt), "self.")
	root := callee
	if idx := strings.Index(callee, "."); idx != -1 {
		root = callee[:idx]
	}
	return loggingRoots[root] || strings.HasSuffix(root, "logger")
}

func loggingRatio(m *python.Module, stmts []*sitter.Node) float64 {
	if len(stmts) == 0 {
		return 0
	}
	n := 0
	for _, s := range stmts {
		if isLoggingCall(m, s) {
			n++
		}
	}
	return float64(n) / float64(len(stmts))
}

// isAppendCall reports "x.append(...)" and "x.extend(...)" statements.
func isAppendCall(m *python.Module, stmt *sitter.Node) bool {
	if python.Kind(stmt) != python.StmtCall {
		return false
	}
	switch python.LastName(statementCallee(m, stmt)) {
	case "append", "extend", "write", "add":
		return true
	}
	return false
}

var collectionTypes = map[string]bool{
	"list": true, "dict": true, "set": true, "tuple": true,
	"deque": true, "OrderedDict": true, "defaultdict": true,
}

// isEmptyCollectionAssign reports "x = []", "x = {}", "x = list()" and the like.
func isEmptyCollectionAssign(m *python.Module, stmt *sitter.Node) bool {
	if python.Kind(stmt) != python.StmtAssign {
		return false
	}
	right := python.Expression(stmt).ChildByFieldName("right")
	if right == nil {
		return false
	}
	switch right.Type() {
	case "list", "dictionary", "set", "tuple":
		return right.NamedChildCount() == 0
	case "call":
		return collectionTypes[python.LastName(python.CallName(m, right))]
	}
	return false
}

// isListBuilding recognises the accumulate idiom: an empty collection, loops
// or statements that only append to it, and optionally returning it.
func isListBuilding(m *python.Module, stmts []*sitter.Node) bool {
	appends, other := 0, 0
	var visit func([]*sitter.Node)
	visit = func(list []*sitter.Node) {
		for _, s := range list {
			switch kind := python.Kind(s); {
			case isAppendCall(m, s):
				appends++
			case isEmptyCollectionAssign(m, s), kind == python.StmtReturn, kind == python.StmtDocstring:
			case kind == python.StmtFor, kind == python.StmtIf:
				for _, blk := range python.NestedBlocks(s) {
					visit(python.Statements(blk))
				}
			default:
				other++
			}
		}
	}
	visit(stmts)
	return appends > 0 && other == 0
}

// countReal counts assignments, calls, returns, raises and asserts,
// descending into nested blocks.
func countReal(stmts []*sitter.Node) int {
	n := 0
	for _, s := range stmts {
		kind := python.Kind(s)
		switch kind {
		case python.StmtAssign, python.StmtAugAssign, python.StmtCall,
			python.StmtReturn, python.StmtRaise, python.StmtAssert:
			n++
		}
		if python.IsCompound(kind) {
			for _, blk := range python.NestedBlocks(s) {
				n += countReal(python.Statements(blk))
			}
		}
	}
	return n
}
