package python

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Module is a parsed Python source file. Collections are computed on first
// access and cached for the lifetime of the Module.
type Module struct {
	// Path is the file path the module was parsed from.
	Path string

	// Source is the raw file content.
	Source []byte

	// Hash is the short content hash.
	Hash string

	// Root is the tree-sitter module node.
	Root *sitter.Node

	tree *sitter.Tree

	functionsOnce sync.Once
	functions     []*Function

	classesOnce sync.Once
	classes     []*Class

	ifsOnce sync.Once
	ifs     []*IfStatement

	triesOnce sync.Once
	tries     []*TryBlock

	importsOnce sync.Once
	imports     []*Import
}

// Close releases the underlying syntax tree.
func (m *Module) Close() {
	if m.tree != nil {
		m.tree.Close()
		m.tree = nil
	}
}

// Text returns the source text spanned by node.
func (m *Module) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return node.Content(m.Source)
}

// LineCount returns the number of lines in the file.
func (m *Module) LineCount() int {
	if len(m.Source) == 0 {
		return 0
	}
	n := strings.Count(string(m.Source), "\n")
	if !strings.HasSuffix(string(m.Source), "\n") {
		n++
	}
	return n
}

// Lines returns source lines start..end (1-based, inclusive).
func (m *Module) Lines(start, end int) []string {
	all := strings.Split(string(m.Source), "\n")
	if start < 1 {
		start = 1
	}
	if end > len(all) {
		end = len(all)
	}
	if start > end {
		return nil
	}
	return all[start-1 : end]
}

// Functions returns every function and method in source order, including
// nested definitions.
func (m *Module) Functions() []*Function {
	m.functionsOnce.Do(func() {
		m.functions = make([]*Function, 0)
		m.collectFunctions(m.Root, nil, nil)
	})
	return m.functions
}

// Classes returns every class in source order, including nested classes.
func (m *Module) Classes() []*Class {
	m.classesOnce.Do(func() {
		m.classes = make([]*Class, 0)
		Walk(m.Root, func(n *sitter.Node) bool {
			if n.Type() == "class_definition" {
				m.classes = append(m.classes, newClass(m, n))
			}
			return true
		})
	})
	return m.classes
}

// IfStatements returns every if statement in source order. elif branches
// belong to their enclosing statement.
func (m *Module) IfStatements() []*IfStatement {
	m.ifsOnce.Do(func() {
		m.ifs = make([]*IfStatement, 0)
		Walk(m.Root, func(n *sitter.Node) bool {
			if n.Type() == "if_statement" {
				m.ifs = append(m.ifs, newIfStatement(m, n))
			}
			return true
		})
	})
	return m.ifs
}

// TryBlocks returns every try statement in source order.
func (m *Module) TryBlocks() []*TryBlock {
	m.triesOnce.Do(func() {
		m.tries = make([]*TryBlock, 0)
		Walk(m.Root, func(n *sitter.Node) bool {
			if n.Type() == "try_statement" {
				m.tries = append(m.tries, newTryBlock(m, n))
			}
			return true
		})
	})
	return m.tries
}

// Imports returns every import statement in source order.
func (m *Module) Imports() []*Import {
	m.importsOnce.Do(func() {
		m.imports = make([]*Import, 0)
		Walk(m.Root, func(n *sitter.Node) bool {
			switch n.Type() {
			case "import_statement", "import_from_statement", "future_import_statement":
				m.imports = append(m.imports, newImport(m, n))
				return false
			}
			return true
		})
	})
	return m.imports
}

// FunctionAt returns the innermost function containing line, or nil.
func (m *Module) FunctionAt(line int) *Function {
	var found *Function
	for _, fn := range m.Functions() {
		if fn.LineNumber() <= line && line <= fn.EndLine() {
			found = fn
		}
	}
	return found
}

func (m *Module) collectFunctions(node *sitter.Node, class *Class, parent *Function) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		def, decorators := unwrapDecorated(m, child)
		switch def.Type() {
		case "function_definition":
			fn := newFunction(m, def, class, parent, decorators)
			m.functions = append(m.functions, fn)
			if body := def.ChildByFieldName("body"); body != nil {
				m.collectFunctions(body, nil, fn)
			}
		case "class_definition":
			cls := newClass(m, def)
			if body := def.ChildByFieldName("body"); body != nil {
				m.collectFunctions(body, cls, parent)
			}
		default:
			m.collectFunctions(child, class, parent)
		}
	}
}

// unwrapDecorated returns the definition inside a decorated_definition along
// with its decorator texts. Other nodes are returned unchanged.
func unwrapDecorated(m *Module, node *sitter.Node) (*sitter.Node, []string) {
	if node.Type() != "decorated_definition" {
		return node, nil
	}
	var decorators []string
	var def *sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "decorator":
			decorators = append(decorators, strings.TrimSpace(m.Text(child)))
		case "function_definition", "class_definition":
			def = child
		}
	}
	if def == nil {
		return node, decorators
	}
	return def, decorators
}
