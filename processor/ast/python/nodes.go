package python

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// ParamKind classifies a function parameter.
type ParamKind string

const (
	ParamPositional  ParamKind = "positional"
	ParamKeywordOnly ParamKind = "keyword_only"
	ParamVarArgs     ParamKind = "var_args"
	ParamVarKwargs   ParamKind = "var_kwargs"
)

// Parameter is one declared function parameter.
type Parameter struct {
	Name       string
	Kind       ParamKind
	Annotation string
	Default    *sitter.Node
	Line       int
}

// HasDefault reports whether the parameter declares a default value.
func (p Parameter) HasDefault() bool {
	return p.Default != nil
}

// IsOptional reports whether callers may omit the parameter or pass None.
func (p Parameter) IsOptional() bool {
	if p.Default != nil {
		return true
	}
	return strings.HasPrefix(p.Annotation, "Optional[") ||
		strings.Contains(p.Annotation, "None")
}

// Function wraps a function_definition node.
type Function struct {
	Node       *sitter.Node
	Name       string
	Decorators []string

	// Class is the directly enclosing class for methods, nil otherwise.
	Class *Class
	// Parent is the enclosing function for nested definitions.
	Parent *Function

	module *Module

	paramsOnce sync.Once
	params     []Parameter

	callsOnce sync.Once
	calls     []string
}

func newFunction(m *Module, node *sitter.Node, class *Class, parent *Function, decorators []string) *Function {
	return &Function{
		Node:       node,
		Name:       m.Text(node.ChildByFieldName("name")),
		Decorators: decorators,
		Class:      class,
		Parent:     parent,
		module:     m,
	}
}

// Module returns the module the function was parsed from.
func (f *Function) Module() *Module { return f.module }

// LineNumber returns the 1-based line of the def keyword.
func (f *Function) LineNumber() int { return StartLine(f.Node) }

// EndLine returns the 1-based last line of the function.
func (f *Function) EndLine() int { return EndLine(f.Node) }

// LineCount returns the number of source lines the function spans.
func (f *Function) LineCount() int { return f.EndLine() - f.LineNumber() + 1 }

// Body returns the function body block.
func (f *Function) Body() *sitter.Node { return f.Node.ChildByFieldName("body") }

// IsTestFunction reports whether the function is a test by name.
func (f *Function) IsTestFunction() bool { return strings.HasPrefix(f.Name, "test_") }

// IsDunder reports whether the name is a double-underscore special method.
func (f *Function) IsDunder() bool { return IsDunderName(f.Name) }

// IsMethod reports whether the function is defined directly in a class body.
func (f *Function) IsMethod() bool { return f.Class != nil }

// IsPrivate reports whether the name starts with an underscore.
func (f *Function) IsPrivate() bool { return strings.HasPrefix(f.Name, "_") && !f.IsDunder() }

// IsAsync reports whether the function is declared with async def.
func (f *Function) IsAsync() bool {
	for i := 0; i < int(f.Node.ChildCount()); i++ {
		if f.Node.Child(i).Type() == "async" {
			return true
		}
	}
	return false
}

// HasDecorator reports whether any decorator's name equals name, ignoring
// the leading @ and any call arguments.
func (f *Function) HasDecorator(name string) bool {
	for _, d := range f.Decorators {
		d = strings.TrimPrefix(d, "@")
		if idx := strings.Index(d, "("); idx != -1 {
			d = d[:idx]
		}
		if d == name || strings.HasSuffix(d, "."+name) {
			return true
		}
	}
	return false
}

// IsProperty reports whether the function is a property getter.
func (f *Function) IsProperty() bool {
	return f.HasDecorator("property") || f.HasDecorator("cached_property")
}

// IsFixture reports whether the function is a pytest fixture.
func (f *Function) IsFixture() bool {
	return f.HasDecorator("fixture")
}

// QualifiedName returns Class.method for methods and the bare name otherwise.
func (f *Function) QualifiedName() string {
	if f.Class != nil {
		return f.Class.Name + "." + f.Name
	}
	return f.Name
}

// Docstring returns the first-statement string literal, unquoted.
func (f *Function) Docstring() string {
	return docstring(f.module, f.Body())
}

// Statements returns the body statements, excluding comments and the
// docstring.
func (f *Function) Statements() []*sitter.Node {
	stmts := Statements(f.Body())
	if len(stmts) > 0 && IsDocstring(stmts[0]) {
		stmts = stmts[1:]
	}
	return stmts
}

// Parameters returns the declared parameters in order, including self/cls.
func (f *Function) Parameters() []Parameter {
	f.paramsOnce.Do(func() {
		f.params = parseParameters(f.module, f.Node.ChildByFieldName("parameters"))
	})
	return f.params
}

// ExplicitParameters drops a leading self or cls on methods.
func (f *Function) ExplicitParameters() []Parameter {
	params := f.Parameters()
	if f.IsMethod() && len(params) > 0 && (params[0].Name == "self" || params[0].Name == "cls") {
		return params[1:]
	}
	return params
}

// Calls returns the callee names invoked in the body, in order of
// appearance, without descending into nested definitions.
func (f *Function) Calls() []string {
	f.callsOnce.Do(func() {
		f.calls = make([]string, 0)
		WalkBody(f.Body(), func(n *sitter.Node) bool {
			if n.Type() == "call" {
				f.calls = append(f.calls, CallName(f.module, n))
			}
			return true
		})
	})
	return f.calls
}

func parseParameters(m *Module, params *sitter.Node) []Parameter {
	if params == nil {
		return nil
	}
	var out []Parameter
	keywordOnly := false
	for i := 0; i < int(params.NamedChildCount()); i++ {
		child := params.NamedChild(i)
		p := Parameter{Kind: ParamPositional, Line: StartLine(child)}
		if keywordOnly {
			p.Kind = ParamKeywordOnly
		}
		switch child.Type() {
		case "identifier":
			p.Name = m.Text(child)
		case "typed_parameter":
			inner := child.NamedChild(0)
			switch inner.Type() {
			case "list_splat_pattern":
				p.Kind = ParamVarArgs
				keywordOnly = true
				p.Name = m.Text(inner.NamedChild(0))
			case "dictionary_splat_pattern":
				p.Kind = ParamVarKwargs
				p.Name = m.Text(inner.NamedChild(0))
			default:
				p.Name = m.Text(inner)
			}
			p.Annotation = m.Text(child.ChildByFieldName("type"))
		case "default_parameter", "typed_default_parameter":
			p.Name = m.Text(child.ChildByFieldName("name"))
			p.Annotation = m.Text(child.ChildByFieldName("type"))
			p.Default = child.ChildByFieldName("value")
		case "list_splat_pattern":
			p.Kind = ParamVarArgs
			keywordOnly = true
			p.Name = m.Text(child.NamedChild(0))
		case "dictionary_splat_pattern":
			p.Kind = ParamVarKwargs
			p.Name = m.Text(child.NamedChild(0))
		case "keyword_separator":
			keywordOnly = true
			continue
		default:
			// positional_separator, comments
			continue
		}
		out = append(out, p)
	}
	return out
}

// Class wraps a class_definition node.
type Class struct {
	Node  *sitter.Node
	Name  string
	Bases []string

	module *Module

	methodsOnce sync.Once
	methods     []*Function
}

func newClass(m *Module, node *sitter.Node) *Class {
	c := &Class{
		Node:   node,
		Name:   m.Text(node.ChildByFieldName("name")),
		module: m,
	}
	if args := node.ChildByFieldName("superclasses"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() == "keyword_argument" || arg.Type() == "comment" {
				continue
			}
			c.Bases = append(c.Bases, m.Text(arg))
		}
	}
	return c
}

// LineNumber returns the 1-based line of the class keyword.
func (c *Class) LineNumber() int { return StartLine(c.Node) }

// EndLine returns the 1-based last line of the class.
func (c *Class) EndLine() int { return EndLine(c.Node) }

// LineCount returns the number of source lines the class spans.
func (c *Class) LineCount() int { return c.EndLine() - c.LineNumber() + 1 }

// Docstring returns the class docstring.
func (c *Class) Docstring() string {
	return docstring(c.module, c.Node.ChildByFieldName("body"))
}

// IsTestClass reports whether the class follows the pytest Test* convention.
func (c *Class) IsTestClass() bool { return strings.HasPrefix(c.Name, "Test") }

// Methods returns the functions defined directly in the class body.
func (c *Class) Methods() []*Function {
	c.methodsOnce.Do(func() {
		c.methods = make([]*Function, 0)
		body := c.Node.ChildByFieldName("body")
		if body == nil {
			return
		}
		for _, child := range Statements(body) {
			def, decorators := unwrapDecorated(c.module, child)
			if def.Type() == "function_definition" {
				c.methods = append(c.methods, newFunction(c.module, def, c, nil, decorators))
			}
		}
	})
	return c.methods
}

// IfStatement wraps an if_statement node.
type IfStatement struct {
	Node        *sitter.Node
	Condition   *sitter.Node
	Consequence *sitter.Node

	module *Module
}

func newIfStatement(m *Module, node *sitter.Node) *IfStatement {
	return &IfStatement{
		Node:        node,
		Condition:   node.ChildByFieldName("condition"),
		Consequence: node.ChildByFieldName("consequence"),
		module:      m,
	}
}

// LineNumber returns the 1-based line of the if keyword.
func (s *IfStatement) LineNumber() int { return StartLine(s.Node) }

// ConditionText returns the source of the condition expression.
func (s *IfStatement) ConditionText() string { return s.module.Text(s.Condition) }

// Branches returns the elif_clause and else_clause nodes in order.
func (s *IfStatement) Branches() []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(s.Node.NamedChildCount()); i++ {
		child := s.Node.NamedChild(i)
		if child.Type() == "elif_clause" || child.Type() == "else_clause" {
			out = append(out, child)
		}
	}
	return out
}

// HasElse reports whether the statement ends in an else branch.
func (s *IfStatement) HasElse() bool {
	for _, b := range s.Branches() {
		if b.Type() == "else_clause" {
			return true
		}
	}
	return false
}

// ConsequenceStatements returns the statements of the if body.
func (s *IfStatement) ConsequenceStatements() []*sitter.Node {
	return Statements(s.Consequence)
}

// EnclosingFunction returns the function containing the statement, or nil.
func (s *IfStatement) EnclosingFunction() *Function {
	return s.module.FunctionAt(s.LineNumber())
}

// TryBlock wraps a try_statement node.
type TryBlock struct {
	Node *sitter.Node
	Body *sitter.Node

	module *Module
}

func newTryBlock(m *Module, node *sitter.Node) *TryBlock {
	return &TryBlock{Node: node, Body: node.ChildByFieldName("body"), module: m}
}

// LineNumber returns the 1-based line of the try keyword.
func (t *TryBlock) LineNumber() int { return StartLine(t.Node) }

// HasFinally reports whether the statement has a finally clause.
func (t *TryBlock) HasFinally() bool {
	for i := 0; i < int(t.Node.NamedChildCount()); i++ {
		if t.Node.NamedChild(i).Type() == "finally_clause" {
			return true
		}
	}
	return false
}

// Handlers returns the except clauses in order.
func (t *TryBlock) Handlers() []ExceptHandler {
	var out []ExceptHandler
	for i := 0; i < int(t.Node.NamedChildCount()); i++ {
		child := t.Node.NamedChild(i)
		if child.Type() != "except_clause" && child.Type() != "except_group_clause" {
			continue
		}
		h := ExceptHandler{Node: child, module: t.module}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			part := child.NamedChild(j)
			switch part.Type() {
			case "block":
				h.Body = part
			case "comment":
			default:
				if h.TypeNode == nil {
					h.TypeNode = part
				}
			}
		}
		out = append(out, h)
	}
	return out
}

// ExceptHandler is one except clause of a try statement.
type ExceptHandler struct {
	Node     *sitter.Node
	TypeNode *sitter.Node
	Body     *sitter.Node

	module *Module
}

// LineNumber returns the 1-based line of the except keyword.
func (h ExceptHandler) LineNumber() int { return StartLine(h.Node) }

// IsBare reports a bare "except:" clause.
func (h ExceptHandler) IsBare() bool { return h.TypeNode == nil }

// TypeName returns the caught exception expression without any alias.
func (h ExceptHandler) TypeName() string {
	if h.TypeNode == nil {
		return ""
	}
	text := h.module.Text(h.TypeNode)
	if idx := strings.Index(text, " as "); idx != -1 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// IsBroad reports a bare clause or one catching Exception/BaseException.
func (h ExceptHandler) IsBroad() bool {
	switch h.TypeName() {
	case "", "Exception", "BaseException":
		return true
	}
	return false
}

// IsEmpty reports a handler whose body does nothing: only pass, an ellipsis,
// a bare string or comments.
func (h ExceptHandler) IsEmpty() bool {
	for _, stmt := range Statements(h.Body) {
		switch stmt.Type() {
		case "pass_statement":
			continue
		case "expression_statement":
			if stmt.NamedChildCount() == 1 {
				switch stmt.NamedChild(0).Type() {
				case "ellipsis", "string":
					continue
				}
			}
		}
		return false
	}
	return true
}

// ReRaises reports whether the handler body contains a raise statement.
func (h ExceptHandler) ReRaises() bool {
	found := false
	WalkBody(h.Body, func(n *sitter.Node) bool {
		if n.Type() == "raise_statement" {
			found = true
		}
		return !found
	})
	return found
}

// Import wraps an import or from-import statement.
type Import struct {
	Node *sitter.Node
	// Module is the imported module (the from-part for from-imports).
	Module string
	// Names are the imported names; for plain imports the module paths.
	Names []string
	// IsFrom distinguishes "from x import y".
	IsFrom bool
}

func newImport(m *Module, node *sitter.Node) *Import {
	imp := &Import{Node: node}
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			name := importedName(m, node.NamedChild(i))
			if name != "" {
				imp.Names = append(imp.Names, name)
			}
		}
		if len(imp.Names) > 0 {
			imp.Module = imp.Names[0]
		}
	default:
		imp.IsFrom = true
		moduleNode := node.ChildByFieldName("module_name")
		if node.Type() == "future_import_statement" {
			imp.Module = "__future__"
		} else {
			imp.Module = m.Text(moduleNode)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if moduleNode != nil && child.StartByte() == moduleNode.StartByte() && child.EndByte() == moduleNode.EndByte() {
				continue
			}
			if child.Type() == "wildcard_import" {
				imp.Names = append(imp.Names, "*")
				continue
			}
			if name := importedName(m, child); name != "" {
				imp.Names = append(imp.Names, name)
			}
		}
	}
	return imp
}

func importedName(m *Module, node *sitter.Node) string {
	switch node.Type() {
	case "dotted_name":
		return m.Text(node)
	case "aliased_import":
		return m.Text(node.ChildByFieldName("name"))
	}
	return ""
}

// LineNumber returns the 1-based line of the statement.
func (i *Import) LineNumber() int { return StartLine(i.Node) }

// IsWildcard reports "from x import *".
func (i *Import) IsWildcard() bool {
	for _, n := range i.Names {
		if n == "*" {
			return true
		}
	}
	return false
}

// IsDunderName reports names like __init__.
func IsDunderName(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func docstring(m *Module, body *sitter.Node) string {
	stmts := Statements(body)
	if len(stmts) == 0 || !IsDocstring(stmts[0]) {
		return ""
	}
	return unquote(m.Text(stmts[0].NamedChild(0)))
}

func unquote(raw string) string {
	raw = strings.TrimLeft(raw, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return strings.TrimSpace(raw[len(q) : len(raw)-len(q)])
		}
	}
	return strings.TrimSpace(raw)
}
