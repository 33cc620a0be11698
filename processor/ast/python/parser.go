// Package python parses Python source with tree-sitter and exposes typed,
// lazily computed accessors over the syntax tree: functions, classes,
// conditionals, try blocks and imports.
package python

import (
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/c360studio/semcheck/processor/ast"
)

// ParseError reports a source file that cannot be scanned.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

// Parser turns Python source into Modules. A Parser is safe for concurrent
// use; each call gets its own tree-sitter parser.
type Parser struct {
	// Lenient keeps trees that contain syntax errors instead of rejecting them.
	Lenient bool
}

// NewParser creates a new Python parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads and parses a single Python file.
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*Module, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return p.Parse(ctx, filePath, content)
}

// Parse parses content as the Python file at path.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*Module, error) {
	if !utf8.Valid(content) {
		return nil, &ParseError{Path: path, Reason: "content is not valid UTF-8"}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	root := tree.RootNode()
	if !p.Lenient && root.HasError() {
		line := firstErrorLine(root)
		tree.Close()
		return nil, &ParseError{Path: path, Line: line, Reason: "syntax error"}
	}

	return &Module{
		Path:   path,
		Source: content,
		Hash:   ast.ComputeHash(content),
		Root:   root,
		tree:   tree,
	}, nil
}

// firstErrorLine returns the 1-based line of the first ERROR or MISSING node.
func firstErrorLine(node *sitter.Node) int {
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() || child.Type() == "ERROR" {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}
