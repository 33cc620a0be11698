// Package duplicates implements the duplicate_code scanner: it extracts
// candidate statement blocks from functions, scores block pairs on
// structural and textual similarity, drops incidental repetition and groups
// the surviving matches into one violation per logical duplicate.
package duplicates

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
)

// Block is a contiguous run of statements inside one function.
type Block struct {
	File      string
	Function  string // qualified name, Class.method for methods
	StartLine int
	EndLine   int

	// Signature is the normalized structural encoding.
	Signature string
	// Preview is the dedented source text.
	Preview string
	// Hash identifies Preview.
	Hash string
	// HelperDominated marks blocks made mostly of helper calls.
	HelperDominated bool

	// Only set for blocks extracted in this run; cached blocks carry none.
	stmts  []*sitter.Node
	module *python.Module

	calls []string
}

// Location renders file:start-end.
func (b *Block) Location() string {
	return fmt.Sprintf("%s:%d-%d", b.File, b.StartLine, b.EndLine)
}

// Lines returns the number of source lines the block covers.
func (b *Block) Lines() int {
	return b.EndLine - b.StartLine + 1
}

// HasNodes reports whether the block still holds its syntax nodes.
func (b *Block) HasNodes() bool {
	return len(b.stmts) > 0 && b.module != nil
}

// Detached returns a copy without syntax nodes, the form the block cache
// can reproduce.
func (b *Block) Detached() *Block {
	c := *b
	c.stmts, c.module, c.calls = nil, nil, nil
	return &c
}

// Overlaps reports whether both blocks belong to the same function and share
// at least one line.
func (b *Block) Overlaps(o *Block) bool {
	return b.File == o.File && b.Function == o.Function &&
		b.StartLine <= o.EndLine && o.StartLine <= b.EndLine
}

// functionKey identifies the block's function across files.
func (b *Block) functionKey() string {
	return b.File + "::" + b.Function
}

// funcName returns the unqualified function name.
func (b *Block) funcName() string {
	if idx := strings.LastIndex(b.Function, "."); idx != -1 {
		return b.Function[idx+1:]
	}
	return b.Function
}

var callPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

var notCalls = map[string]bool{
	"if": true, "elif": true, "while": true, "for": true, "in": true, "not": true,
	"and": true, "or": true, "return": true, "assert": true, "with": true,
	"except": true, "lambda": true, "yield": true, "await": true, "raise": true,
	"del": true, "is": true, "else": true,
}

// Calls returns the callee names appearing in the preview, in order.
// Derived from text so cached blocks answer the same way.
func (b *Block) Calls() []string {
	if b.calls != nil {
		return b.calls
	}
	b.calls = make([]string, 0)
	for _, m := range callPattern.FindAllStringSubmatch(b.Preview, -1) {
		if !notCalls[m[1]] {
			b.calls = append(b.calls, m[1])
		}
	}
	return b.calls
}

// dedent strips the common leading indentation of lines.
func dedent(lines []string) string {
	prefix := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := len(l) - len(strings.TrimLeft(l, " \t"))
		if prefix == -1 || indent < prefix {
			prefix = indent
		}
	}
	if prefix <= 0 {
		return strings.TrimRight(strings.Join(lines, "\n"), "\n")
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= prefix {
			out[i] = l[prefix:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// collapse squeezes all whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
