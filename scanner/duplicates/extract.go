package duplicates

import (
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast"
	"github.com/c360studio/semcheck/processor/ast/python"
)

// controlFlowTypes are the subtree roots considered as candidate blocks.
var controlFlowTypes = map[string]bool{
	"if_statement":    true,
	"for_statement":   true,
	"while_statement": true,
	"try_statement":   true,
	"with_statement":  true,
}

// Extractor turns parsed modules into candidate blocks.
type Extractor struct {
	opts   Options
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger uses slog.Default().
func NewExtractor(opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{opts: opts, logger: logger}
}

// Extract returns the surviving candidate blocks of m in source order.
func (x *Extractor) Extract(m *python.Module) []*Block {
	var blocks []*Block
	for _, fn := range m.Functions() {
		if fn.IsTestFunction() || isTrivialFunction(fn) {
			continue
		}
		blocks = append(blocks, x.extractFunction(m, fn)...)
	}
	return blocks
}

func (x *Extractor) extractFunction(m *python.Module, fn *python.Function) []*Block {
	seen := make(map[[2]int]bool)
	var blocks []*Block
	rejected := 0

	add := func(stmts []*sitter.Node) {
		start, end := python.StartLine(stmts[0]), python.EndLine(stmts[len(stmts)-1])
		span := [2]int{start, end}
		if seen[span] {
			return
		}
		seen[span] = true
		if reason := x.rejectReason(m, stmts); reason != "" {
			rejected++
			return
		}
		blk := newBlock(m, fn, stmts)
		blk.HelperDominated = x.helperRatio(m, stmts) >= helperBlockDominant
		blocks = append(blocks, blk)
	}

	// Control-flow subtrees anywhere in the body.
	python.WalkBody(fn.Body(), func(n *sitter.Node) bool {
		if !controlFlowTypes[n.Type()] {
			return true
		}
		nodes := python.CountNodes(n)
		span := python.LineSpan(n, n)
		if nodes >= x.opts.MinNodes && nodes <= x.opts.MaxNodes &&
			span >= x.opts.MinSpan && span <= x.opts.MaxSpan {
			add([]*sitter.Node{n})
		}
		return true
	})

	// Sliding windows over the top-level statements.
	stmts := fn.Statements()
	switch {
	case len(stmts) == 0:
	case len(stmts) < x.opts.MinWindow:
		add(stmts)
	default:
		for size := x.opts.MinWindow; size <= x.opts.MaxWindow && size <= len(stmts); size++ {
			for start := 0; start+size <= len(stmts); start++ {
				add(stmts[start : start+size])
			}
		}
	}

	if rejected > 0 {
		x.logger.Debug("Rejected duplicate candidates",
			"file", m.Path, "function", fn.QualifiedName(), "rejected", rejected, "kept", len(blocks))
	}
	return blocks
}

func newBlock(m *python.Module, fn *python.Function, stmts []*sitter.Node) *Block {
	start, end := python.StartLine(stmts[0]), python.EndLine(stmts[len(stmts)-1])
	preview := dedent(m.Lines(start, end))
	return &Block{
		File:      m.Path,
		Function:  fn.QualifiedName(),
		StartLine: start,
		EndLine:   end,
		Signature: Signature(m, stmts),
		Preview:   preview,
		Hash:      ast.ComputeHash([]byte(preview)),
		stmts:     stmts,
		module:    m,
	}
}
