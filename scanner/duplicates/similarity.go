package duplicates

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/c360studio/semcheck/processor/ast/python"
	"github.com/c360studio/semcheck/scanner"
)

// Combo accepts a pair when both scores reach their floor.
type Combo struct {
	Structural float64 `json:"structural" yaml:"structural"`
	Preview    float64 `json:"preview" yaml:"preview"`
}

// Thresholds decide whether a scored pair is a duplicate. Any one
// satisfied condition accepts.
type Thresholds struct {
	Combos []Combo `json:"combos" yaml:"combos"`

	// BothHigh and BothLow accept when the larger score reaches BothHigh
	// and the smaller one reaches BothLow.
	BothHigh float64 `json:"both_high" yaml:"both_high"`
	BothLow  float64 `json:"both_low" yaml:"both_low"`

	StructuralAlone float64 `json:"structural_alone" yaml:"structural_alone"`

	// SignaturePrefilter skips deep comparison below this signature ratio.
	SignaturePrefilter float64 `json:"signature_prefilter" yaml:"signature_prefilter"`
}

// DefaultThresholds returns the tuned acceptance rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Combos: []Combo{
			{Structural: 0.85, Preview: 0.50},
			{Structural: 0.80, Preview: 0.70},
		},
		BothHigh:           0.90,
		BothLow:            0.60,
		StructuralAlone:    0.90,
		SignaturePrefilter: 0.50,
	}
}

// ThresholdsFromParams overlays threshold keys from p on base.
func ThresholdsFromParams(p scanner.Params, base Thresholds) Thresholds {
	t := base
	t.BothHigh = p.Float("both_high", t.BothHigh)
	t.BothLow = p.Float("both_low", t.BothLow)
	t.StructuralAlone = p.Float("structural_alone", t.StructuralAlone)
	t.SignaturePrefilter = p.Float("signature_prefilter", t.SignaturePrefilter)

	if raw, ok := p["combos"].([]any); ok {
		combos := make([]Combo, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cp := scanner.Params(m)
			combos = append(combos, Combo{
				Structural: cp.Float("structural", 1),
				Preview:    cp.Float("preview", 1),
			})
		}
		t.Combos = combos
	}
	return t
}

// Accept applies the thresholds to a structural and a preview score.
func (t Thresholds) Accept(structural, preview float64) bool {
	for _, c := range t.Combos {
		if structural >= c.Structural && preview >= c.Preview {
			return true
		}
	}
	hi, lo := structural, preview
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi >= t.BothHigh && lo >= t.BothLow {
		return true
	}
	return structural >= t.StructuralAlone
}

// Score holds the three similarity measures of one block pair.
type Score struct {
	// Structural is the deep node comparison, or the signature ratio when
	// either block has no syntax nodes.
	Structural float64
	Signature  float64
	Preview    float64
}

// Compare scores a against b. Deep comparison is skipped when the signature
// ratio falls below the prefilter.
func Compare(a, b *Block, t Thresholds) Score {
	s := Score{Signature: Ratio(a.Signature, b.Signature)}
	if s.Signature < t.SignaturePrefilter {
		s.Structural = s.Signature
		return s
	}
	s.Preview = Ratio(collapse(a.Preview), collapse(b.Preview))
	if a.HasNodes() && b.HasNodes() {
		c := comparer{ma: a.module, mb: b.module}
		s.Structural = c.sequence(a.stmts, b.stmts)
	} else {
		s.Structural = s.Signature
	}
	return s
}

// Ratio is the difflib sequence-matcher ratio of two strings, compared
// character by character.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Node comparison weights: a type match earns typeWeight, the remainder is
// earned by the children.
const (
	typeWeight        = 0.3
	childWeight       = 1 - typeWeight
	operatorPenalty   = 0.5
	callArityPenalty  = 0.7
	callTargetPenalty = 0.8
)

var operatorNodes = map[string]bool{
	"comparison_operator":  true,
	"binary_operator":      true,
	"boolean_operator":     true,
	"unary_operator":       true,
	"augmented_assignment": true,
	"not_operator":         true,
}

type comparer struct {
	ma, mb *python.Module
}

func (c comparer) nodes(a, b *sitter.Node) float64 {
	if a.Type() != b.Type() {
		return 0
	}
	detail := 1.0
	if operatorNodes[a.Type()] && !equalStrings(python.Operators(a), python.Operators(b)) {
		detail *= operatorPenalty
	}
	if a.Type() == "call" {
		if argCount(a) != argCount(b) {
			detail *= callArityPenalty
		}
		if callShape(c.ma, a) != callShape(c.mb, b) {
			detail *= callTargetPenalty
		}
	}

	ca, cb := namedChildren(a), namedChildren(b)
	switch {
	case len(ca) == 0 && len(cb) == 0:
		return typeWeight + childWeight*detail
	case len(ca) == 0 || len(cb) == 0:
		return typeWeight
	}
	return typeWeight + childWeight*detail*c.sequence(ca, cb)
}

// sequence compares two node lists pairwise when their lengths match, and
// by best-match alignment otherwise. Unmatched nodes count as zero.
func (c comparer) sequence(xs, ys []*sitter.Node) float64 {
	if len(xs) == 0 || len(ys) == 0 {
		if len(xs) == len(ys) {
			return 1
		}
		return 0
	}
	if len(xs) == len(ys) {
		total := 0.0
		for i := range xs {
			total += c.nodes(xs[i], ys[i])
		}
		return total / float64(len(xs))
	}

	short, long := xs, ys
	swapped := false
	if len(short) > len(long) {
		short, long = long, short
		swapped = true
	}
	used := make([]bool, len(long))
	total := 0.0
	for _, s := range short {
		best, bestIdx := 0.0, -1
		for j, l := range long {
			if used[j] {
				continue
			}
			var score float64
			if swapped {
				score = c.nodes(l, s)
			} else {
				score = c.nodes(s, l)
			}
			if score > best {
				best, bestIdx = score, j
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			total += best
		}
	}
	return total / float64(len(long))
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() != "comment" {
			out = append(out, child)
		}
	}
	return out
}

func argCount(call *sitter.Node) int {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return 0
	}
	return int(args.NamedChildCount())
}

// callShape keeps the receiver depth of a callee: "a.b.c" becomes "_._._".
func callShape(m *python.Module, call *sitter.Node) string {
	name := python.CallName(m, call)
	return strings.Repeat("_.", strings.Count(name, ".")) + "_"
}

func equalStrings(a, b []string) bool {
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
