package duplicates

import (
	"fmt"
	"sort"
	"strings"
)

// unionFind is a disjoint-set forest over block indices.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// Group is one logical duplicate: blocks from at least two functions.
type Group struct {
	Blocks []*Block
}

// functionSet returns the sorted distinct function keys of the group.
func (g *Group) functionSet() string {
	seen := make(map[string]bool)
	var keys []string
	for _, b := range g.Blocks {
		k := b.functionKey()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}

// overlapsPerFunction reports whether every function's blocks in g overlap
// some block of the same function in o.
func (g *Group) overlapsPerFunction(o *Group) bool {
	for _, a := range g.Blocks {
		found := false
		for _, b := range o.Blocks {
			if a.Overlaps(b) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// buildGroups turns accepted pairs over blocks into reduced groups, sorted by
// first location.
func buildGroups(blocks []*Block, pairs [][2]int) []*Group {
	uf := newUnionFind(len(blocks))
	for _, p := range pairs {
		uf.union(p[0], p[1])
	}

	byRoot := make(map[int][]int)
	var roots []int
	for _, p := range pairs {
		for _, idx := range p {
			r := uf.find(idx)
			if _, ok := byRoot[r]; !ok {
				roots = append(roots, r)
			}
			byRoot[r] = appendUnique(byRoot[r], idx)
		}
	}

	groups := make([]*Group, 0, len(roots))
	for _, r := range roots {
		idxs := byRoot[r]
		sort.Ints(idxs)
		g := &Group{}
		for _, i := range idxs {
			g.Blocks = append(g.Blocks, blocks[i])
		}
		groups = append(groups, g)
	}

	groups = mergeSameFunctions(groups)

	out := groups[:0]
	for _, g := range groups {
		g.Blocks = largestCover(g.Blocks)
		if len(g.Blocks) >= 2 {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return lessBlock(out[i].Blocks[0], out[j].Blocks[0])
	})
	return out
}

func appendUnique(list []int, v int) []int {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// mergeSameFunctions folds groups covering the same functions with
// overlapping line ranges, so sliding-window variants of one duplicate are
// reported once.
func mergeSameFunctions(groups []*Group) []*Group {
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(groups) && !merged; i++ {
			for j := i + 1; j < len(groups); j++ {
				gi, gj := groups[i], groups[j]
				if gi.functionSet() != gj.functionSet() || !gi.overlapsPerFunction(gj) {
					continue
				}
				gi.Blocks = append(gi.Blocks, gj.Blocks...)
				groups = append(groups[:j], groups[j+1:]...)
				merged = true
				break
			}
		}
	}
	return groups
}

// largestCover keeps, per function, the largest blocks that do not overlap
// each other.
func largestCover(blocks []*Block) []*Block {
	byFunc := make(map[string][]*Block)
	var order []string
	for _, b := range blocks {
		k := b.functionKey()
		if _, ok := byFunc[k]; !ok {
			order = append(order, k)
		}
		byFunc[k] = append(byFunc[k], b)
	}

	var out []*Block
	for _, k := range order {
		candidates := byFunc[k]
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Lines() != candidates[j].Lines() {
				return candidates[i].Lines() > candidates[j].Lines()
			}
			return candidates[i].StartLine < candidates[j].StartLine
		})
		var kept []*Block
		for _, c := range candidates {
			overlaps := false
			for _, kb := range kept {
				if c.Overlaps(kb) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				kept = append(kept, c)
			}
		}
		out = append(out, kept...)
	}
	sort.SliceStable(out, func(i, j int) bool { return lessBlock(out[i], out[j]) })
	return out
}

func lessBlock(a, b *Block) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.StartLine != b.StartLine {
		return a.StartLine < b.StartLine
	}
	return a.EndLine < b.EndLine
}

// maxPreviewLines bounds each preview quoted in a message.
const maxPreviewLines = 8

// groupMessage renders every location of a duplicate with its preview.
func groupMessage(blocks []*Block) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Duplicate code found in %d locations; extract it into a shared function:", len(blocks))
	for _, blk := range blocks {
		fmt.Fprintf(&b, "\n  - %s in %s", blk.Location(), blk.Function)
		lines := strings.Split(blk.Preview, "\n")
		if len(lines) > maxPreviewLines {
			lines = append(lines[:maxPreviewLines], "...")
		}
		for _, l := range lines {
			b.WriteString("\n      ")
			b.WriteString(l)
		}
	}
	return b.String()
}
