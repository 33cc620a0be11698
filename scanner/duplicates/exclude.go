package duplicates

import (
	"regexp"
	"strings"

	"github.com/c360studio/semcheck/domain"
	"github.com/c360studio/semcheck/processor/ast/python"
)

// Exclusion thresholds applied after a pair is accepted.
const (
	minCallOverlap      = 0.5
	literalAppendShare  = 0.8
	minSharedLiterals   = 0.3
	helperBlockDominant = 0.6
)

// verbGroups map action verbs onto the operation they perform. Blocks in
// functions whose verbs fall in different groups are not duplicates even when
// they look alike.
var verbGroups = map[string]string{
	"create": "create", "add": "create", "insert": "create", "register": "create", "new": "create",
	"delete": "delete", "remove": "delete", "drop": "delete", "destroy": "delete", "unregister": "delete", "clear": "delete",
	"update": "update", "modify": "update", "edit": "update", "set": "update", "patch": "update",
	"get": "read", "read": "read", "load": "read", "fetch": "read", "find": "read", "list": "read", "query": "read",
	"save": "write", "write": "write", "store": "write", "persist": "write", "dump": "write",
}

var nounStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "to": true,
	"for": true, "by": true, "with": true, "from": true, "in": true, "on": true, "all": true,
	"data": true, "info": true, "item": true, "items": true, "value": true, "values": true,
	"get": true, "set": true, "is": true, "has": true,
}

var literalAppend = regexp.MustCompile(`^\s*[\w.]+\.(?:append|write|add)\(\s*(f?(?:"[^"]*"|'[^']*'))\s*\)\s*$`)

// excluded reports whether an accepted pair is incidental repetition and
// returns the reason.
func (d *Detector) excluded(a, b *Block) (string, bool) {
	switch {
	case d.isInterfaceName(a.funcName()) || d.isInterfaceName(b.funcName()):
		return "interface_method", true
	case d.helperDominated(a) || d.helperDominated(b):
		return "helper_dominated", true
	case hasHelperPrefix(d.opts.HelperPrefixes, a.funcName()) && hasHelperPrefix(d.opts.HelperPrefixes, b.funcName()):
		return "helper_functions", true
	case differentOperations(a, b):
		return "different_operations", true
	case disjointCalls(a, b):
		return "disjoint_calls", true
	case distinctLiteralOutput(a, b):
		return "literal_output", true
	}
	return "", false
}

func (d *Detector) isInterfaceName(name string) bool {
	if python.IsDunderName(name) {
		return true
	}
	for _, n := range d.opts.InterfaceNames {
		if n == name {
			return true
		}
	}
	return false
}

func (d *Detector) helperDominated(b *Block) bool {
	return b.HelperDominated
}

// differentOperations compares the verbs and nouns of the two function names.
// Opposing verbs (create vs delete) exclude the pair. Distinct nouns exclude
// it when each block mentions its own noun and not the other's.
func differentOperations(a, b *Block) bool {
	wa, wb := domain.SplitWords(a.funcName()), domain.SplitWords(b.funcName())
	if len(wa) == 0 || len(wb) == 0 {
		return false
	}
	ga, gb := verbGroups[wa[0]], verbGroups[wb[0]]
	if ga != "" && gb != "" && ga != gb {
		return true
	}

	na, nb := nouns(wa), nouns(wb)
	if len(na) == 0 || len(nb) == 0 || intersects(na, nb) {
		return false
	}
	pa, pb := strings.ToLower(a.Preview), strings.ToLower(b.Preview)
	return mentionsOnlyOwn(na, pa, pb) || mentionsOnlyOwn(nb, pb, pa)
}

func nouns(words []string) map[string]bool {
	out := make(map[string]bool)
	for i, w := range words {
		// Leading word is the verb by convention.
		if i == 0 && len(words) > 1 {
			continue
		}
		if nounStopWords[w] || len(w) < 3 {
			continue
		}
		out[strings.TrimSuffix(w, "s")] = true
	}
	return out
}

func intersects(a, b map[string]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

func mentionsOnlyOwn(own map[string]bool, ownText, otherText string) bool {
	for n := range own {
		if strings.Contains(ownText, n) && !strings.Contains(otherText, n) {
			return true
		}
	}
	return false
}

// disjointCalls excludes blocks with the same number of calls whose callee
// sets barely overlap.
func disjointCalls(a, b *Block) bool {
	ca, cb := a.Calls(), b.Calls()
	if len(ca) == 0 || len(ca) != len(cb) {
		return false
	}
	return jaccard(toSet(ca), toSet(cb)) < minCallOverlap
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// distinctLiteralOutput excludes sequential output building: both blocks
// mostly append string literals and share few of them.
func distinctLiteralOutput(a, b *Block) bool {
	la, ra := appendedLiterals(a.Preview)
	lb, rb := appendedLiterals(b.Preview)
	if ra < literalAppendShare || rb < literalAppendShare {
		return false
	}
	sa, sb := toSet(la), toSet(lb)
	shared := 0
	for k := range sa {
		if sb[k] {
			shared++
		}
	}
	larger := len(sa)
	if len(sb) > larger {
		larger = len(sb)
	}
	if larger == 0 {
		return false
	}
	return float64(shared)/float64(larger) < minSharedLiterals
}

// appendedLiterals returns the literals passed to append-style calls and the
// share of non-blank lines that are such calls.
func appendedLiterals(preview string) ([]string, float64) {
	var literals []string
	lines := 0
	for _, line := range strings.Split(preview, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if m := literalAppend.FindStringSubmatch(line); m != nil {
			literals = append(literals, m[1])
		}
	}
	if lines == 0 {
		return nil, 0
	}
	return literals, float64(len(literals)) / float64(lines)
}
