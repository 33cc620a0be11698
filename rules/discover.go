package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// CommonDir holds rules that apply to every behavior.
const CommonDir = "common"

// Discover lists rule files: for every dir, its top-level and common/ rules,
// then the <dir>/<behavior>/ rules. Files are sorted by path within each
// directory and common rules come first. Missing directories are skipped.
func Discover(dirs []string, behavior string) ([]string, error) {
	var common, specific []string
	for _, dir := range dirs {
		top, err := jsonFiles(dir)
		if err != nil {
			return nil, err
		}
		shared, err := jsonFiles(filepath.Join(dir, CommonDir))
		if err != nil {
			return nil, err
		}
		common = append(common, top...)
		common = append(common, shared...)

		if behavior != "" && behavior != CommonDir {
			own, err := jsonFiles(filepath.Join(dir, behavior))
			if err != nil {
				return nil, err
			}
			specific = append(specific, own...)
		}
	}
	return append(common, specific...), nil
}

func jsonFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "*.json", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("list rules in %s: %w", dir, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// Set is an ordered collection of loaded rules.
type Set struct {
	Rules []*Rule
	// Errors are the rule files that failed to load.
	Errors []error

	opts LoadOptions
}

// Load reads every path in order. Files that fail to load are logged and
// recorded in Errors; the rest keep discovery order.
func Load(paths []string, opts LoadOptions) *Set {
	opts = opts.withDefaults()
	s := &Set{opts: opts}
	for _, p := range paths {
		r, err := LoadRule(p, opts)
		if err != nil {
			opts.Logger.Warn("Skipping rule file", "path", p, "error", err)
			s.Errors = append(s.Errors, err)
			continue
		}
		s.Rules = append(s.Rules, r)
	}
	return s
}

// DiscoverAndLoad is Discover followed by Load.
func DiscoverAndLoad(dirs []string, behavior string, opts LoadOptions) (*Set, error) {
	paths, err := Discover(dirs, behavior)
	if err != nil {
		return nil, err
	}
	return Load(paths, opts), nil
}

// SortedByPriority returns the rules by priority, keeping discovery order
// for ties. Priority never changes which rules run.
func (s *Set) SortedByPriority() []*Rule {
	out := append([]*Rule(nil), s.Rules...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityValue() < out[j].PriorityValue() })
	return out
}
