package duplicates

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semcheck/scanner"
)

// ScanCrossFile compares blocks of each changed file against the reference
// files nearest to it. Each accepted pair becomes a two-location violation,
// reported once per function pair.
func (d *Detector) ScanCrossFile(ctx context.Context, req scanner.CrossFileRequest) ([]scanner.Violation, error) {
	run := req.Run
	if run == nil {
		run = scanner.NewRunContext(scanner.RunContext{Logger: d.logger})
	}
	logger := run.Log()

	var cache *BlockCache
	if store, err := run.OpenCache(ctx, CacheSubdir); err != nil {
		logger.Warn("Block cache unavailable, continuing without it", "error", err)
	} else {
		cache = NewBlockCache(store, Version, run.Metrics)
	}

	budget := req.MaxComparisons
	if budget <= 0 {
		budget = d.opts.MaxComparisons
	}

	loader := &blockLoader{detector: d, run: run, cache: cache, loaded: make(map[string][]*Block)}
	changedSet := make(map[string]bool, len(req.Changed))
	for _, c := range req.Changed {
		changedSet[c] = true
	}

	// Plan every comparison up front so progress has a denominator.
	type job struct {
		file string
		refs []string
	}
	var jobs []job
	total := 0
	for _, c := range req.Changed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		own, err := loader.changed(ctx, c)
		if err != nil {
			return nil, err
		}
		if len(own) == 0 {
			continue
		}
		refs := Proximity(c, req.All, d.opts.ProximityCap)
		for _, r := range refs {
			blocks, err := loader.reference(ctx, r, changedSet[r])
			if err != nil {
				return nil, err
			}
			total += len(own) * len(blocks)
		}
		jobs = append(jobs, job{file: c, refs: refs})
	}
	if total > budget {
		logger.Warn("Cross-file comparisons exceed budget, results will be partial",
			"planned", total, "budget", budget)
		total = budget
	}

	var (
		violations []scanner.Violation
		seen       = make(map[string]bool)
		done       int
		start      = time.Now()
		exhausted  bool
	)
	every := d.opts.ProgressEvery
	if every <= 0 {
		every = 1000
	}

scan:
	for _, j := range jobs {
		own := loader.loaded[j.file]
		for _, r := range j.refs {
			for _, a := range own {
				for _, b := range loader.loaded[r] {
					if done >= budget {
						exhausted = true
						break scan
					}
					done++
					if done%every == 0 {
						if err := ctx.Err(); err != nil {
							return nil, err
						}
						run.Progress(scanner.NewProgress(req.Rule.Name, scanner.PhaseCrossFile, done, total, start, "comparing blocks"))
					}

					key := pairKey(a, b)
					if seen[key] || !d.Match(a, b) {
						continue
					}
					seen[key] = true
					violations = append(violations, scanner.NewViolation(req.Rule, a.File, a.StartLine,
						d.opts.Severity, groupMessage([]*Block{a, b})))
				}
			}
		}
	}

	run.Metrics.Comparisons(done)
	msg := fmt.Sprintf("%d comparisons, %d duplicates", done, len(violations))
	if exhausted {
		msg += " (budget reached)"
	}
	run.Progress(scanner.NewProgress(req.Rule.Name, scanner.PhaseCrossFile, done, total, start, msg))

	if cache != nil {
		hits, misses := cache.Stats()
		logger.Debug("Block cache stats", "hits", hits, "misses", misses)
	}
	return violations, nil
}

// pairKey identifies an unordered pair of functions.
func pairKey(a, b *Block) string {
	ka, kb := a.functionKey(), b.functionKey()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "\x00" + kb
}

// blockLoader memoizes blocks per file for one cross-file pass. Every block
// it hands out is detached, so a pair scores the same whether its files were
// parsed or served from the cache.
type blockLoader struct {
	detector *Detector
	run      *scanner.RunContext
	cache    *BlockCache
	loaded   map[string][]*Block
}

// changed extracts blocks directly from the parsed file and refreshes its
// cache entry.
func (l *blockLoader) changed(ctx context.Context, path string) ([]*Block, error) {
	if blocks, ok := l.loaded[path]; ok {
		return blocks, nil
	}
	blocks, err := l.parse(ctx, path)
	if err != nil {
		return nil, err
	}
	l.loaded[path] = blocks
	return blocks, nil
}

// reference serves unchanged files from the cache when possible.
func (l *blockLoader) reference(ctx context.Context, path string, isChanged bool) ([]*Block, error) {
	if blocks, ok := l.loaded[path]; ok {
		return blocks, nil
	}
	if isChanged || l.cache == nil {
		return l.changed(ctx, path)
	}

	blocks, hit, err := l.cache.Load(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.run.Log().Warn("Skipping reference file", "file", path, "error", err)
		l.loaded[path] = nil
		return nil, nil
	}
	if !hit {
		return l.changed(ctx, path)
	}
	l.loaded[path] = blocks
	return blocks, nil
}

func (l *blockLoader) parse(ctx context.Context, path string) ([]*Block, error) {
	mod, err := l.run.Sources.Get(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.run.Log().Warn("Skipping unparsable file in cross-file pass", "file", path, "error", err)
		return nil, nil
	}
	blocks := l.detector.extractor.Extract(mod)
	if l.cache != nil {
		if err := l.cache.Save(ctx, path, blocks); err != nil {
			l.run.Log().Debug("Block cache write failed", "file", path, "error", err)
		}
	}
	detached := make([]*Block, len(blocks))
	for i, b := range blocks {
		detached[i] = b.Detached()
	}
	return detached, nil
}

// Proximity selects reference files for changed: same directory first, then
// the rest of the parent directory, then the grandparent, up to limit files.
// A limit of 0 or less means no limit within the grandparent.
func Proximity(changed string, candidates []string, limit int) []string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	dir := filepath.Dir(changed)
	parent := filepath.Dir(dir)
	levels := []func(string) bool{
		func(p string) bool { return filepath.Dir(p) == dir },
		func(p string) bool { return isUnder(p, parent) },
		func(p string) bool { return isUnder(p, filepath.Dir(parent)) },
	}

	picked := make(map[string]bool)
	var out []string
	for _, match := range levels {
		for _, c := range sorted {
			if limit > 0 && len(out) >= limit {
				return out
			}
			if c == changed || picked[c] || !match(c) {
				continue
			}
			picked[c] = true
			out = append(out, c)
		}
	}
	return out
}

func isUnder(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
