package ast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileKind partitions discovered source files.
type FileKind string

const (
	// KindCode is implementation source.
	KindCode FileKind = "code"
	// KindTest is test source.
	KindTest FileKind = "test"
)

// FileSet maps each kind to its files, sorted by path.
type FileSet map[FileKind][]string

// All returns every file in the set, sorted and de-duplicated.
func (fs FileSet) All() []string {
	seen := make(map[string]bool)
	var all []string
	for _, files := range fs {
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				all = append(all, f)
			}
		}
	}
	sort.Strings(all)
	return all
}

// Len returns the number of files across all kinds.
func (fs FileSet) Len() int {
	n := 0
	for _, files := range fs {
		n += len(files)
	}
	return n
}

// DefaultTestPatterns classify a file as a test when its repo-relative path
// matches any of them.
var DefaultTestPatterns = []string{
	"**/test_*.py",
	"**/*_test.py",
	"**/tests/**/*.py",
	"**/conftest.py",
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	// Extensions lists the source extensions to collect (default ".py").
	Extensions []string

	// TestPatterns are doublestar patterns matched against the relative path.
	TestPatterns []string

	// Exclude are doublestar patterns for paths to leave out entirely.
	Exclude []string
}

// Discover walks root and returns absolute source paths partitioned into
// code and test kinds.
func Discover(ctx context.Context, root string, opts DiscoverOptions) (FileSet, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".py"}
	}
	testPatterns := opts.TestPatterns
	if len(testPatterns) == 0 {
		testPatterns = DefaultTestPatterns
	}

	files := FileSet{KindCode: {}, KindTest: {}}
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		relPath, _ := filepath.Rel(absRoot, path)
		if d.IsDir() {
			if path != absRoot && ShouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(path, exts) {
			return nil
		}
		slashed := filepath.ToSlash(relPath)
		if MatchAny(opts.Exclude, slashed) {
			return nil
		}

		if MatchAny(testPatterns, slashed) {
			files[KindTest] = append(files[KindTest], path)
		} else {
			files[KindCode] = append(files[KindCode], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	for kind := range files {
		sort.Strings(files[kind])
	}
	return files, nil
}

// ShouldSkipDir reports whether a directory name is never scanned: hidden
// directories, virtual environments, caches and build output.
func ShouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "venv", "env", "__pycache__", "node_modules", "vendor", "dist",
		"build", "site-packages":
		return true
	}
	return false
}

// MatchAny reports whether path matches any doublestar pattern. A pattern
// without glob characters matches as a path prefix or path segment.
func MatchAny(patterns []string, path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if pattern == "" {
			continue
		}
		if !containsGlob(pattern) {
			trimmed := strings.TrimSuffix(pattern, "/")
			if path == trimmed || strings.HasPrefix(path, trimmed+"/") ||
				strings.Contains(path, "/"+trimmed+"/") || strings.HasSuffix(path, "/"+trimmed) {
				return true
			}
			continue
		}
		// doublestar treats a leading **/ as optional, so "**/tests/**" also
		// matches a top-level tests directory.
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func hasExtension(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
