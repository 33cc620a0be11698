package scanner

import (
	"context"
	"errors"
	"sync"

	"github.com/c360studio/semcheck/processor/ast/python"
)

// SourceSet parses each file at most once and hands the same Module to every
// scanner of the run. Parse failures are cached too.
type SourceSet struct {
	parser *python.Parser

	mu      sync.Mutex
	entries map[string]*sourceEntry
	parses  int
}

type sourceEntry struct {
	once sync.Once
	mod  *python.Module
	err  error
}

// NewSourceSet creates an empty set using parser, or a strict parser if nil.
func NewSourceSet(parser *python.Parser) *SourceSet {
	if parser == nil {
		parser = python.NewParser()
	}
	return &SourceSet{parser: parser, entries: make(map[string]*sourceEntry)}
}

// Get returns the parsed module for path.
func (s *SourceSet) Get(ctx context.Context, path string) (*python.Module, error) {
	s.mu.Lock()
	e, ok := s.entries[path]
	if !ok {
		e = &sourceEntry{}
		s.entries[path] = e
	}
	s.mu.Unlock()

	e.once.Do(func() {
		e.mod, e.err = s.parser.ParseFile(ctx, path)
		s.mu.Lock()
		s.parses++
		s.mu.Unlock()
	})
	if e.err != nil && errors.Is(e.err, context.Canceled) {
		// Cancellation is not a property of the file.
		s.forget(path, e)
	}
	return e.mod, e.err
}

// Add registers an already parsed module under its path.
func (s *SourceSet) Add(mod *python.Module) {
	e := &sourceEntry{mod: mod}
	e.once.Do(func() {})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[mod.Path] = e
}

// ParseCount returns how many parses have run.
func (s *SourceSet) ParseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.parses
}

// Len returns the number of cached entries, failed parses included.
func (s *SourceSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases every parsed tree.
func (s *SourceSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, e := range s.entries {
		if e.mod != nil {
			e.mod.Close()
		}
		delete(s.entries, path)
	}
}

func (s *SourceSet) forget(path string, e *sourceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[path] == e {
		delete(s.entries, path)
	}
}
