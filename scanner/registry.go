package scanner

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Env is what a factory receives when a rule binds its scanner.
type Env struct {
	Params Params
	Logger *slog.Logger
}

// Factory creates a configured scanner.
type Factory func(env Env) (Scanner, error)

// UnknownScannerError is returned when a rule names a key nobody registered.
type UnknownScannerError struct {
	ID          string
	Suggestions []string
}

func (e *UnknownScannerError) Error() string {
	msg := fmt.Sprintf("unknown scanner %q", e.ID)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(e.Suggestions), ", "))
	}
	return msg
}

// maxSuggestions bounds the "did you mean" list.
const maxSuggestions = 3

// Registry maps scanner keys to factories.
// Thread-safe for concurrent access.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. Registering the same id twice panics;
// catalog packages register from init and a clash is a programming error.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" || factory == nil {
		panic("scanner: Register with empty id or nil factory")
	}
	if _, exists := r.factories[id]; exists {
		panic(fmt.Sprintf("scanner: %q registered twice", id))
	}
	r.factories[id] = factory
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[id]
	return ok
}

// IDs returns the registered keys, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve instantiates the scanner registered under id.
func (r *Registry) Resolve(id string, env Env) (Scanner, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnknownScannerError{ID: id, Suggestions: r.suggest(id)}
	}
	if env.Params == nil {
		env.Params = Params{}
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}

	s, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("create scanner %s: %w", id, err)
	}
	return s, nil
}

func (r *Registry) suggest(id string) []string {
	ids := r.IDs()
	// Rule files written for dotted class paths still carry a usable tail.
	pattern := strings.ToLower(id)
	if idx := strings.LastIndex(pattern, "."); idx != -1 {
		pattern = pattern[idx+1:]
	}
	pattern = strings.TrimSuffix(pattern, "scanner")
	if pattern == "" {
		return nil
	}

	var out []string
	for _, m := range fuzzy.Find(pattern, ids) {
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

func quoteAll(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// DefaultRegistry is the process-wide registry.
// Catalog packages register their scanners via init() functions.
var DefaultRegistry = NewRegistry()

// Register adds a factory to DefaultRegistry.
func Register(id string, factory Factory) {
	DefaultRegistry.Register(id, factory)
}
