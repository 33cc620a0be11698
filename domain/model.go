// Package domain holds the project domain model snapshot that naming
// scanners match identifiers against, and the word classifier used to
// recognise agent nouns.
package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// termKeys are the keys whose string values contribute vocabulary terms.
var termKeys = map[string]bool{
	"name":            true,
	"term":            true,
	"terms":           true,
	"concept":         true,
	"concepts":        true,
	"domain_concepts": true,
	"entity":          true,
	"entities":        true,
	"vocabulary":      true,
}

// Model is a snapshot of the project's story graph or domain model. The raw
// document is kept as decoded; vocabulary terms are derived once on demand.
type Model struct {
	// Raw is the decoded document.
	Raw map[string]any

	// Source is the file the model was loaded from, if any.
	Source string

	termsOnce sync.Once
	terms     map[string]bool
}

// New wraps an already decoded document.
func New(raw map[string]any) *Model {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Model{Raw: raw}
}

// FromTerms builds a model whose vocabulary is exactly terms.
func FromTerms(terms ...string) *Model {
	items := make([]any, len(terms))
	for i, t := range terms {
		items[i] = t
	}
	return New(map[string]any{"terms": items})
}

// LoadFile reads a JSON or YAML domain model.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain model: %w", err)
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("parse domain model %s: %w", path, err)
	}

	m := New(raw)
	m.Source = path
	return m, nil
}

// Terms returns the lowercase vocabulary words, sorted.
func (m *Model) Terms() []string {
	if m == nil {
		return nil
	}
	m.buildTerms()
	out := make([]string, 0, len(m.terms))
	for t := range m.terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasTerm reports whether word (any case) is in the vocabulary. Simple
// plural forms match their singular.
func (m *Model) HasTerm(word string) bool {
	if m == nil {
		return false
	}
	m.buildTerms()
	w := strings.ToLower(word)
	if m.terms[w] {
		return true
	}
	if strings.HasSuffix(w, "s") && m.terms[strings.TrimSuffix(w, "s")] {
		return true
	}
	return m.terms[w+"s"]
}

// Empty reports whether the model contributes no vocabulary.
func (m *Model) Empty() bool {
	return len(m.Terms()) == 0
}

func (m *Model) buildTerms() {
	m.termsOnce.Do(func() {
		m.terms = make(map[string]bool)
		collectTerms(m.Raw, false, m.terms)
	})
}

func collectTerms(v any, inTermKey bool, out map[string]bool) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			collectTerms(child, termKeys[strings.ToLower(k)], out)
		}
	case []any:
		for _, child := range val {
			collectTerms(child, inTermKey, out)
		}
	case string:
		if !inTermKey {
			return
		}
		for _, w := range SplitWords(val) {
			if len(w) > 2 {
				out[w] = true
			}
		}
	}
}

// SplitWords breaks an identifier or phrase into lowercase words, splitting
// on underscores, spaces, punctuation and camelCase boundaries.
func SplitWords(s string) []string {
	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r):
			// Split "parseHTTPResponse" into parse/http/response
			if len(current) > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					flush()
				}
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}
