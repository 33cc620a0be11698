// Package rules loads JSON rule definitions, binds each to its scanner and
// runs them over a project's files.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/c360studio/semcheck/scanner"
)

// Guidance is one do/dont bullet with optional code examples.
type Guidance struct {
	Description string   `json:"description"`
	Example     []string `json:"example,omitempty"`
}

// GuidanceBlock is the do or dont section of a rule.
type GuidanceBlock struct {
	Description string     `json:"description"`
	Guidance    []Guidance `json:"guidance,omitempty"`
}

// ExampleCase is one side of a rule example.
type ExampleCase struct {
	Description string `json:"description"`
	Content     string `json:"content"`
}

// Example pairs a compliant and a violating snippet.
type Example struct {
	Do   *ExampleCase `json:"do,omitempty"`
	Dont *ExampleCase `json:"dont,omitempty"`
}

// Definition is the JSON content of a rule file.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Priority    *int           `json:"priority"`
	Scanner     string         `json:"scanner,omitempty"`
	Do          *GuidanceBlock `json:"do,omitempty"`
	Dont        *GuidanceBlock `json:"dont,omitempty"`
	Examples    []Example      `json:"examples,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

func (d Definition) validate() error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if d.Priority == nil {
		missing = append(missing, "priority")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if d.Severity != "" {
		if _, err := scanner.ParseSeverity(d.Severity); err != nil {
			return err
		}
	}
	return nil
}

// LoadError reports a rule file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load rule %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadOptions configure how rules bind their scanners.
type LoadOptions struct {
	// Registry resolves scanner keys; nil means scanner.DefaultRegistry.
	Registry *scanner.Registry
	// ScannerParams are per-scanner settings from configuration, keyed by
	// scanner ID. A rule's own config overrides them.
	ScannerParams map[string]scanner.Params
	Logger        *slog.Logger
}

func (o LoadOptions) withDefaults() LoadOptions {
	if o.Registry == nil {
		o.Registry = scanner.DefaultRegistry
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Rule is a loaded rule definition and, lazily, its scanner.
type Rule struct {
	Definition

	// File is the rule file path; it identifies the rule.
	File string

	content json.RawMessage
	opts    LoadOptions

	once    sync.Once
	scanner scanner.Scanner
	loadErr error

	fileViolations  []scanner.Violation
	crossViolations []scanner.Violation
}

// LoadRule reads and validates one rule file. The scanner is not resolved
// until first use.
func LoadRule(path string, opts LoadOptions) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := def.validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Rule{
		Definition: def,
		File:       path,
		content:    compact.Bytes(),
		opts:       opts.withDefaults(),
	}, nil
}

// Stem is the rule file name without extension; skip lists match on it.
func (r *Rule) Stem() string {
	base := filepath.Base(r.File)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PriorityValue returns the priority, lower meaning more important.
func (r *Rule) PriorityValue() int {
	if r.Priority == nil {
		return 0
	}
	return *r.Priority
}

// Content returns the rule file's JSON, compacted.
func (r *Rule) Content() json.RawMessage { return r.content }

// SeverityOverride returns the rule's severity, if it sets one.
func (r *Rule) SeverityOverride() (scanner.Severity, bool) {
	if r.Severity == "" {
		return "", false
	}
	sev, err := scanner.ParseSeverity(r.Severity)
	return sev, err == nil
}

// Ref identifies the rule on violations.
func (r *Rule) Ref() scanner.RuleRef {
	sev, _ := r.SeverityOverride()
	return scanner.RuleRef{File: r.File, Name: r.Name, Severity: sev}
}

// Params merges configured scanner settings with the rule's own config.
func (r *Rule) Params() scanner.Params {
	base := r.opts.ScannerParams[r.Definition.Scanner]
	return base.Merge(scanner.Params(r.Config))
}

// Scanner resolves the bound scanner once. A rule without a scanner key
// returns nil, nil.
func (r *Rule) Scanner() (scanner.Scanner, error) {
	if r.Definition.Scanner == "" {
		return nil, nil
	}
	r.once.Do(func() {
		r.scanner, r.loadErr = r.opts.Registry.Resolve(r.Definition.Scanner, scanner.Env{
			Params: r.Params(),
			Logger: r.opts.Logger.With("rule", r.Stem()),
		})
		if r.loadErr != nil {
			r.opts.Logger.Warn("Failed to load scanner for rule",
				"rule", r.File, "scanner", r.Definition.Scanner, "error", r.loadErr)
		}
	})
	return r.scanner, r.loadErr
}

// HasScanner reports a rule whose scanner resolved.
func (r *Rule) HasScanner() bool {
	s, err := r.Scanner()
	return s != nil && err == nil
}

// LoadErr returns the scanner resolution error, if any.
func (r *Rule) LoadErr() error {
	_, err := r.Scanner()
	return err
}

// FileViolations are the last run's file-by-file results.
func (r *Rule) FileViolations() []scanner.Violation { return r.fileViolations }

// CrossFileViolations are the last run's cross-file results.
func (r *Rule) CrossFileViolations() []scanner.Violation { return r.crossViolations }

// Violations returns both lists, file-by-file first.
func (r *Rule) Violations() []scanner.Violation {
	out := make([]scanner.Violation, 0, len(r.fileViolations)+len(r.crossViolations))
	out = append(out, r.fileViolations...)
	return append(out, r.crossViolations...)
}
