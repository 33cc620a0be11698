// Package report holds the outcome of a validation run: one entry per rule
// with its scanner status and violations, and the writers that persist it.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semcheck/scanner"
)

// Status is the per-rule scanner outcome.
type Status string

const (
	StatusExecuted        Status = "EXECUTED"
	StatusExecutionFailed Status = "EXECUTION_FAILED"
	StatusLoadFailed      Status = "LOAD_FAILED"
	StatusNoScanner       Status = "NO_SCANNER"
	StatusSkipped         Status = "SKIPPED"
)

// ScannerStatus describes what happened to a rule's scanner.
type ScannerStatus struct {
	Status          Status `json:"status"`
	ScannerPath     string `json:"scanner_path,omitempty"`
	Error           string `json:"error,omitempty"`
	ViolationsFound *int   `json:"violations_found,omitempty"`
}

// ScannerResults are the violations of an executed rule, by pass.
type ScannerResults struct {
	FileByFile []scanner.Violation `json:"file_by_file"`
	CrossFile  []scanner.Violation `json:"cross_file"`
}

// Entry is one rule's line in the report.
type Entry struct {
	RuleFile       string          `json:"rule_file"`
	RuleContent    json.RawMessage `json:"rule_content"`
	ScannerStatus  ScannerStatus   `json:"scanner_status"`
	ScannerResults *ScannerResults `json:"scanner_results,omitempty"`

	// RuleName and Priority are read from RuleContent for display.
	RuleName string `json:"-"`
	Priority int    `json:"-"`
}

// Violations returns the entry's file-by-file then cross-file violations.
func (e Entry) Violations() []scanner.Violation {
	if e.ScannerResults == nil {
		return nil
	}
	out := make([]scanner.Violation, 0, len(e.ScannerResults.FileByFile)+len(e.ScannerResults.CrossFile))
	out = append(out, e.ScannerResults.FileByFile...)
	return append(out, e.ScannerResults.CrossFile...)
}

func (e Entry) name() string {
	if e.RuleName != "" {
		return e.RuleName
	}
	return e.RuleFile
}

// StatusLine renders the one-line status every rule gets.
func (e Entry) StatusLine() string {
	s := e.ScannerStatus
	switch s.Status {
	case StatusSkipped:
		return fmt.Sprintf("[SKIP] %s: skipped by request", e.name())
	case StatusNoScanner:
		return fmt.Sprintf("[NO SCANNER] %s: no automated check", e.name())
	case StatusLoadFailed:
		return fmt.Sprintf("[LOAD FAILED] %s: %s", e.name(), s.Error)
	case StatusExecutionFailed:
		return fmt.Sprintf("[FAILED] %s: %s: %s", e.name(), s.ScannerPath, s.Error)
	}
	n := len(e.Violations())
	if n == 0 {
		return fmt.Sprintf("[OK] %s: %s found no violations", e.name(), s.ScannerPath)
	}
	return fmt.Sprintf("[VIOLATIONS] %s: %s found %d", e.name(), s.ScannerPath, n)
}

// Report is the result of one validation run.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Behavior    string    `json:"behavior,omitempty"`
	Entries     []Entry   `json:"rules"`
}

// New starts an empty report stamped with a fresh run ID.
func New(behavior string) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Behavior:    behavior,
		Entries:     []Entry{},
	}
}

// Add appends an entry, keeping discovery order.
func (r *Report) Add(e Entry) {
	r.Entries = append(r.Entries, e)
}

// Violations aggregates every entry's violations in entry order.
func (r *Report) Violations() []scanner.Violation {
	out := make([]scanner.Violation, 0)
	for _, e := range r.Entries {
		out = append(out, e.Violations()...)
	}
	return out
}

// StatusLines returns one line per rule in entry order.
func (r *Report) StatusLines() []string {
	lines := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		lines = append(lines, e.StatusLine())
	}
	return lines
}

// SortedByPriority returns the entries ordered by rule priority, lower
// first. Ties keep discovery order. The report itself is not reordered.
func (r *Report) SortedByPriority() []Entry {
	out := append([]Entry(nil), r.Entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// Counts tallies entries by status.
func (r *Report) Counts() map[Status]int {
	out := make(map[Status]int)
	for _, e := range r.Entries {
		out[e.ScannerStatus.Status]++
	}
	return out
}

// SeverityCounts tallies violations by severity.
func (r *Report) SeverityCounts() map[scanner.Severity]int {
	out := make(map[scanner.Severity]int)
	for _, v := range r.Violations() {
		out[v.Severity]++
	}
	return out
}

// HasFailures reports error-severity violations or a broken scanner.
func (r *Report) HasFailures() bool {
	for _, e := range r.Entries {
		if e.ScannerStatus.Status == StatusExecutionFailed || e.ScannerStatus.Status == StatusLoadFailed {
			return true
		}
		for _, v := range e.Violations() {
			if v.Severity == scanner.SeverityError {
				return true
			}
		}
	}
	return false
}

// Summary renders a plain-text overview followed by every violation.
func (r *Report) Summary() string {
	var sb strings.Builder
	counts := r.Counts()
	sev := r.SeverityCounts()
	vs := r.Violations()

	fmt.Fprintf(&sb, "%d rules: %d executed, %d skipped, %d without scanner, %d failed to load, %d failed\n",
		len(r.Entries), counts[StatusExecuted], counts[StatusSkipped], counts[StatusNoScanner],
		counts[StatusLoadFailed], counts[StatusExecutionFailed])
	fmt.Fprintf(&sb, "%d violations: %d error, %d warning, %d info\n",
		len(vs), sev[scanner.SeverityError], sev[scanner.SeverityWarning], sev[scanner.SeverityInfo])

	if len(vs) == 0 {
		return sb.String()
	}
	sorted := append([]scanner.Violation(nil), vs...)
	scanner.SortViolations(sorted)
	sb.WriteString("\n")
	for _, v := range sorted {
		fmt.Fprintf(&sb, "%s (%s)\n", v.String(), v.RuleName)
	}
	return sb.String()
}
