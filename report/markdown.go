package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/c360studio/semcheck/scanner"
)

// WriteMarkdown renders the status document: a summary table, one status
// line per rule in priority order, then violations grouped by rule.
func WriteMarkdown(w io.Writer, r *Report) error {
	var sb strings.Builder

	sb.WriteString("# Semcheck Report")
	if r.Behavior != "" {
		sb.WriteString(": ")
		sb.WriteString(titleCase(r.Behavior))
	}
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Run `%s` at %s\n\n", r.RunID, r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	counts := r.Counts()
	sb.WriteString("| Status | Rules |\n|---|---|\n")
	for _, s := range []Status{StatusExecuted, StatusExecutionFailed, StatusLoadFailed, StatusNoScanner, StatusSkipped} {
		if counts[s] > 0 {
			fmt.Fprintf(&sb, "| %s | %d |\n", titleCase(string(s)), counts[s])
		}
	}
	sb.WriteString("\n## Rules\n\n")

	sorted := r.SortedByPriority()
	for _, e := range sorted {
		sb.WriteString("- ")
		sb.WriteString(e.StatusLine())
		sb.WriteString("\n")
	}

	for _, e := range sorted {
		vs := e.Violations()
		if len(vs) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n", e.name())
		for _, v := range vs {
			writeViolation(&sb, v)
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}

func writeViolation(sb *strings.Builder, v scanner.Violation) {
	loc := v.Location
	if v.LineNumber != nil {
		loc = fmt.Sprintf("%s:%d", v.Location, *v.LineNumber)
	}
	first, rest, multiline := strings.Cut(v.Message, "\n")
	fmt.Fprintf(sb, "- **%s** `%s` %s\n", v.Severity, loc, first)
	if multiline {
		sb.WriteString("\n  ```\n")
		for _, line := range strings.Split(rest, "\n") {
			sb.WriteString("  ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("  ```\n\n")
	}
}

// titleCase turns snake_case and SCREAMING_CASE into Title Case.
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return cases.Title(language.Und).String(strings.ToLower(s))
}
