package scanner

import (
	"fmt"
	"sort"
	"strings"
)

// Severity grades a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ParseSeverity accepts error, warning or info in any case.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityError, SeverityWarning, SeverityInfo:
		return sev, nil
	}
	return "", fmt.Errorf("invalid severity %q: want error, warning or info", s)
}

// Rank orders severities, error highest.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Violation is one finding. It is a value type and never mutated after
// construction.
type Violation struct {
	RuleFile   string   `json:"rule_file"`
	RuleName   string   `json:"rule_name"`
	Message    string   `json:"violation_message"`
	Location   string   `json:"location"`
	LineNumber *int     `json:"line_number"`
	Severity   Severity `json:"severity"`
}

// NewViolation builds a violation. A line of 0 or less leaves the line
// number unset.
func NewViolation(rule RuleRef, location string, line int, severity Severity, message string) Violation {
	v := Violation{
		RuleFile: rule.File,
		RuleName: rule.Name,
		Message:  message,
		Location: location,
		Severity: severity,
	}
	if line > 0 {
		l := line
		v.LineNumber = &l
	}
	return v
}

// Line returns the line number or 0 when unset.
func (v Violation) Line() int {
	if v.LineNumber == nil {
		return 0
	}
	return *v.LineNumber
}

// WithSeverity returns a copy with a different severity.
func (v Violation) WithSeverity(s Severity) Violation {
	out := v
	if v.LineNumber != nil {
		l := *v.LineNumber
		out.LineNumber = &l
	}
	out.Severity = s
	return out
}

// Fields returns the flat mapping used for JSON and templating.
func (v Violation) Fields() map[string]any {
	var line any
	if v.LineNumber != nil {
		line = *v.LineNumber
	}
	return map[string]any{
		"rule_file":         v.RuleFile,
		"rule_name":         v.RuleName,
		"violation_message": v.Message,
		"location":          v.Location,
		"line_number":       line,
		"severity":          string(v.Severity),
	}
}

// String renders location:line: message.
func (v Violation) String() string {
	if v.LineNumber != nil {
		return fmt.Sprintf("%s:%d: [%s] %s", v.Location, *v.LineNumber, v.Severity, v.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", v.Location, v.Severity, v.Message)
}

// SortViolations orders by location, line and message, stably.
func SortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Location != vs[j].Location {
			return vs[i].Location < vs[j].Location
		}
		if vs[i].Line() != vs[j].Line() {
			return vs[i].Line() < vs[j].Line()
		}
		return vs[i].Message < vs[j].Message
	})
}
