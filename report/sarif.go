package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/c360studio/semcheck/scanner"
)

// ToolName and ToolURI identify semcheck in SARIF output.
const (
	ToolName = "semcheck"
	ToolURI  = "https://github.com/c360studio/semcheck"
)

// BuildSARIF converts the report to a SARIF 2.1.0 document: one SARIF rule
// per rule with a scanner, one result per violation.
func BuildSARIF(r *Report) (*sarif.Report, error) {
	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("failed to create SARIF report: %w", err)
	}
	run := sarif.NewRunWithInformationURI(ToolName, ToolURI)

	for _, e := range r.Entries {
		if e.ScannerStatus.ScannerPath == "" {
			continue
		}
		id := ruleID(e)
		run.AddRule(id).
			WithDescription(e.name()).
			WithProperties(sarif.Properties{
				"scanner":  e.ScannerStatus.ScannerPath,
				"status":   string(e.ScannerStatus.Status),
				"priority": e.Priority,
			})

		for _, v := range e.Violations() {
			region := sarif.NewRegion()
			if v.LineNumber != nil {
				region = region.WithStartLine(*v.LineNumber)
			}
			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(filepath.ToSlash(v.Location))).
					WithRegion(region),
			)
			run.AddResult(sarif.NewRuleResult(id).
				WithMessage(sarif.NewTextMessage(v.Message)).
				WithLevel(sarifLevel(v.Severity)).
				WithLocations([]*sarif.Location{location}))
		}
	}
	doc.AddRun(run)
	return doc, nil
}

// WriteSARIF writes the report as indented SARIF JSON.
func WriteSARIF(w io.Writer, r *Report) error {
	doc, err := BuildSARIF(r)
	if err != nil {
		return err
	}
	if err := doc.PrettyWrite(w); err != nil {
		return fmt.Errorf("failed to write SARIF report: %w", err)
	}
	return nil
}

// ruleID is the rule file stem, stable across runs.
func ruleID(e Entry) string {
	base := filepath.Base(e.RuleFile)
	return base[:len(base)-len(filepath.Ext(base))]
}

func sarifLevel(s scanner.Severity) string {
	switch s {
	case scanner.SeverityError:
		return "error"
	case scanner.SeverityWarning:
		return "warning"
	}
	return "note"
}
