package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semcheck/scanner"
)

func intPtr(n int) *int { return &n }

func sampleReport() *Report {
	rule := scanner.RuleRef{File: "rules/code/params.json", Name: "Few parameters"}
	r := New("code_review")
	r.GeneratedAt = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	r.Add(Entry{
		RuleFile:    "rules/code/params.json",
		RuleContent: json.RawMessage(`{"name":"Few parameters","priority":2}`),
		RuleName:    "Few parameters",
		Priority:    2,
		ScannerStatus: ScannerStatus{
			Status: StatusExecuted, ScannerPath: "parameter_count", ViolationsFound: intPtr(2),
		},
		ScannerResults: &ScannerResults{
			FileByFile: []scanner.Violation{
				scanner.NewViolation(rule, "app/b.py", 9, scanner.SeverityWarning, "Function 'ship' has 9 positional parameters"),
				scanner.NewViolation(rule, "app/a.py", 0, scanner.SeverityError, "Module-level problem\n  - detail"),
			},
			CrossFile: []scanner.Violation{},
		},
	})
	r.Add(Entry{
		RuleFile:      "rules/common/naming.json",
		RuleContent:   json.RawMessage(`{"name":"Domain names","priority":1}`),
		RuleName:      "Domain names",
		Priority:      1,
		ScannerStatus: ScannerStatus{Status: StatusNoScanner},
	})
	r.Add(Entry{
		RuleFile:      "rules/code/broken.json",
		RuleContent:   json.RawMessage(`{"name":"Broken","priority":1}`),
		RuleName:      "Broken",
		Priority:      1,
		ScannerStatus: ScannerStatus{Status: StatusLoadFailed, ScannerPath: "nonexistent.Class", Error: `unknown scanner "nonexistent.Class"`},
	})
	r.Add(Entry{
		RuleFile:      "rules/code/skipped.json",
		RuleName:      "Skipped",
		Priority:      3,
		ScannerStatus: ScannerStatus{Status: StatusSkipped},
	})
	return r
}

func TestEntry_StatusLine(t *testing.T) {
	r := sampleReport()
	lines := r.StatusLines()
	require.Len(t, lines, 4)
	assert.Equal(t, "[VIOLATIONS] Few parameters: parameter_count found 2", lines[0])
	assert.Equal(t, "[NO SCANNER] Domain names: no automated check", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "[LOAD FAILED] Broken: unknown scanner"))
	assert.Equal(t, "[SKIP] Skipped: skipped by request", lines[3])

	ok := Entry{RuleName: "Clean", ScannerStatus: ScannerStatus{Status: StatusExecuted, ScannerPath: "wildcard_import"}}
	assert.Equal(t, "[OK] Clean: wildcard_import found no violations", ok.StatusLine())
}

func TestReport_Aggregates(t *testing.T) {
	r := sampleReport()
	assert.Len(t, r.Violations(), 2)
	assert.Equal(t, 1, r.Counts()[StatusExecuted])
	assert.Equal(t, 1, r.Counts()[StatusSkipped])
	assert.True(t, r.HasFailures())

	sorted := r.SortedByPriority()
	assert.Equal(t, []string{"Domain names", "Broken", "Few parameters", "Skipped"},
		[]string{sorted[0].RuleName, sorted[1].RuleName, sorted[2].RuleName, sorted[3].RuleName})
	assert.Equal(t, "Few parameters", r.Entries[0].RuleName, "report order is untouched")

	summary := r.Summary()
	assert.Contains(t, summary, "4 rules: 1 executed, 1 skipped, 1 without scanner, 1 failed to load, 0 failed")
	assert.Contains(t, summary, "2 violations: 1 error, 1 warning, 0 info")
	assert.Less(t, strings.Index(summary, "app/a.py"), strings.Index(summary, "app/b.py:9"))
}

func TestReport_HasFailuresCleanRun(t *testing.T) {
	r := New("")
	r.Add(Entry{ScannerStatus: ScannerStatus{Status: StatusExecuted}, ScannerResults: &ScannerResults{
		FileByFile: []scanner.Violation{scanner.NewViolation(scanner.RuleRef{}, "a.py", 1, scanner.SeverityWarning, "w")},
	}})
	assert.False(t, r.HasFailures())
}

func TestWriteJSON_Shape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	for _, key := range []string{"run_id", "generated_at", "behavior", "rules", "violations"} {
		assert.Contains(t, doc, key)
	}
	rules := doc["rules"].([]any)
	first := rules[0].(map[string]any)
	status := first["scanner_status"].(map[string]any)
	assert.Equal(t, "EXECUTED", status["status"])
	assert.EqualValues(t, 2, status["violations_found"])
	assert.Contains(t, first, "scanner_results")

	noScanner := rules[1].(map[string]any)
	assert.NotContains(t, noScanner, "scanner_results")

	violations := doc["violations"].([]any)
	require.Len(t, violations, 2)
	assert.Nil(t, violations[1].(map[string]any)["line_number"])
}

func TestReadJSON_RestoresDisplayFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	r, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Len(t, r.Entries, 4)
	assert.Equal(t, "Domain names", r.Entries[1].RuleName)
	assert.Equal(t, 1, r.Entries[1].Priority)
	assert.Len(t, r.Violations(), 2)
}

func TestSaveAndFindLatest(t *testing.T) {
	dir := t.TempDir()

	_, _, err := FindLatest(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, ErrNoReport))

	older := sampleReport()
	older.GeneratedAt = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	_, err = Save(dir, older)
	require.NoError(t, err)

	newer := sampleReport()
	paths, err := Save(dir, newer, FormatJSON, FormatMarkdown, FormatSARIF)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, "semcheck-report-20260301T123000Z.json", filepath.Base(paths[0]))
	assert.Equal(t, ".md", filepath.Ext(paths[1]))
	assert.Equal(t, ".sarif", filepath.Ext(paths[2]))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	path, at, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, paths[0], path)
	assert.True(t, at.Equal(newer.GeneratedAt))
}

func TestFindLatest_AnyFormatIsBaseline(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()
	paths, err := Save(dir, r, FormatMarkdown)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	path, at, err := FindLatest(dir)
	require.NoError(t, err)
	assert.Equal(t, paths[0], path)
	assert.True(t, at.Equal(r.GeneratedAt))

	later := sampleReport()
	later.GeneratedAt = r.GeneratedAt.Add(time.Minute)
	paths, err = Save(dir, later, FormatSARIF)
	require.NoError(t, err)
	_, at, err = FindLatest(dir)
	require.NoError(t, err)
	assert.True(t, at.Equal(later.GeneratedAt))
	assert.Equal(t, ".sarif", filepath.Ext(paths[0]))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("MD")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)

	_, err = ParseFormat("html")
	assert.Error(t, err)
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, sampleReport()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Semcheck Report: Code Review\n"))
	assert.Contains(t, out, "| Load Failed | 1 |")
	assert.Contains(t, out, "- [NO SCANNER] Domain names: no automated check")
	assert.Contains(t, out, "## Few parameters")
	assert.Contains(t, out, "- **warning** `app/b.py:9` Function 'ship' has 9 positional parameters")
	assert.Contains(t, out, "  ```\n    - detail\n  ```")
	assert.Less(t, strings.Index(out, "Domain names"), strings.Index(out, "- [VIOLATIONS] Few parameters"))
}

func TestBuildSARIF(t *testing.T) {
	doc, err := BuildSARIF(sampleReport())
	require.NoError(t, err)
	require.Len(t, doc.Runs, 1)

	run := doc.Runs[0]
	require.Len(t, run.Tool.Driver.Rules, 2, "rules with a scanner path")
	assert.Equal(t, "params", run.Tool.Driver.Rules[0].ID)

	require.Len(t, run.Results, 2)
	assert.Equal(t, "warning", *run.Results[0].Level)
	assert.Equal(t, "error", *run.Results[1].Level)
	assert.Equal(t, 9, *run.Results[0].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Nil(t, run.Results[1].Locations[0].PhysicalLocation.Region.StartLine)
}

func TestNATSPublisher_Validation(t *testing.T) {
	_, err := NewNATSPublisher(nil, "")
	assert.Error(t, err)

	_, err = DialNATS("", "")
	assert.Error(t, err)

	var _ Publisher = (*NATSPublisher)(nil)
}
