package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semcheck/scanner"
)

// File naming for persisted reports.
const (
	FilePrefix      = "semcheck-report-"
	TimestampLayout = "20060102T150405Z"
)

// Format selects a report writer.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatSARIF    Format = "sarif"
)

// ParseFormat accepts json, markdown (or md) and sarif.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "sarif":
		return FormatSARIF, nil
	}
	return "", fmt.Errorf("unknown report format %q: want json, markdown or sarif", s)
}

func (f Format) ext() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatSARIF:
		return ".sarif"
	}
	return ".json"
}

// document is the persisted JSON shape.
type document struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Behavior    string              `json:"behavior,omitempty"`
	Rules       []Entry             `json:"rules"`
	Violations  []scanner.Violation `json:"violations"`
}

// WriteJSON writes the report with its aggregated violation list.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		Behavior:    r.Behavior,
		Rules:       r.Entries,
		Violations:  r.Violations(),
	}); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// ReadJSON parses a report written by WriteJSON.
func ReadJSON(rd io.Reader) (*Report, error) {
	var doc document
	if err := json.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	r := &Report{RunID: doc.RunID, GeneratedAt: doc.GeneratedAt, Behavior: doc.Behavior, Entries: doc.Rules}
	for i := range r.Entries {
		var head struct {
			Name     string `json:"name"`
			Priority int    `json:"priority"`
		}
		if err := json.Unmarshal(r.Entries[i].RuleContent, &head); err == nil {
			r.Entries[i].RuleName = head.Name
			r.Entries[i].Priority = head.Priority
		}
	}
	return r, nil
}

// FileName returns the report file name for a run at t.
func FileName(t time.Time, f Format) string {
	return FilePrefix + t.UTC().Format(TimestampLayout) + f.ext()
}

// Save writes the report to dir in each format and returns the paths.
func Save(dir string, r *Report, formats ...Format) ([]string, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	var paths []string
	for _, f := range formats {
		path := filepath.Join(dir, FileName(r.GeneratedAt, f))
		if err := writeFile(path, r, f); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, r *Report, f Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()
	switch f {
	case FormatMarkdown:
		return WriteMarkdown(file, r)
	case FormatSARIF:
		return WriteSARIF(file, r)
	}
	return WriteJSON(file, r)
}

var reportExts = map[string]bool{
	FormatJSON.ext():     true,
	FormatMarkdown.ext(): true,
	FormatSARIF.ext():    true,
}

// ErrNoReport is returned by FindLatest when dir holds no prior report.
var ErrNoReport = errors.New("no prior report")

// FindLatest returns the newest report in dir and its timestamp, taken from
// the file name. Every format counts, so runs that skip JSON still leave a
// baseline; at equal timestamps the JSON file wins. Files whose name does not
// parse fall back to their modification time.
func FindLatest(dir string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", time.Time{}, ErrNoReport
		}
		return "", time.Time{}, fmt.Errorf("failed to read report directory: %w", err)
	}

	type found struct {
		path string
		at   time.Time
		json bool
	}
	var reports []found
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || !strings.HasPrefix(name, FilePrefix) || !reportExts[ext] {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), ext)
		at, perr := time.Parse(TimestampLayout, stamp)
		if perr != nil {
			info, ierr := e.Info()
			if ierr != nil {
				continue
			}
			at = info.ModTime()
		}
		reports = append(reports, found{path: filepath.Join(dir, name), at: at, json: ext == FormatJSON.ext()})
	}
	if len(reports) == 0 {
		return "", time.Time{}, ErrNoReport
	}
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].at.Equal(reports[j].at) {
			return reports[i].at.After(reports[j].at)
		}
		return reports[i].json && !reports[j].json
	})
	return reports[0].path, reports[0].at, nil
}
