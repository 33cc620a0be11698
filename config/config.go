// Package config provides configuration loading and management for Semcheck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semcheck/report"
	"github.com/c360studio/semcheck/scanner"
	"github.com/c360studio/semcheck/scanner/duplicates"
)

// Config represents the complete Semcheck configuration
type Config struct {
	Repo       RepoConfig       `yaml:"repo"`
	Rules      RulesConfig      `yaml:"rules"`
	Scan       ScanConfig       `yaml:"scan"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
	// Scanners holds per-scanner parameters keyed by registry key. Rule
	// config objects override them.
	Scanners map[string]map[string]any `yaml:"scanners"`
	Report   ReportConfig              `yaml:"report"`
	Domain   DomainConfig              `yaml:"domain"`
	Logging  LoggingConfig             `yaml:"logging"`
}

// RepoConfig configures the repository settings
type RepoConfig struct {
	// Path is the repository root path (auto-detected from git if empty)
	Path string `yaml:"path"`
}

// RulesConfig configures where rule files are discovered
type RulesConfig struct {
	// Dirs are rule directories, relative to the repo root unless absolute
	Dirs []string `yaml:"dirs"`
	// Behavior selects the behavior subdirectory loaded after common rules
	Behavior string `yaml:"behavior"`
	// Skip lists rule file stems to skip
	Skip []string `yaml:"skip"`
}

// ScanConfig configures file discovery and rule execution
type ScanConfig struct {
	Extensions   []string `yaml:"extensions"`
	TestPatterns []string `yaml:"test_patterns"`
	Exclude      []string `yaml:"exclude"`
	// Workers bounds parallel file scanning per rule (1 = sequential)
	Workers                 int    `yaml:"workers"`
	MaxCrossFileComparisons int    `yaml:"max_cross_file_comparisons"`
	SkipCrossFile           bool   `yaml:"skip_cross_file"`
	ContinueOnError         bool   `yaml:"continue_on_error"`
	CacheDir                string `yaml:"cache_dir"`
	// CacheURL moves the block cache into a JetStream KV bucket when set
	CacheURL    string `yaml:"cache_url"`
	CacheBucket string `yaml:"cache_bucket"`
}

// DuplicatesConfig tunes the duplicate_code scanner
type DuplicatesConfig struct {
	MinLines       int                    `yaml:"min_lines"`
	MaxLines       int                    `yaml:"max_lines"`
	ProximityCap   int                    `yaml:"proximity_cap"`
	MaxComparisons int                    `yaml:"max_comparisons"`
	Thresholds     *duplicates.Thresholds `yaml:"thresholds"`
}

// ReportConfig configures report output
type ReportConfig struct {
	// Dir holds written reports; its newest report drives incremental scans
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
	// NATSURL enables publishing the JSON report when set
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	// MetricsFile receives a Prometheus textfile export when set
	MetricsFile string `yaml:"metrics_file"`
}

// DomainConfig configures the domain model
type DomainConfig struct {
	// Model is a JSON or YAML domain model file
	Model string `yaml:"model"`
	// Required fails the run before scanning when no model is loaded
	Required bool `yaml:"required"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	d := duplicates.DefaultOptions()
	return &Config{
		Repo: RepoConfig{
			Path: "", // Auto-detect
		},
		Rules: RulesConfig{
			Dirs:     []string{".semcheck/rules"},
			Behavior: "code",
		},
		Scan: ScanConfig{
			Extensions:              []string{".py"},
			TestPatterns:            nil, // discovery defaults
			Workers:                 1,
			MaxCrossFileComparisons: d.MaxComparisons,
			CacheDir:                ".semcheck/cache",
		},
		Duplicates: DuplicatesConfig{
			MinLines:       d.MinSpan,
			MaxLines:       d.MaxSpan,
			ProximityCap:   d.ProximityCap,
			MaxComparisons: d.MaxComparisons,
		},
		Report: ReportConfig{
			Dir:         ".semcheck/reports",
			Formats:     []string{string(report.FormatJSON), string(report.FormatMarkdown)},
			NATSSubject: report.DefaultSubject,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if len(c.Rules.Dirs) == 0 {
		return fmt.Errorf("rules.dirs is required")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if c.Scan.MaxCrossFileComparisons < 0 {
		return fmt.Errorf("scan.max_cross_file_comparisons must not be negative")
	}
	if c.Duplicates.MinLines < 1 || c.Duplicates.MaxLines < c.Duplicates.MinLines {
		return fmt.Errorf("duplicates.min_lines must be positive and not above duplicates.max_lines")
	}
	if c.Duplicates.ProximityCap < 1 || c.Duplicates.MaxComparisons < 1 {
		return fmt.Errorf("duplicates.proximity_cap and duplicates.max_comparisons must be positive")
	}
	if t := c.Duplicates.Thresholds; t != nil {
		if err := validateThresholds(*t); err != nil {
			return err
		}
	}
	for _, f := range c.Report.Formats {
		if _, err := report.ParseFormat(f); err != nil {
			return fmt.Errorf("report.formats: %w", err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

func validateThresholds(t duplicates.Thresholds) error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("duplicates.thresholds.%s must be between 0 and 1", name)
		}
		return nil
	}
	for i, combo := range t.Combos {
		if err := check(fmt.Sprintf("combos[%d].structural", i), combo.Structural); err != nil {
			return err
		}
		if err := check(fmt.Sprintf("combos[%d].preview", i), combo.Preview); err != nil {
			return err
		}
	}
	for name, v := range map[string]float64{
		"both_high":           t.BothHigh,
		"both_low":            t.BothLow,
		"structural_alone":    t.StructuralAlone,
		"signature_prefilter": t.SignaturePrefilter,
	} {
		if err := check(name, v); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Repo
	if other.Repo.Path != "" {
		c.Repo.Path = other.Repo.Path
	}

	// Rules
	if len(other.Rules.Dirs) > 0 {
		c.Rules.Dirs = other.Rules.Dirs
	}
	if other.Rules.Behavior != "" {
		c.Rules.Behavior = other.Rules.Behavior
	}
	if len(other.Rules.Skip) > 0 {
		c.Rules.Skip = other.Rules.Skip
	}

	// Scan
	if len(other.Scan.Extensions) > 0 {
		c.Scan.Extensions = other.Scan.Extensions
	}
	if len(other.Scan.TestPatterns) > 0 {
		c.Scan.TestPatterns = other.Scan.TestPatterns
	}
	if len(other.Scan.Exclude) > 0 {
		c.Scan.Exclude = other.Scan.Exclude
	}
	if other.Scan.Workers != 0 {
		c.Scan.Workers = other.Scan.Workers
	}
	if other.Scan.MaxCrossFileComparisons != 0 {
		c.Scan.MaxCrossFileComparisons = other.Scan.MaxCrossFileComparisons
	}
	if other.Scan.SkipCrossFile {
		c.Scan.SkipCrossFile = true
	}
	if other.Scan.ContinueOnError {
		c.Scan.ContinueOnError = true
	}
	if other.Scan.CacheDir != "" {
		c.Scan.CacheDir = other.Scan.CacheDir
	}
	if other.Scan.CacheURL != "" {
		c.Scan.CacheURL = other.Scan.CacheURL
	}
	if other.Scan.CacheBucket != "" {
		c.Scan.CacheBucket = other.Scan.CacheBucket
	}

	// Duplicates
	if other.Duplicates.MinLines != 0 {
		c.Duplicates.MinLines = other.Duplicates.MinLines
	}
	if other.Duplicates.MaxLines != 0 {
		c.Duplicates.MaxLines = other.Duplicates.MaxLines
	}
	if other.Duplicates.ProximityCap != 0 {
		c.Duplicates.ProximityCap = other.Duplicates.ProximityCap
	}
	if other.Duplicates.MaxComparisons != 0 {
		c.Duplicates.MaxComparisons = other.Duplicates.MaxComparisons
	}
	if other.Duplicates.Thresholds != nil {
		c.Duplicates.Thresholds = other.Duplicates.Thresholds
	}

	// Scanners merge per key so a project file can tune one scanner
	for id, params := range other.Scanners {
		if c.Scanners == nil {
			c.Scanners = make(map[string]map[string]any)
		}
		c.Scanners[id] = scanner.Params(c.Scanners[id]).Merge(params)
	}

	// Report
	if other.Report.Dir != "" {
		c.Report.Dir = other.Report.Dir
	}
	if len(other.Report.Formats) > 0 {
		c.Report.Formats = other.Report.Formats
	}
	if other.Report.NATSURL != "" {
		c.Report.NATSURL = other.Report.NATSURL
	}
	if other.Report.NATSSubject != "" {
		c.Report.NATSSubject = other.Report.NATSSubject
	}
	if other.Report.MetricsFile != "" {
		c.Report.MetricsFile = other.Report.MetricsFile
	}

	// Domain
	if other.Domain.Model != "" {
		c.Domain.Model = other.Domain.Model
	}
	if other.Domain.Required {
		c.Domain.Required = true
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// ResolvePath makes p absolute against the repo root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Repo.Path, p)
}

// RuleDirs returns the rule directories resolved against the repo root.
func (c *Config) RuleDirs() []string {
	out := make([]string, 0, len(c.Rules.Dirs))
	for _, d := range c.Rules.Dirs {
		out = append(out, c.ResolvePath(d))
	}
	return out
}

// ReportFormats parses the configured formats; invalid entries were already
// rejected by Validate.
func (c *Config) ReportFormats() []report.Format {
	out := make([]report.Format, 0, len(c.Report.Formats))
	for _, f := range c.Report.Formats {
		if parsed, err := report.ParseFormat(f); err == nil {
			out = append(out, parsed)
		}
	}
	return out
}

// ScannerParams returns per-scanner parameters. The duplicates section feeds
// the duplicate_code scanner underneath any explicit scanners entry.
func (c *Config) ScannerParams() map[string]scanner.Params {
	out := make(map[string]scanner.Params, len(c.Scanners)+1)
	for id, params := range c.Scanners {
		out[id] = scanner.Params(params)
	}
	out[duplicates.ScannerID] = c.duplicateParams().Merge(out[duplicates.ScannerID])
	return out
}

func (c *Config) duplicateParams() scanner.Params {
	p := scanner.Params{}
	d := c.Duplicates
	if d.MinLines > 0 {
		p["min_lines"] = d.MinLines
	}
	if d.MaxLines > 0 {
		p["max_lines"] = d.MaxLines
	}
	if d.ProximityCap > 0 {
		p["proximity_cap"] = d.ProximityCap
	}
	if d.MaxComparisons > 0 {
		p["max_comparisons"] = d.MaxComparisons
	}
	if t := d.Thresholds; t != nil {
		combos := make([]any, 0, len(t.Combos))
		for _, combo := range t.Combos {
			combos = append(combos, map[string]any{"structural": combo.Structural, "preview": combo.Preview})
		}
		p["combos"] = combos
		p["both_high"] = t.BothHigh
		p["both_low"] = t.BothLow
		p["structural_alone"] = t.StructuralAlone
		p["signature_prefilter"] = t.SignaturePrefilter
	}
	return p
}
