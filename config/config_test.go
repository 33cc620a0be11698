package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/semcheck/report"
	"github.com/c360studio/semcheck/scanner/duplicates"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Rules.Dirs) != 1 || cfg.Rules.Dirs[0] != ".semcheck/rules" {
		t.Errorf("expected default rule dir .semcheck/rules, got %v", cfg.Rules.Dirs)
	}
	if cfg.Scan.Workers != 1 {
		t.Errorf("expected sequential scanning by default, got %d workers", cfg.Scan.Workers)
	}
	if cfg.Report.NATSSubject != report.DefaultSubject {
		t.Errorf("expected subject %s, got %s", report.DefaultSubject, cfg.Report.NATSSubject)
	}
	if cfg.Duplicates.MinLines != 5 || cfg.Duplicates.MaxLines != 20 {
		t.Errorf("expected duplicate span 5-20, got %d-%d", cfg.Duplicates.MinLines, cfg.Duplicates.MaxLines)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing rule dirs",
			modify:  func(c *Config) { c.Rules.Dirs = nil },
			wantErr: true,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Scan.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "inverted duplicate span",
			modify:  func(c *Config) { c.Duplicates.MinLines = 30 },
			wantErr: true,
		},
		{
			name: "threshold above one",
			modify: func(c *Config) {
				th := duplicates.DefaultThresholds()
				th.BothHigh = 1.5
				c.Duplicates.Thresholds = &th
			},
			wantErr: true,
		},
		{
			name: "combo threshold below zero",
			modify: func(c *Config) {
				th := duplicates.DefaultThresholds()
				th.Combos[0].Preview = -0.1
				c.Duplicates.Thresholds = &th
			},
			wantErr: true,
		},
		{
			name:    "unknown report format",
			modify:  func(c *Config) { c.Report.Formats = []string{"html"} },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "semcheck.yaml")

	content := `
repo:
  path: "/test/path"
rules:
  dirs: [rules, shared/rules]
  behavior: test
scan:
  workers: 4
  exclude: ["generated"]
duplicates:
  min_lines: 6
  thresholds:
    combos:
      - {structural: 0.9, preview: 0.6}
    both_high: 0.95
    both_low: 0.7
    structural_alone: 0.95
    signature_prefilter: 0.4
scanners:
  parameter_count:
    max_parameters: 4
report:
  formats: [json, sarif]
  nats_url: "nats://test:4222"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Repo.Path != "/test/path" {
		t.Errorf("expected repo path /test/path, got %s", cfg.Repo.Path)
	}
	if len(cfg.Rules.Dirs) != 2 || cfg.Rules.Behavior != "test" {
		t.Errorf("unexpected rules section: %+v", cfg.Rules)
	}
	if cfg.Scan.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Scan.Workers)
	}
	if cfg.Duplicates.Thresholds == nil || len(cfg.Duplicates.Thresholds.Combos) != 1 {
		t.Fatalf("expected one threshold combo, got %+v", cfg.Duplicates.Thresholds)
	}
	if cfg.Duplicates.Thresholds.Combos[0].Structural != 0.9 {
		t.Errorf("expected structural 0.9, got %f", cfg.Duplicates.Thresholds.Combos[0].Structural)
	}
	if cfg.Report.NATSURL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.Report.NATSURL)
	}
	if got := cfg.ReportFormats(); len(got) != 2 || got[1] != report.FormatSARIF {
		t.Errorf("expected json and sarif formats, got %v", got)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	base.Scanners = map[string]map[string]any{
		"parameter_count": {"max_parameters": 6, "severity": "error"},
	}
	override := &Config{
		Repo: RepoConfig{
			Path: "/override/path",
		},
		Scan: ScanConfig{
			Workers:       8,
			SkipCrossFile: true,
		},
		Scanners: map[string]map[string]any{
			"parameter_count": {"max_parameters": 3},
		},
	}

	base.Merge(override)

	if base.Repo.Path != "/override/path" {
		t.Errorf("expected repo path /override/path, got %s", base.Repo.Path)
	}
	if base.Scan.Workers != 8 || !base.Scan.SkipCrossFile {
		t.Errorf("expected scan overrides, got %+v", base.Scan)
	}
	// Rule dirs should remain from base since override didn't set them
	if base.Rules.Dirs[0] != ".semcheck/rules" {
		t.Errorf("expected rule dirs to remain default, got %v", base.Rules.Dirs)
	}
	params := base.Scanners["parameter_count"]
	if params["max_parameters"] != 3 || params["severity"] != "error" {
		t.Errorf("expected per-key scanner merge, got %v", params)
	}
}

func TestScannerParams(t *testing.T) {
	cfg := DefaultConfig()
	th := duplicates.DefaultThresholds()
	th.BothHigh = 0.95
	cfg.Duplicates.Thresholds = &th
	cfg.Scanners = map[string]map[string]any{
		duplicates.ScannerID: {"min_lines": 8},
	}

	params := cfg.ScannerParams()[duplicates.ScannerID]
	opts := duplicates.OptionsFromParams(params)

	if opts.MinSpan != 8 {
		t.Errorf("explicit scanner entry should win, got min span %d", opts.MinSpan)
	}
	if opts.MaxSpan != 20 {
		t.Errorf("expected max span 20 from duplicates section, got %d", opts.MaxSpan)
	}
	if opts.Thresholds.BothHigh != 0.95 {
		t.Errorf("expected both_high 0.95, got %f", opts.Thresholds.BothHigh)
	}
	if len(opts.Thresholds.Combos) != 2 {
		t.Errorf("expected combos carried through, got %d", len(opts.Thresholds.Combos))
	}
}

func TestResolvePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repo.Path = "/repo"

	if got := cfg.ResolvePath("rules"); got != filepath.Join("/repo", "rules") {
		t.Errorf("expected /repo/rules, got %s", got)
	}
	if got := cfg.ResolvePath("/abs/rules"); got != "/abs/rules" {
		t.Errorf("expected absolute path unchanged, got %s", got)
	}
	if got := cfg.RuleDirs(); got[0] != filepath.Join("/repo", ".semcheck", "rules") {
		t.Errorf("unexpected rule dirs %v", got)
	}
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "src", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	userPath := filepath.Join(home, UserConfigDir, UserConfigFile)
	if err := os.MkdirAll(filepath.Dir(userPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(userPath, []byte("scan:\n  workers: 2\nlogging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte("scan:\n  workers: 6\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(nil).WithDirs(nested, home).Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scan.Workers != 6 {
		t.Errorf("project config should override user config, got %d workers", cfg.Scan.Workers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected user log level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Repo.Path != project {
		t.Errorf("expected repo root at the project config, got %s", cfg.Repo.Path)
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(nil).WithDirs(dir, dir)

	if _, err := loader.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}

	sparse := filepath.Join(dir, "sparse.yaml")
	if err := os.WriteFile(sparse, []byte("scan:\n  workers: 0\nrepo:\n  path: "+dir+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loader.Load(sparse)
	if err != nil {
		t.Fatalf("zero workers is unset and keeps the default: %v", err)
	}
	if cfg.Scan.Workers != 1 {
		t.Errorf("expected default workers, got %d", cfg.Scan.Workers)
	}
}
