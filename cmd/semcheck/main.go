// Package main provides the semcheck binary entry point.
// Semcheck is a rule-based static analysis engine for Python projects.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semcheck/config"

	// Register scanners via init()
	_ "github.com/c360studio/semcheck/scanner/checks"
	_ "github.com/c360studio/semcheck/scanner/duplicates"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semcheck"
)

// errFailures signals a completed run that found error-severity violations
// or failed scanners; the summary has already been printed.
var errFailures = errors.New("semcheck found failures")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	repoPath   string
	logLevel   string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Rule-based static analysis for Python",
		Long: `Semcheck checks a Python code base against JSON rule files.

Each rule may bind a scanner that finds violations:
- Structural checks (naming, parameters, complexity, exceptions, tests)
- Duplicate code detection within and across files

Results are written as JSON, Markdown and SARIF reports. Later runs only
rescan files changed since the newest report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.repoPath, "repo", "", "Repository path to operate on")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(scanCmd(g), rulesCmd(g), watchCmd(g), cacheCmd(g), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

// newLogger builds the stderr text logger for level.
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// setup loads configuration, applies the persistent flags and returns the
// app for a subcommand.
func (g *globalFlags) setup(cmd *cobra.Command) (*App, error) {
	bootLevel := g.logLevel
	if bootLevel == "" {
		bootLevel = "info"
	}
	logger := newLogger(cmd.ErrOrStderr(), bootLevel)

	loader := config.NewLoader(logger)
	if g.repoPath != "" {
		absRepoPath, err := filepath.Abs(g.repoPath)
		if err != nil {
			return nil, fmt.Errorf("resolve repo path: %w", err)
		}
		info, err := os.Stat(absRepoPath)
		if err != nil {
			return nil, fmt.Errorf("stat repo path: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("not a directory: %s", absRepoPath)
		}
		loader = loader.WithDirs(absRepoPath, "")
		g.repoPath = absRepoPath
	}

	cfg, err := loader.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if g.repoPath != "" {
		cfg.Repo.Path = g.repoPath
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}

	logger = newLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
	slog.SetDefault(logger)
	return NewApp(cfg, logger, cmd.OutOrStdout()), nil
}
