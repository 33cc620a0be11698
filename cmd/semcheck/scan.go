package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/semcheck/report"
)

func scanCmd(g *globalFlags) *cobra.Command {
	var (
		opts    ScanOptions
		formats []string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run every rule over the repository",
		Long: `Scan loads the common and behavior rules, runs their scanners over the
files changed since the newest report (or all files with --all) and writes
the reports. The exit code is 1 when an error-severity violation was found
or a scanner failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range formats {
				parsed, err := report.ParseFormat(f)
				if err != nil {
					return err
				}
				opts.Formats = append(opts.Formats, parsed)
			}

			app, err := g.setup(cmd)
			if err != nil {
				return err
			}
			res, err := app.Scan(cmd.Context(), opts)
			if res != nil {
				app.PrintReport(res.Report)
				for _, p := range res.Paths {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("report: "+p))
				}
			}
			if err != nil {
				return err
			}
			if res.Report.HasFailures() {
				return errFailures
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Scan every file instead of only files changed since the last report")
	cmd.Flags().BoolVar(&opts.SkipCrossFile, "skip-cross-file", false, "Skip the cross-file pass of two-pass scanners")
	cmd.Flags().StringSliceVar(&opts.SkipRules, "skip-rule", nil, "Rule file stem to skip (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "Path prefix or glob to exclude (repeatable)")
	cmd.Flags().StringVar(&opts.Behavior, "behavior", "", "Behavior rule directory to load after common rules")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "Report format: json, markdown, sarif (repeatable)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Parallel file scans per rule (default from config)")
	cmd.Flags().BoolVar(&opts.ContinueOnError, "continue-on-error", false, "Keep running rules after a scanner fails")
	cmd.Flags().StringVar(&opts.DomainModel, "domain-model", "", "Domain model file (JSON or YAML)")
	return cmd
}
