package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/c360studio/semcheck/scanner"
)

func rulesCmd(g *globalFlags) *cobra.Command {
	var behavior string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List loaded rules by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.setup(cmd)
			if err != nil {
				return err
			}
			set, err := app.LoadRules(behavior)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, headingStyle.Render("PRIORITY")+"\t"+headingStyle.Render("RULE")+"\t"+headingStyle.Render("SCANNER"))
			for _, r := range set.SortedByPriority() {
				binding := r.Definition.Scanner
				switch {
				case binding == "":
					binding = mutedStyle.Render("-")
				case !scanner.DefaultRegistry.Has(binding):
					binding = failStyle.Render(binding + " (unknown)")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.PriorityValue(), r.Stem(), binding)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, lerr := range set.Errors {
				fmt.Fprintln(out, failStyle.Render(lerr.Error()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&behavior, "behavior", "", "Behavior rule directory to load after common rules")
	return cmd
}
