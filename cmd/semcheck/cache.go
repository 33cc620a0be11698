package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the duplicate-code block cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached block entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.setup(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := app.cacheStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache entries\n", n)
			return nil
		},
	})
	return cmd
}
