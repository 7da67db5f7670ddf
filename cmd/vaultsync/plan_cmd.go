package main

import (
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	var asJSON, all bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a sync would do",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			v, err := openVault(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer v.Close()

			result, err := v.syncer.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := newPlanOutput(result, all)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printPlan(cmd.OutOrStdout(), out)
			printSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the plan as json")
	cmd.Flags().BoolVar(&all, "all", false, "include entries that need nothing")
	addSyncFlags(cmd)
	return cmd
}
