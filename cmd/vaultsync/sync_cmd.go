package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var dryRun, tui bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync between the vault and the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			v, err := openVault(cmd.Context(), cfg, dryRun)
			if err != nil {
				return err
			}
			defer v.Close()

			if tui {
				if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
					logLevel.Set(slog.LevelWarn)
				}
				result, err := runSyncTUI(cmd.Context(), v.syncer, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), result)
				return nil
			}

			result, err := v.syncer.Run(cmd.Context())
			if err != nil {
				return err
			}
			if dryRun {
				printPlan(cmd.OutOrStdout(), newPlanOutput(result, false))
			}
			printSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "compute the plan without changing anything")
	cmd.Flags().BoolVar(&tui, "tui", false, "show an interactive progress view")
	addSyncFlags(cmd)
	return cmd
}
