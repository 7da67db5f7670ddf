package main

import (
	"errors"
	"fmt"

	"github.com/openmined/vaultsync/internal/blob"
	"github.com/openmined/vaultsync/internal/sync"
	"github.com/openmined/vaultsync/internal/vaultcrypt"
	"github.com/spf13/cobra"
)

var errPasswordMismatch = errors.New("password does not fit the remote")

func newCheckPasswordCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check-password",
		Short: "Check the password against what is already on the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			tree, err := sync.NewOSTree(cfg.VaultDir)
			if err != nil {
				return err
			}
			backend, err := blob.NewBackend(cmd.Context(), &cfg.Remote)
			if err != nil {
				return fmt.Errorf("remote: %w", err)
			}
			entities, err := sync.NewRemoteStore(backend, tree).List(cmd.Context())
			if err != nil {
				return fmt.Errorf("get remote state: %w", err)
			}

			cipher, err := vaultcrypt.NewCipher(cfg.Password)
			if err != nil {
				return err
			}
			check := sync.CheckPassword(entities, cfg.Password, cipher)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), check); err != nil {
					return err
				}
			} else {
				style := green
				if !check.OK {
					style = red
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", style.Render(string(check.Reason)),
					gray.Render(fmt.Sprintf("(%d remote entries)", len(entities))))
			}

			if !check.OK {
				return fmt.Errorf("%w: %s", errPasswordMismatch, check.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as json")
	addRemoteFlags(cmd)
	return cmd
}
