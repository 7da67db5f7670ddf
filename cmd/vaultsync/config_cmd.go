package main

import (
	"fmt"

	"github.com/openmined/vaultsync/internal/config"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the vaultsync config file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var askPassword, force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file from flags and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd, false)
			if err != nil {
				return err
			}

			if askPassword {
				if cfg.Password, err = promptPassword(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			path, err := utils.ResolvePath(cmd.Flag("config").Value.String())
			if err != nil {
				return err
			}
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists, pass --force to overwrite it", path)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green.Render("config written"), path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "prompt for the encryption password")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().Duration("interval", config.DefaultInterval, "time between two scheduled syncs")
	cmd.Flags().Bool("http", false, "enable the control plane api in watch mode")
	cmd.Flags().String("http-addr", config.DefaultControlPlaneAddr, "control plane listen address")
	cmd.Flags().String("http-token", "", "bearer token required by the control plane")
	addSyncFlags(cmd)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(maskSecrets(cfg))
			if err != nil {
				return err
			}

			if cfg.Path != "" {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("# "+cfg.Path))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Password = utils.MaskSecret(cfg.Password, 0)
	masked.ControlPlane.Token = utils.MaskSecret(cfg.ControlPlane.Token, 4)
	masked.Remote.S3.SecretKey = utils.MaskSecret(cfg.Remote.S3.SecretKey, 0)
	masked.Remote.Minio.SecretKey = utils.MaskSecret(cfg.Remote.Minio.SecretKey, 0)
	masked.Remote.SFTP.Password = utils.MaskSecret(cfg.Remote.SFTP.Password, 0)
	return &masked
}
