package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/vaultsync/internal/config"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var home, _ = os.UserHomeDir()

var (
	logLevel = new(slog.LevelVar)
	logFile  io.Closer
)

// viper keys bound to flags, when the running command has them
var flagKeys = map[string]string{
	"vault_dir":             "vault",
	"password":              "password",
	"concurrency":           "concurrency",
	"interval":              "interval",
	"journal_path":          "journal",
	"sync.conflict_action":  "conflict",
	"sync.empty_folder":     "empty-folder",
	"sync.sync_config_dir":  "sync-config-dir",
	"remote.type":           "remote",
	"remote.fs.root":        "fs-root",
	"remote.s3.bucket":      "s3-bucket",
	"remote.s3.region":      "s3-region",
	"remote.s3.endpoint":    "s3-endpoint",
	"remote.minio.endpoint": "minio-endpoint",
	"remote.minio.bucket":   "minio-bucket",
	"remote.sftp.host":      "sftp-host",
	"remote.sftp.user":      "sftp-user",
	"remote.sftp.root":      "sftp-root",
	"control_plane.enabled": "http",
	"control_plane.addr":    "http-addr",
	"control_plane.token":   "http-token",
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "vaultsync",
		Short:   "Sync a notes vault with a remote object store",
		Version: version.Detailed(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				logLevel.Set(slog.LevelDebug)
			}
			path, _ := cmd.Flags().GetString("log-file")
			return setupLogging(path)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", config.DefaultConfigPath, "vaultsync config file")
	flags.StringP("vault", "d", "", "vault directory")
	flags.StringP("password", "p", "", "end-to-end encryption password, empty disables encryption")
	flags.String("log-file", config.DefaultLogFilePath, "log file, empty disables it")
	flags.Bool("verbose", false, "debug logging")

	rootCmd.AddCommand(
		newSyncCmd(),
		newPlanCmd(),
		newCheckPasswordCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// addRemoteFlags adds the flags that pick and configure the remote without a config file.
func addRemoteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("remote", "", "remote type: s3, minio, sftp or fs")
	f.String("fs-root", "", "fs remote: root directory")
	f.String("s3-bucket", "", "s3 remote: bucket")
	f.String("s3-region", "", "s3 remote: region")
	f.String("s3-endpoint", "", "s3 remote: custom endpoint")
	f.String("minio-endpoint", "", "minio remote: endpoint")
	f.String("minio-bucket", "", "minio remote: bucket")
	f.String("sftp-host", "", "sftp remote: host")
	f.String("sftp-user", "", "sftp remote: user")
	f.String("sftp-root", "", "sftp remote: root directory")
}

func addSyncFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("concurrency", config.DefaultConcurrency, "parallel transfers")
	f.String("journal", "", "history journal path")
	f.String("conflict", "", "conflict action: keep_newer, keep_larger or keep_both")
	f.String("empty-folder", "", "empty folder policy: skip or clean_both")
	f.Bool("sync-config-dir", false, "also sync the vault settings folder")
	addRemoteFlags(cmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// setupLogging sends colored logs to stdout and plain ones to path.
func setupLogging(path string) error {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	if path == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = file

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return nil
}

// loadConfig merges the config file, the environment and the command's flags. The result
// is validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := readConfig(cmd, true)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfig is loadConfig without validation. With readFile false only flags, environment
// and defaults are used.
func readConfig(cmd *cobra.Command, readFile bool) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if readFile {
		if f := cmd.Flag("config"); f != nil && f.Changed {
			v.SetConfigFile(f.Value.String())
		} else {
			v.AddConfigPath(config.DefaultHomeDir)
			v.AddConfigPath(filepath.Join(home, ".config", "vaultsync"))
			v.SetConfigName(config.ConfigFileName)
		}

		if err := v.ReadInConfig(); err != nil {
			enoent := errors.Is(err, os.ErrNotExist)
			_, ok := err.(viper.ConfigFileNotFoundError)
			if !enoent && !ok {
				return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
			}
		}
	}

	for key, name := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	config.BindEnv(v)
	return config.Load(v)
}
