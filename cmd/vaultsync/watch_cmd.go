package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/vaultsync/internal/config"
	"github.com/openmined/vaultsync/internal/controlplane"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/sync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd() *cobra.Command {
	var noFSWatch bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the vault in sync until interrupted",
		Long: "Sync on start, then every interval and whenever a file in the vault changes. " +
			"With --http a local api reports status and accepts sync requests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			v, err := openVault(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer v.Close()

			return watch(cmd.Context(), v, !noFSWatch)
		},
	}

	f := cmd.Flags()
	f.Duration("interval", config.DefaultInterval, "time between two scheduled syncs")
	f.BoolVar(&noFSWatch, "no-fs-watch", false, "only sync on the interval")
	f.Bool("http", false, "serve the local control plane api")
	f.String("http-addr", config.DefaultControlPlaneAddr, "control plane listen address")
	f.String("http-token", "", "bearer token required by the control plane, empty disables auth")
	addSyncFlags(cmd)
	return cmd
}

func watch(ctx context.Context, v *vault, fsWatch bool) error {
	m := metrics.New()
	v.syncer.Metrics = m

	g, ctx := errgroup.WithContext(ctx)

	if fsWatch {
		fw, err := newVaultWatcher(v)
		if err != nil {
			return err
		}
		if err := fw.Start(ctx); err != nil {
			return err
		}
		defer fw.Stop()

		g.Go(func() error {
			for key := range fw.Events() {
				if v.syncer.RequestRun() {
					slog.Debug("sync requested", "key", key)
				}
			}
			return nil
		})
	}

	if cp := v.cfg.ControlPlane; cp.Enabled {
		srv := controlplane.NewServer(&controlplane.Config{Addr: cp.Addr, Token: cp.Token}, v.syncer, m)
		g.Go(func() error {
			return srv.Start(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		return v.syncer.Watch(ctx, v.cfg.Interval)
	})

	return g.Wait()
}

// newVaultWatcher reports changes to keys the syncer would look at.
func newVaultWatcher(v *vault) (*sync.FileWatcher, error) {
	opts := v.cfg.SyncerOptions(false).Filter
	lines, err := sync.LoadIgnoreLines(v.tree.FS(), sync.IgnoreFileName)
	if err != nil {
		return nil, err
	}
	opts.IgnoreLines = lines

	filter, err := sync.NewNameFilter(opts)
	if err != nil {
		return nil, err
	}

	fw := sync.NewFileWatcher(v.cfg.VaultDir)
	fw.FilterKeys(filter.Skip)
	return fw, nil
}
