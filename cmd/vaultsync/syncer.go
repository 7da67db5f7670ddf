package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/vaultsync/internal/blob"
	"github.com/openmined/vaultsync/internal/config"
	"github.com/openmined/vaultsync/internal/sync"
)

// vault bundles what one command needs to sync a configured vault.
type vault struct {
	cfg     *config.Config
	tree    *sync.BillyTree
	remote  *sync.RemoteStore
	journal *sync.SyncJournal
	syncer  *sync.Syncer
}

func openVault(ctx context.Context, cfg *config.Config, dryRun bool) (*vault, error) {
	slog.Info("vaultsync", cfg.LogValues()...)

	tree, err := sync.NewOSTree(cfg.VaultDir)
	if err != nil {
		return nil, err
	}

	backend, err := blob.NewBackend(ctx, &cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	remote := sync.NewRemoteStore(backend, tree)

	journal := sync.NewSyncJournal(cfg.JournalPath)
	if err := journal.Open(ctx); err != nil {
		return nil, err
	}

	syncer, err := sync.NewSyncer(tree, remote, journal, cfg.SyncerOptions(dryRun))
	if err != nil {
		journal.Close()
		return nil, err
	}

	return &vault{cfg: cfg, tree: tree, remote: remote, journal: journal, syncer: syncer}, nil
}

func (v *vault) Close() error {
	return v.journal.Close()
}

func writeJSON(w io.Writer, v any) error {
	data, err := jsonMarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
