package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_history (
    key TEXT PRIMARY KEY,
    key_enc TEXT NOT NULL,
    size INTEGER NOT NULL,
    size_enc INTEGER NOT NULL,
    mtime_cli INTEGER NOT NULL DEFAULT 0,
    mtime_svr INTEGER NOT NULL DEFAULT 0,
    synced_at TEXT NOT NULL -- RFC3339
);
`

type dbEntity struct {
	Key      string `db:"key"`
	KeyEnc   string `db:"key_enc"`
	Size     int64  `db:"size"`
	SizeEnc  int64  `db:"size_enc"`
	MtimeCli int64  `db:"mtime_cli"`
	MtimeSvr int64  `db:"mtime_svr"`
	SyncedAt string `db:"synced_at"`
}

func (d *dbEntity) entity() *Entity {
	return &Entity{
		Key:      d.Key,
		KeyEnc:   d.KeyEnc,
		Size:     d.Size,
		SizeEnc:  d.SizeEnc,
		MtimeCli: d.MtimeCli,
		MtimeSvr: d.MtimeSvr,
	}
}

// SyncJournal is the sqlite backed HistoryStore.
type SyncJournal struct {
	db     *sqlx.DB
	dbPath string
}

// NewSyncJournal prepares a journal at dbPath. Use ":memory:" for a throwaway journal.
func NewSyncJournal(dbPath string) *SyncJournal {
	return &SyncJournal{dbPath: dbPath}
}

func (s *SyncJournal) Open(ctx context.Context) error {
	if s.db != nil {
		return fmt.Errorf("sync journal already open")
	}

	// one connection serializes concurrent upserts from the executor
	conn, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open sync journal: %w", err)
	}

	if err := db.Migrate(ctx, conn, journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	s.db = conn
	return nil
}

func (s *SyncJournal) Close() error {
	if s.db == nil {
		return fmt.Errorf("sync journal not open")
	}
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close sync journal", "error", err)
		return err
	}
	s.db = nil
	slog.Debug("sync journal closed")
	return nil
}

// Get returns the record for key, or nil when there is none.
func (s *SyncJournal) Get(ctx context.Context, key string) (*Entity, error) {
	var row dbEntity
	err := s.db.GetContext(ctx, &row, "SELECT * FROM sync_history WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query key %s: %w", key, err)
	}
	return row.entity(), nil
}

func (s *SyncJournal) List(ctx context.Context) ([]*Entity, error) {
	var rows []dbEntity
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM sync_history ORDER BY key"); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	entities := make([]*Entity, 0, len(rows))
	for i := range rows {
		entities = append(entities, rows[i].entity())
	}
	return entities, nil
}

func (s *SyncJournal) Upsert(ctx context.Context, e *Entity) error {
	if e == nil {
		return fmt.Errorf("cannot upsert nil entity")
	}

	row := dbEntity{
		Key:      e.Key,
		KeyEnc:   e.KeyEnc,
		Size:     e.Size,
		SizeEnc:  e.SizeEnc,
		MtimeCli: e.MtimeCli,
		MtimeSvr: e.MtimeSvr,
		SyncedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if row.KeyEnc == "" {
		row.KeyEnc = row.Key
	}

	query := `INSERT OR REPLACE INTO sync_history (key, key_enc, size, size_enc, mtime_cli, mtime_svr, synced_at)
	          VALUES (:key, :key_enc, :size, :size_enc, :mtime_cli, :mtime_svr, :synced_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert history for %s: %w", e.Key, err)
	}
	slog.Debug("sync journal upsert", "key", e.Key, "mtime", e.MtimeSvr, "sizeEnc", e.SizeEnc)
	return nil
}

func (s *SyncJournal) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sync_history WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", key, err)
	}
	return nil
}

func (s *SyncJournal) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_history"); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// Destroy closes the journal and keeps the file aside as a timestamped backup.
// The next run then treats every path as never synced.
func (s *SyncJournal) Destroy() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to reset journal: %w", err)
	}
	if s.dbPath == ":memory:" {
		return nil
	}

	timestamp := time.Now().Format("20060102150405")
	if err := os.Rename(s.dbPath, fmt.Sprintf("%s.%s.bak", s.dbPath, timestamp)); err != nil {
		return fmt.Errorf("failed to rename journal file: %w", err)
	}
	return nil
}

var _ HistoryStore = (*SyncJournal)(nil)
