package sync

import (
	"context"
	"io"

	"github.com/openmined/vaultsync/internal/blob"
)

// LocalTree is the vault on the local machine. Keys are logical, folders end with "/".
type LocalTree interface {
	List(ctx context.Context) ([]*Entity, error)
	// EnsureDir creates key when it is a folder key, or the parent folders of a file key
	EnsureDir(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, *Entity, error)
	// Write replaces the file content and sets its modification time (unix ms, 0 leaves it)
	Write(ctx context.Context, key string, r io.Reader, mtime int64) error
}

// RemoteClient moves entries between the vault and the remote store.
type RemoteClient interface {
	ServiceType() blob.ServiceType
	// List returns at-rest entities, Key equal to KeyEnc
	List(ctx context.Context) ([]*Entity, error)
	// Upload copies key from the vault and returns the resulting remote entity
	Upload(ctx context.Context, key string, isFolder bool, password, knownKeyEnc string) (*Entity, error)
	Download(ctx context.Context, key string, mtimeCli int64, password, keyEnc string) error
	Delete(ctx context.Context, key, password, keyEnc string) error
}

// HistoryStore keeps the last synced state of every path. It must accept concurrent calls.
type HistoryStore interface {
	List(ctx context.Context) ([]*Entity, error)
	Upsert(ctx context.Context, e *Entity) error
	Clear(ctx context.Context, key string) error
}

// ProgressFunc is called before each side effect with the number of entries started so far.
// It may be called from several goroutines at once.
type ProgressFunc func(done, total int, key string, decision Decision)
