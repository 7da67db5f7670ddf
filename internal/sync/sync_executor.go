package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/blob"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/queue"
	"golang.org/x/sync/errgroup"
)

const (
	// a level stops starting new entries once this many have failed
	maxLevelErrors     = 3
	defaultConcurrency = 5
)

// Executor applies an ExecutionPlan: folder creation, then deletion, then transfer.
// Levels run one after another, entries inside a level run concurrently.
type Executor struct {
	Remote      RemoteClient
	Local       LocalTree
	History     HistoryStore
	Password    string
	Concurrency int
	Progress    ProgressFunc
	Metrics     *metrics.Metrics
}

// Execute stops at the first level that fails and returns its *LevelError.
func (x *Executor) Execute(ctx context.Context, plan *ExecutionPlan) error {
	var started atomic.Int64

	phases := []struct {
		phase  Category
		levels [][]*MixedEntity
	}{
		{CategoryFolderCreation, plan.FolderCreation},
		{CategoryDeletion, plan.Deletion},
		{CategoryTransfer, plan.Transfer},
	}

	for _, ph := range phases {
		for i, level := range ph.levels {
			if len(level) == 0 {
				continue
			}
			slog.Debug("sync level", "phase", ph.phase, "level", i, "entries", len(level))
			if err := x.runLevel(ctx, ph.phase, i, level, plan.TotalCount, &started); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *Executor) runLevel(ctx context.Context, phase Category, idx int, level []*MixedEntity, total int, started *atomic.Int64) error {
	// smallest first, so one huge file does not hold back the rest of the level
	q := queue.NewPriorityQueue[*MixedEntity]()
	for _, m := range level {
		var priority int64
		if phase == CategoryTransfer {
			priority = transferSize(m)
		}
		q.Enqueue(m, priority)
	}

	var (
		mu       sync.Mutex
		errs     []error
		failures atomic.Int32
	)

	concurrency := x.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for failures.Load() < maxLevelErrors && ctx.Err() == nil {
		m, ok := q.Dequeue()
		if !ok {
			break
		}
		g.Go(func() error {
			if failures.Load() >= maxLevelErrors {
				return nil
			}
			if x.Progress != nil {
				x.Progress(int(started.Add(1)-1), total, m.Key, m.Decision)
			}

			err := x.dispatch(ctx, m)
			x.Metrics.RecordEntry(string(m.Decision), err)
			if err != nil {
				slog.Error("sync", "op", m.Decision, "path", m.Key, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", m.Key, err))
				mu.Unlock()
				failures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		x.Metrics.RecordLevelFailure(phase.String())
		return &LevelError{
			Phase:   phase,
			Level:   idx,
			Errors:  errs,
			TooMany: len(errs) >= maxLevelErrors,
		}
	}
	return ctx.Err()
}

// dispatch carries out one decision. Deletions propagate to the side that still has the
// file: deleted_local removes the remote copy and deleted_remote removes the local one.
func (x *Executor) dispatch(ctx context.Context, m *MixedEntity) error {
	start := time.Now()

	switch m.Decision {
	case DecisionEqual, DecisionFolderToSkip, DecisionFolderExistedBoth:
		return nil

	case DecisionOnlyHistory:
		return x.History.Clear(ctx, m.Key)

	case DecisionModifiedLocal, DecisionCreatedLocal,
		DecisionConflictCreatedKeepLocal, DecisionConflictModifiedKeepLocal,
		DecisionFolderExistedLocal:
		if err := x.upload(ctx, m); err != nil {
			return err
		}

	case DecisionModifiedRemote, DecisionCreatedRemote,
		DecisionConflictCreatedKeepRemote, DecisionConflictModifiedKeepRemote,
		DecisionFolderExistedRemote:
		if err := x.download(ctx, m); err != nil {
			return err
		}

	// deleted_local: the vault dropped an unchanged file, drop the remote copy.
	// deleted_remote: the remote dropped it, drop the vault copy.
	case DecisionDeletedLocal:
		if err := x.Remote.Delete(ctx, m.Key, x.Password, m.knownKeyEnc()); err != nil {
			return fmt.Errorf("delete remote: %w", err)
		}
		if err := x.History.Clear(ctx, m.Key); err != nil {
			return err
		}

	case DecisionDeletedRemote:
		if err := x.Local.Delete(ctx, m.Key); err != nil {
			return fmt.Errorf("delete local: %w", err)
		}
		if err := x.History.Clear(ctx, m.Key); err != nil {
			return err
		}

	case DecisionConflictCreatedKeepBoth, DecisionConflictModifiedKeepBoth:
		return fmt.Errorf("%w: %s", ErrNotImplemented, m)

	case DecisionFolderToBeCreated:
		if err := x.Local.EnsureDir(ctx, m.Key); err != nil {
			return fmt.Errorf("create local folder: %w", err)
		}
		remote, err := x.Remote.Upload(ctx, m.Key, true, x.Password, m.knownKeyEnc())
		if err != nil {
			return fmt.Errorf("upload folder: %w", err)
		}
		if err := x.History.Upsert(ctx, historyRecord(remote)); err != nil {
			return err
		}

	case DecisionFolderToBeDeleted:
		if m.Local != nil {
			if err := x.Local.Delete(ctx, m.Key); err != nil {
				return fmt.Errorf("delete local folder: %w", err)
			}
		}
		if m.Remote != nil {
			if err := x.Remote.Delete(ctx, m.Key, x.Password, m.Remote.KeyEnc); err != nil {
				return fmt.Errorf("delete remote folder: %w", err)
			}
		}
		if err := x.History.Clear(ctx, m.Key); err != nil {
			return err
		}

	default:
		return fmt.Errorf("%w %q for %s", ErrUnknownDecision, m.Decision, m.Key)
	}

	slog.Info("sync", "op", m.Decision, "path", m.Key, "branch", m.DecisionBranch, "took", time.Since(start))
	return nil
}

func (x *Executor) upload(ctx context.Context, m *MixedEntity) error {
	local := m.Local
	isFolder := m.Local.IsFolder()

	// the service cannot store empty objects, unencrypted empty files are left local only
	if x.Remote.ServiceType() == blob.ServiceOneDrive && !isFolder && local.Size == 0 && x.Password == "" {
		slog.Debug("sync skip empty upload", "path", m.Key, "service", blob.ServiceOneDrive)
		return nil
	}

	remote, err := x.Remote.Upload(ctx, m.Key, isFolder, x.Password, local.KeyEnc)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	x.Metrics.RecordBytes("upload", remote.SizeEnc)
	slog.Debug("sync uploaded", "path", m.Key, "size", humanize.Bytes(uint64(max(remote.SizeEnc, 0))))

	return x.History.Upsert(ctx, historyRecord(remote))
}

func (x *Executor) download(ctx context.Context, m *MixedEntity) error {
	remote := m.Remote

	if err := x.Local.EnsureDir(ctx, m.Key); err != nil {
		return fmt.Errorf("create local parent: %w", err)
	}
	if err := x.Remote.Download(ctx, m.Key, remote.Mtime(), x.Password, remote.KeyEnc); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if !remote.IsFolder() {
		x.Metrics.RecordBytes("download", remote.SizeEnc)
		slog.Debug("sync downloaded", "path", m.Key, "size", humanize.Bytes(uint64(max(remote.SizeEnc, 0))))
	}

	return x.History.Upsert(ctx, historyRecord(remote))
}

// historyRecord stores the content timestamp in MtimeSvr. The next run compares the local
// client time against it, which could never match a pure server timestamp.
func historyRecord(e *Entity) *Entity {
	rec := *e
	if rec.MtimeCli != 0 {
		rec.MtimeSvr = rec.MtimeCli
	}
	return &rec
}

func transferSize(m *MixedEntity) int64 {
	switch {
	case m.Local != nil && m.Remote != nil:
		return max(m.Local.SizeEnc, m.Remote.SizeEnc)
	case m.Local != nil:
		return m.Local.SizeEnc
	case m.Remote != nil:
		return m.Remote.SizeEnc
	}
	return 0
}
