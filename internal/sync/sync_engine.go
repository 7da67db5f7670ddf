package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/openmined/vaultsync/internal/metrics"
	"github.com/openmined/vaultsync/internal/vaultcrypt"
)

type SyncerOptions struct {
	Filter      FilterOptions
	Decide      DecideOptions
	Password    string
	Concurrency int
	// DryRun computes the plan without touching either side
	DryRun bool
	// LockPath guards against a second process syncing the same vault, empty disables it
	LockPath string
}

// Syncer runs the whole pipeline: list the three sides, decide and execute.
type Syncer struct {
	local   LocalTree
	remote  RemoteClient
	history HistoryStore
	opts    SyncerOptions

	Metrics    *metrics.Metrics
	OnStatus   StatusFunc
	OnProgress ProgressFunc

	muSync  sync.Mutex
	trigger chan struct{}

	stateMu sync.RWMutex
	status  SyncStatus
	last    *RunResult
	lastErr error
	lastAt  time.Time
}

func NewSyncer(local LocalTree, remote RemoteClient, history HistoryStore, opts SyncerOptions) (*Syncer, error) {
	if err := opts.Decide.EmptyFolder.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Decide.ConflictAction.Validate(); err != nil {
		return nil, err
	}
	if _, err := NewNameFilter(opts.Filter); err != nil {
		return nil, err
	}
	return &Syncer{
		local:   local,
		remote:  remote,
		history: history,
		opts:    opts,
		trigger: make(chan struct{}, 1),
		status:  StatusIdle,
	}, nil
}

// RunResult describes one finished run.
type RunResult struct {
	RunID    string         `json:"runId"`
	Plan     SyncPlan       `json:"plan"`
	Steps    *ExecutionPlan `json:"steps"`
	DryRun   bool           `json:"dryRun"`
	Duration time.Duration  `json:"duration"`
}

func (s *Syncer) Run(ctx context.Context) (*RunResult, error) {
	if !s.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer s.muSync.Unlock()

	if s.opts.LockPath != "" {
		lock := flock.New(s.opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", s.opts.LockPath, err)
		}
		if !locked {
			return nil, ErrSyncAlreadyRunning
		}
		defer lock.Unlock() //nolint:errcheck
	}

	tStart := time.Now()
	result := &RunResult{RunID: uuid.NewString(), DryRun: s.opts.DryRun}
	log := slog.With("run", result.RunID)

	err := s.run(ctx, log, result)
	result.Duration = time.Since(tStart)
	s.finish(result, err)

	status := "ok"
	if err != nil {
		status = "error"
		log.Error("sync run failed", "error", err, "took", result.Duration)
	}
	if !s.opts.DryRun {
		s.Metrics.RecordRun(status, result.Duration)
	}
	return result, err
}

func (s *Syncer) run(ctx context.Context, log *slog.Logger, result *RunResult) error {
	status := newStatusTracker(s.setStatus)
	status.set(StatusPreparing)

	cipher, err := vaultcrypt.NewCipher(s.opts.Password)
	if err != nil {
		return err
	}
	filter := s.opts.Filter
	if fsys, ok := s.local.(interface{ FS() billy.Filesystem }); ok {
		lines, err := LoadIgnoreLines(fsys.FS(), IgnoreFileName)
		if err != nil {
			return err
		}
		filter.IgnoreLines = append(append([]string(nil), filter.IgnoreLines...), lines...)
	}

	status.set(StatusGettingRemoteList)
	remote, err := s.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("get remote state: %w", err)
	}

	status.set(StatusCheckingPassword)
	if check := CheckPassword(remote, s.opts.Password, cipher); !check.OK {
		return fmt.Errorf("%w: %s", ErrPasswordCheck, check.Reason)
	}

	status.set(StatusGettingLocalMeta)
	local, err := s.local.List(ctx)
	if err != nil {
		return fmt.Errorf("scan local state: %w", err)
	}

	status.set(StatusGettingLocalPrevSync)
	prevSync, err := s.history.List(ctx)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}

	status.set(StatusGeneratingPlan)
	plan, err := Ensemble(local, prevSync, remote, EnsembleOptions{
		FilterOptions: filter,
		Password:      s.opts.Password,
		Cipher:        cipher,
	})
	if err != nil {
		return fmt.Errorf("ensemble: %w", err)
	}
	if plan, err = Decide(plan, s.opts.Decide); err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	steps, err := Split(plan)
	if err != nil {
		return fmt.Errorf("split: %w", err)
	}
	result.Plan, result.Steps = plan, steps

	summary := summarize(steps)
	log.Info("sync plan",
		"local", len(local),
		"remote", len(remote),
		"history", len(prevSync),
		"folders", summary.folders,
		"deletions", summary.deletions,
		"transfers", summary.transfers,
		"transferSize", humanize.Bytes(uint64(summary.bytes)),
		"dryRun", s.opts.DryRun,
	)

	if s.opts.DryRun || steps.Empty() {
		status.set(StatusFinish)
		return nil
	}

	status.set(StatusSyncing)
	executor := &Executor{
		Remote:      s.remote,
		Local:       s.local,
		History:     s.history,
		Password:    s.opts.Password,
		Concurrency: s.opts.Concurrency,
		Progress:    s.OnProgress,
		Metrics:     s.Metrics,
	}
	if err := executor.Execute(ctx, steps); err != nil {
		return err
	}

	status.set(StatusCleaning)
	status.set(StatusFinish)
	log.Info("sync done",
		"entries", steps.TotalCount,
		"tsRemoteState", status.took(StatusGettingRemoteList),
		"tsLocalState", status.took(StatusGettingLocalMeta),
		"tsPlan", status.took(StatusGeneratingPlan),
		"tsSync", status.took(StatusSyncing),
	)
	return nil
}

type planSummary struct {
	folders, deletions, transfers int
	bytes                         int64
}

func summarize(steps *ExecutionPlan) planSummary {
	var sum planSummary
	for _, level := range steps.FolderCreation {
		sum.folders += len(level)
	}
	for _, level := range steps.Deletion {
		sum.deletions += len(level)
	}
	for _, level := range steps.Transfer {
		sum.transfers += len(level)
		for _, m := range level {
			sum.bytes += transferSize(m)
		}
	}
	return sum
}

// Snapshot is the state reported by the control plane.
type Snapshot struct {
	Status    SyncStatus `json:"status"`
	Running   bool       `json:"running"`
	LastRun   *RunResult `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	LastRunAt time.Time  `json:"lastRunAt"`
}

func (s *Syncer) Snapshot() Snapshot {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	snap := Snapshot{
		Status:    s.status,
		Running:   s.status != StatusIdle && s.status != StatusFinish,
		LastRun:   s.last,
		LastRunAt: s.lastAt,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

func (s *Syncer) setStatus(status SyncStatus) {
	s.stateMu.Lock()
	s.status = status
	s.stateMu.Unlock()

	if s.OnStatus != nil {
		s.OnStatus(status)
	}
}

func (s *Syncer) finish(result *RunResult, err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.last = result
	s.lastErr = err
	s.lastAt = time.Now()
	if err != nil {
		s.status = StatusIdle
	}
}

// RequestRun asks Watch for a run as soon as the current one is done. Requests made while
// one is already pending are merged, the return value reports whether this one was queued.
func (s *Syncer) RequestRun() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Watch runs the pipeline every interval and on RequestRun until ctx is done. The timer
// restarts after each run so a slow run never queues another one.
func (s *Syncer) Watch(ctx context.Context, interval time.Duration) error {
	if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("failed to run initial sync", "error", err)
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
		}

		if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("failed to run sync", "error", err)
		}
		// requests raised by the run's own writes
		s.drainRequests()
		timer.Reset(interval)
	}
}

func (s *Syncer) drainRequests() {
	select {
	case <-s.trigger:
	default:
	}
}
