package sync

import (
	"log/slog"
	"sync"
	"time"
)

// SyncStatus is the stage a run is in. Stages are reported in declaration order.
type SyncStatus string

const (
	StatusIdle                 SyncStatus = "idle"
	StatusPreparing            SyncStatus = "preparing"
	StatusGettingRemoteList    SyncStatus = "getting_remote_files_list"
	StatusCheckingPassword     SyncStatus = "checking_password"
	StatusGettingLocalMeta     SyncStatus = "getting_local_meta"
	StatusGettingLocalPrevSync SyncStatus = "getting_local_prev_sync"
	StatusGeneratingPlan       SyncStatus = "generating_plan"
	StatusSyncing              SyncStatus = "syncing"
	StatusCleaning             SyncStatus = "cleaning"
	StatusFinish               SyncStatus = "finish"
)

type StatusFunc func(status SyncStatus)

// statusTracker remembers the current stage and how long the previous ones took.
type statusTracker struct {
	mu       sync.RWMutex
	current  SyncStatus
	since    time.Time
	onStatus StatusFunc
	timings  map[SyncStatus]time.Duration
}

func newStatusTracker(onStatus StatusFunc) *statusTracker {
	return &statusTracker{
		current:  StatusIdle,
		since:    time.Now(),
		onStatus: onStatus,
		timings:  make(map[SyncStatus]time.Duration),
	}
}

func (t *statusTracker) set(status SyncStatus) {
	t.mu.Lock()
	now := time.Now()
	t.timings[t.current] += now.Sub(t.since)
	t.current = status
	t.since = now
	t.mu.Unlock()

	slog.Debug("sync status", "status", status)
	if t.onStatus != nil {
		t.onStatus(status)
	}
}

func (t *statusTracker) Current() SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *statusTracker) took(status SyncStatus) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.timings[status]
}
