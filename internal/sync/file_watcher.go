package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 500 * time.Millisecond
)

// FilterCallback returns true if changes to key should not be reported
type FilterCallback func(key string) bool

// FileWatcher reports vault keys that changed on disk. Bursts of events for the same key
// are collapsed into one.
type FileWatcher struct {
	root      string
	events    chan string
	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        sync.WaitGroup

	pending         map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	ignoreCallback FilterCallback
}

func NewFileWatcher(root string) *FileWatcher {
	return &FileWatcher{
		root:            root,
		done:            make(chan struct{}),
		pending:         make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterKeys drops events before debouncing. Call it before Start.
func (fw *FileWatcher) FilterKeys(callback FilterCallback) {
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.root)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan string, eventBufferSize)

	recursivePath := filepath.Join(fw.root, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	slog.Info("file watcher stopping")
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()
	slog.Info("file watcher stopped")
}

// Events is closed once the watcher stops.
func (fw *FileWatcher) Events() <-chan string {
	return fw.events
}

func (fw *FileWatcher) keyOf(path string) (string, bool) {
	rel, err := filepath.Rel(fw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.debounceMu.Lock()
		for key, timer := range fw.pending {
			timer.Stop()
			delete(fw.pending, key)
		}
		fw.debounceMu.Unlock()

		fw.wg.Done()
		close(fw.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			key, ok := fw.keyOf(event.Path())
			if !ok {
				continue
			}
			if fw.ignoreCallback != nil && fw.ignoreCallback(key) {
				continue
			}

			// editors write in bursts, report the key once it settles
			fw.debounce(key)
		}
	}
}

func (fw *FileWatcher) debounce(key string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.pending[key]; exists {
		timer.Stop()
	}
	fw.pending[key] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flush(key)
	})
}

func (fw *FileWatcher) flush(key string) {
	fw.debounceMu.Lock()
	if _, exists := fw.pending[key]; !exists {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.pending, key)

	// still under the lock so a concurrent shutdown cannot close events under us
	select {
	case <-fw.done:
	case fw.events <- key:
		slog.Debug("file watcher", "key", key)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "key", key)
	}
	fw.debounceMu.Unlock()
}
