package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher monitors a watch-folder root using fsnotify, falling back to
// polling if fsnotify can't be initialised — grounded on the teacher's
// cmd/bd/daemon_watcher.go FileWatcher, generalised from one fixed JSONL
// path to every file directly in an arbitrary directory root
// (subdirectories are not watched).
type DirWatcher struct {
	root         string
	queue        *Queue
	errSink      ErrSink
	pollInterval time.Duration

	watcher     *fsnotify.Watcher
	pollingMode bool

	mu        sync.Mutex
	knownMod  map[string]time.Time
	knownSize map[string]int64

	wg sync.WaitGroup
}

// NewDirWatcher constructs a watcher over root. Falls back to polling at
// pollInterval if fsnotify.NewWatcher fails — the same degrade-don't-fail
// posture the teacher's watcher takes, since a file watcher that refuses
// to start is worse than one that polls.
func NewDirWatcher(root string, queue *Queue, errSink ErrSink, pollInterval time.Duration) (*DirWatcher, error) {
	if errSink == nil {
		errSink = func(error) {}
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	dw := &DirWatcher{
		root:         root,
		queue:        queue,
		errSink:      errSink,
		pollInterval: pollInterval,
		knownMod:     make(map[string]time.Time),
		knownSize:    make(map[string]int64),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		errSink(fmt.Errorf("fsnotify unavailable, falling back to polling: %w", err))
		dw.pollingMode = true
		return dw, nil
	}
	if err := w.Add(root); err != nil {
		_ = w.Close()
		errSink(fmt.Errorf("watch root %s: %w, falling back to polling", root, err))
		dw.pollingMode = true
		return dw, nil
	}
	dw.watcher = w
	return dw, nil
}

// Start begins monitoring in a background goroutine until ctx is
// cancelled.
func (dw *DirWatcher) Start(ctx context.Context) {
	dw.seedKnownState()

	if dw.pollingMode {
		dw.startPolling(ctx)
		return
	}

	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()
		for {
			select {
			case event, ok := <-dw.watcher.Events:
				if !ok {
					return
				}
				dw.handleFsEvent(event)
			case err, ok := <-dw.watcher.Errors:
				if !ok {
					return
				}
				dw.errSink(fmt.Errorf("watcher error: %w", err))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close releases the underlying fsnotify watcher, if any, and waits for
// the monitoring goroutine to exit.
func (dw *DirWatcher) Close() error {
	dw.wg.Wait()
	if dw.watcher != nil {
		return dw.watcher.Close()
	}
	return nil
}

func (dw *DirWatcher) handleFsEvent(event fsnotify.Event) {
	var evType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		evType = Created
	case event.Op&fsnotify.Write != 0 || event.Op&fsnotify.Chmod != 0:
		evType = Modified
	case event.Op&fsnotify.Remove != 0:
		evType = Deleted
	case event.Op&fsnotify.Rename != 0:
		evType = Renamed
	default:
		return
	}
	dw.queue.Enqueue(FileEvent{Path: event.Name, Type: evType, OccurredAt: time.Now()})
}

func (dw *DirWatcher) seedKnownState() {
	entries, err := os.ReadDir(dw.root)
	if err != nil {
		dw.errSink(fmt.Errorf("seed watch root %s: %w", dw.root, err))
		return
	}
	dw.mu.Lock()
	defer dw.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dw.root, entry.Name())
		dw.knownMod[path] = info.ModTime()
		dw.knownSize[path] = info.Size()
	}
}

// startPolling scans the watch root on a ticker, diffing against last-seen
// modtime/size to synthesize Created/Modified/Deleted events — the same
// shape as the teacher's startPolling, generalised from one file to a
// directory listing.
func (dw *DirWatcher) startPolling(ctx context.Context) {
	ticker := time.NewTicker(dw.pollInterval)
	dw.wg.Add(1)
	go func() {
		defer dw.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				dw.pollOnce()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (dw *DirWatcher) pollOnce() {
	entries, err := os.ReadDir(dw.root)
	if err != nil {
		dw.errSink(fmt.Errorf("poll watch root %s: %w", dw.root, err))
		return
	}

	dw.mu.Lock()
	defer dw.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dw.root, entry.Name())
		seen[path] = true

		mod, existed := dw.knownMod[path]
		size := dw.knownSize[path]
		dw.knownMod[path] = info.ModTime()
		dw.knownSize[path] = info.Size()

		if !existed {
			dw.queue.Enqueue(FileEvent{Path: path, Type: Created, OccurredAt: time.Now()})
			continue
		}
		if !info.ModTime().Equal(mod) || info.Size() != size {
			dw.queue.Enqueue(FileEvent{Path: path, Type: Modified, OccurredAt: time.Now()})
		}
	}

	for path := range dw.knownMod {
		if !seen[path] {
			delete(dw.knownMod, path)
			delete(dw.knownSize, path)
			dw.queue.Enqueue(FileEvent{Path: path, Type: Deleted, OccurredAt: time.Now()})
		}
	}
}
