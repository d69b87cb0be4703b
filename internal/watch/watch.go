// Package watch reloads the data files when they change on disk. A reload
// builds and validates a complete new snapshot before swapping it in; a file
// that fails to load leaves the running snapshot untouched.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/advisor"
)

// Swapper installs a new snapshot
type Swapper interface {
	Swap(snap *advisor.Snapshot) *advisor.Snapshot
}

// LoadFunc builds a fresh snapshot from disk
type LoadFunc func() (*advisor.Snapshot, error)

// Reloader watches data files and swaps in a new snapshot after they settle
type Reloader struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     []string
	load     LoadFunc
	target   Swapper
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	reloads  atomic.Int64
	failures atomic.Int64
}

// New creates a reloader for paths. Directories are watched rather than the
// files themselves so editors that replace files by rename are seen.
func New(paths []string, load LoadFunc, target Swapper, debounce time.Duration, logger *zap.Logger) (*Reloader, error) {
	if len(paths) == 0 {
		return nil, errors.New("no data files to watch")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	files := make(map[string]bool, len(paths))
	seenDirs := make(map[string]bool)
	var dirs []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		files[abs] = true
		if dir := filepath.Dir(abs); !seenDirs[dir] {
			seenDirs[dir] = true
			dirs = append(dirs, dir)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &Reloader{
		watcher:  watcher,
		files:    files,
		dirs:     dirs,
		load:     load,
		target:   target,
		debounce: debounce,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	for _, dir := range r.dirs {
		if err := r.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		r.logger.Info("watching data directory", zap.String("dir", dir))
	}

	r.running = true
	go r.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh

	if err := r.watcher.Close(); err != nil {
		r.logger.Warn("close watcher", zap.Error(err))
	}
}

func (r *Reloader) run(ctx context.Context) {
	defer close(r.doneCh)

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-r.stopCh:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			r.logger.Debug("data file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			timer.Reset(r.debounce)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			r.Reload()
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return r.files[abs]
}

// Reload builds a new snapshot and swaps it in. Failures are logged and
// counted; the current snapshot keeps serving.
func (r *Reloader) Reload() error {
	snap, err := r.load()
	if err != nil {
		r.failures.Add(1)
		r.logger.Error("data reload failed, keeping current snapshot", zap.Error(err))
		return err
	}

	r.target.Swap(snap)
	r.reloads.Add(1)
	return nil
}

// Reloads returns the number of successful reloads
func (r *Reloader) Reloads() int64 { return r.reloads.Load() }

// Failures returns the number of rejected reloads
func (r *Reloader) Failures() int64 { return r.failures.Load() }
