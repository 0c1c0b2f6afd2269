// Package watch re-runs the coverage pipeline whenever a profiler dump or a
// listing changes. Every trigger is a full rebuild.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"profcov/internal/logging"
	"profcov/internal/pipeline"
)

// DefaultDebounce is the quiet period after the last change before a run.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one rebuild.
type RunFunc func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Runs          int
	Failures      int
	LastRunID     string
	LastError     string
	LastEventPath string
	LastEventTime time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a run.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRunFunc replaces pipeline.Run.
func WithRunFunc(fn RunFunc) Option {
	return func(w *Watcher) { w.run = fn }
}

// Watcher watches the inputs of a pipeline run.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	opts     pipeline.Options
	run      RunFunc
	debounce time.Duration
	output   string

	pending   bool
	lastEvent time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	stats Stats
}

// New creates a Watcher for opts. Nothing is watched until Start.
func New(opts pipeline.Options, options ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		opts:     opts,
		run:      pipeline.Run,
		debounce: DefaultDebounce,
		output:   absPath(opts.OutputPath),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, o := range options {
		o(w)
	}
	return w, nil
}

// Start adds the watches, runs the pipeline once and then re-runs it after
// every settled change. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatches(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
		w.watcher.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop stops the loop and waits for a run in progress to finish. A Watcher
// cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("stopped")
}

// Done is closed when the loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) addWatches() error {
	profDir := w.opts.ProfilerPath
	info, err := os.Stat(profDir)
	if err != nil {
		return fmt.Errorf("%w: %s", pipeline.ErrProfilerNotFound, profDir)
	}
	if !info.IsDir() {
		profDir = filepath.Dir(profDir)
	}
	if err := w.watcher.Add(profDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", profDir, err)
	}
	logging.Watch("watching profiler directory %s", profDir)

	// A listing root that does not exist yet is not fatal; runs report it
	// as an empty root.
	if _, err := os.Stat(w.opts.ListingRoot); err != nil {
		logging.Get(logging.CategoryWatch).Warn("listing root %s not watched: %v", w.opts.ListingRoot, err)
		return nil
	}
	return w.addTree(w.opts.ListingRoot)
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		logging.WatchDebug("watching %s", path)
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	w.runOnce(ctx)

	tick := w.debounce / 2
	if tick > 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watch error: %v", err)

		case <-ticker.C:
			if w.settled() {
				w.runOnce(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if w.isOutput(event.Name) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logging.Get(logging.CategoryWatch).Warn("%v", err)
			}
		}
	}

	logging.WatchDebug("%s %s", event.Op, event.Name)

	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = w.lastEvent
	w.mu.Unlock()
}

// isOutput reports whether path is the report or a file next to it sharing
// its name, such as a database journal.
func (w *Watcher) isOutput(path string) bool {
	if w.output == "" {
		return false
	}
	return strings.HasPrefix(absPath(path), w.output)
}

// settled reports whether changes are pending and quiet for the debounce
// period, clearing the pending flag when they are.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		return false
	}
	w.pending = false
	return true
}

func (w *Watcher) runOnce(ctx context.Context) {
	res, err := w.run(ctx, w.opts)

	w.mu.Lock()
	w.stats.Runs++
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastError = ""
		if res != nil {
			w.stats.LastRunID = res.RunID
		}
	}
	w.mu.Unlock()

	if err != nil {
		logging.Get(logging.CategoryWatch).Error("run failed, waiting for the next change: %v", err)
		return
	}
	logging.Watch("run complete")
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
