// Package watcher monitors library directories and queues trickplay jobs for
// new video files once they stop changing.
package watcher

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
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/config"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/utils"
)

// SubmitFunc queues a job for a settled video file
type SubmitFunc func(ctx context.Context, path string) error

// Watcher provides file system monitoring for library directories
type Watcher struct {
	logger   hclog.Logger
	eventBus events.EventBus
	submit   SubmitFunc
	settle   time.Duration
	roots    []string

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher for the configured directories. eventBus may be nil.
func New(cfg config.WatcherConfig, submit SubmitFunc, eventBus events.EventBus, logger hclog.Logger) (*Watcher, error) {
	if submit == nil {
		return nil, fmt.Errorf("submit function is required")
	}
	if len(cfg.Directories) == 0 {
		return nil, fmt.Errorf("no directories to watch")
	}

	roots := make([]string, 0, len(cfg.Directories))
	for _, dir := range cfg.Directories {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		if !utils.DirExists(abs) {
			return nil, fmt.Errorf("watch directory does not exist: %s", abs)
		}
		roots = append(roots, abs)
	}

	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = 5 * time.Second
	}

	return &Watcher{
		logger:   logger.Named("watcher"),
		eventBus: eventBus,
		submit:   submit,
		settle:   settle,
		roots:    roots,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start adds recursive watches for every root and begins the event loop
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)

	for _, root := range w.roots {
		if err := w.addRecursiveWatch(root, root, false); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.wg.Add(1)
	go w.watchEvents()

	w.logger.Info("watching library directories", "directories", w.roots, "settle_delay", w.settle)
	return nil
}

// Stop stops the event loop and discards files that have not settled
func (w *Watcher) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.logger.Info("watcher stopped")
	return err
}

// addRecursiveWatch watches dir and its subdirectories, skipping generated
// output. With schedule set, video files already present are queued too:
// they may have been written before the watch was added.
func (w *Watcher) addRecursiveWatch(root, dir string, schedule bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if d.IsDir() {
			if path != root && utils.IsTrickplayDirectory(path) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				if path == dir {
					return err
				}
				w.logger.Debug("failed to add watch for subdirectory", "path", path, "error", err)
			}
			return nil
		}

		if schedule && w.shouldHandle(root, path) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	root := w.rootFor(event.Name)
	if root == "" {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.unschedule(event.Name)
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if utils.IsTrickplayDirectory(event.Name) || utils.IsInsideTrickplayDirectory(root, event.Name) {
				return
			}
			if err := w.addRecursiveWatch(root, event.Name, true); err != nil {
				w.logger.Error("failed to add watch for new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && w.shouldHandle(root, event.Name) {
		w.schedule(event.Name)
	}
}

// shouldHandle reports whether path is a video file outside generated output
func (w *Watcher) shouldHandle(root, path string) bool {
	if !utils.IsVideoFile(path) {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return !utils.IsInsideTrickplayDirectory(root, path)
}

func (w *Watcher) rootFor(path string) string {
	for _, root := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// schedule (re)starts the settle timer for path
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() { w.settled(path) })
}

func (w *Watcher) unschedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) settled(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if w.ctx.Err() != nil || !utils.FileExists(path) {
		return
	}

	w.logger.Info("video file detected", "path", path)
	if w.eventBus != nil {
		w.eventBus.Publish(events.NewFileDetectedEvent(path))
	}

	if err := w.submit(w.ctx, path); err != nil {
		w.logger.Error("failed to queue trickplay job", "path", path, "error", err)
	}
}
