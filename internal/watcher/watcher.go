// Package watcher keeps the index in step with the corpus directories: files created or
// modified under a watched root are handed to the indexer after a short debounce.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/gakumon/internal/models"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 256
)

// FileIndexer is the indexing side the watcher feeds.
type FileIndexer interface {
	Allowed(path string) bool
	IndexFile(ctx context.Context, path string) (*models.AddResponse, error)
}

// Config controls how roots are watched.
type Config struct {
	Recursive bool
	// Debounce is the quiet period after the last event for a path; 0 uses 400ms.
	Debounce time.Duration
}

// Watcher watches directories and indexes changed files one at a time.
type Watcher struct {
	roots     []string
	indexer   FileIndexer
	recursive bool
	debounce  time.Duration
	logger    *zap.Logger // optional; when set, logs debug events

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	queue    chan string
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (file events, index outcomes, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher over roots that sends changed files to ix.
func NewWatcher(roots []string, ix FileIndexer, cfg Config, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		roots:     roots,
		indexer:   ix,
		recursive: cfg.Recursive,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*time.Timer),
		queue:     make(chan string, queueSize),
		done:      make(chan struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. The watcher runs until ctx is
// cancelled or Stop is called; ctx is also passed to every IndexFile call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fw.Close()
			return err
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			_ = fw.Close()
			return err
		}
		if err := w.addTree(fw, abs); err != nil {
			_ = fw.Close()
			return err
		}
		w.roots[i] = abs
	}
	w.watcher = fw
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	}
	w.wg.Add(2)
	go w.run(ctx, fw.Events, fw.Errors)
	go w.work(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

// work drains the queue so the engine sees one file at a time.
func (w *Watcher) work(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case path := <-w.queue:
			res, err := w.indexer.IndexFile(ctx, path)
			if w.logger == nil {
				continue
			}
			switch {
			case err != nil:
				w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
			case res.Skipped:
				w.logger.Debug("watcher skipped file", zap.String("path", path), zap.String("reason", res.Reason))
			default:
				w.logger.Info("watcher indexed file", zap.String("path", path),
					zap.Int("chunks", res.Document.ChunkCount), zap.Int("index_size", res.Size))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.indexer.Allowed(path) {
			w.debounceIndex(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelDebounce(path)
		// Chunks are append-only; a removed file stays retrievable until a rebuild.
		if w.logger != nil && w.indexer.Allowed(path) {
			w.logger.Info("watched file removed; its chunks remain indexed", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a recursive root and
// queues the files already inside it.
func (w *Watcher) handleNewDirectory(dir string) {
	if !w.recursive {
		return
	}
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}
	if err := w.addTree(fw, dir); err != nil && w.logger != nil {
		w.logger.Warn("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if w.indexer.Allowed(path) {
			w.debounceIndex(path)
		}
		return nil
	})
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	if !w.recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, root := range w.roots {
		if inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) debounceIndex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.queue <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Directories returns a copy of the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher, drops pending events, and waits for an in-flight IndexFile to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}
