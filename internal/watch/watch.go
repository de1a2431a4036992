// Package watch re-scans files as they change on disk.
//
// Filesystem events are collected per path and flushed as a single scan
// once the tree has been quiet for the debounce interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sieve/internal/ignore"
	"github.com/fyrsmithlabs/sieve/internal/logging"
	"github.com/fyrsmithlabs/sieve/internal/scan"
)

// DefaultDebounce is the quiet period before pending changes are scanned.
const DefaultDebounce = 300 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Event is the result of scanning one batch of changed files.
type Event struct {
	// Paths are the changed files, slash-separated and relative to the root.
	Paths  []string
	Report *scan.Report
	Err    error
	At     time.Time
}

// Watcher watches a directory tree, or a single file, and scans changed
// files.
type Watcher struct {
	root     string
	only     string
	orch     *scan.Orchestrator
	matcher  *ignore.Matcher
	fsw      *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero or less uses DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithIgnore sets the matcher deciding which directories are watched.
func WithIgnore(m *ignore.Matcher) Option {
	return func(w *Watcher) { w.matcher = m }
}

// New creates a Watcher for root. A file root watches that file alone. Call
// Start to begin watching.
func New(root string, orch *scan.Orchestrator, opts ...Option) (*Watcher, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	// A file root is watched through its directory.
	var only string
	if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
		abs, only = filepath.Dir(abs), filepath.Base(abs)
	}

	w := &Watcher{
		root:     abs,
		only:     only,
		orch:     orch,
		debounce: DefaultDebounce,
		logger:   logging.Nop(),
		events:   make(chan Event, 4),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.matcher == nil {
		m, err := ignore.New(abs)
		if err != nil {
			return nil, fmt.Errorf("loading ignore rules: %w", err)
		}
		w.matcher = m
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w.fsw = fsw
	return w, nil
}

// Start adds the directory tree and begins processing events in a
// background goroutine. Scan results are delivered on Events until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s: not a directory", w.root)
	}
	if w.only != "" {
		if err := w.fsw.Add(w.root); err != nil {
			return fmt.Errorf("watching %s: %w", w.root, err)
		}
	} else if _, err := w.addTree(w.root); err != nil {
		return err
	}

	w.logger.Info(ctx, "watching",
		zap.String("root", w.root),
		zap.String("file", w.only),
		zap.Duration("debounce", w.debounce))
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.fsw.Close()
	})
}

// Events returns the channel of scan results. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// addTree watches dir and every non-ignored directory below it. It returns
// the regular files already present, so files created together with a new
// directory are not missed.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		rel := w.rel(path)
		if d.IsDir() {
			if rel != "." && w.matcher.SkipDir(rel) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", rel, err)
			}
			return nil
		}
		if d.Type().IsRegular() && !w.matcher.Ignored(rel) {
			files = append(files, rel)
		}
		return nil
	})
	return files, err
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.handle(ctx, ev, pending) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watch error", zap.Error(err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			if !w.emit(ctx, w.scan(ctx, paths)) {
				return
			}
		}
	}
}

// handle records a filesystem event and reports whether anything became
// pending.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event, pending map[string]bool) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	info, err := os.Lstat(ev.Name)
	if err != nil {
		return false
	}
	rel := w.rel(ev.Name)
	if w.only != "" {
		if rel != w.only || !info.Mode().IsRegular() {
			return false
		}
		pending[rel] = true
		return true
	}

	if info.IsDir() {
		if !ev.Has(fsnotify.Create) || w.matcher.SkipDir(rel) {
			return false
		}
		files, err := w.addTree(ev.Name)
		if err != nil {
			w.logger.Warn(ctx, "watching new directory", zap.String("path", rel), zap.Error(err))
		}
		for _, f := range files {
			pending[f] = true
		}
		return len(files) > 0
	}

	if !info.Mode().IsRegular() || w.matcher.Ignored(rel) {
		return false
	}
	w.logger.Trace(ctx, "change", zap.String("path", rel), zap.String("op", ev.Op.String()))
	pending[rel] = true
	return true
}

func (w *Watcher) scan(ctx context.Context, paths []string) Event {
	r, err := w.orch.ScanFiles(ctx, w.root, paths)
	if err != nil {
		w.logger.Warn(ctx, "rescan failed", zap.Int("files", len(paths)), zap.Error(err))
	} else {
		w.logger.Debug(ctx, "rescanned", zap.Int("files", len(paths)), zap.Int("findings", len(r.Findings)))
	}
	return Event{Paths: paths, Report: r, Err: err, At: time.Now()}
}

// emit delivers ev and reports false if the watcher stopped first.
func (w *Watcher) emit(ctx context.Context, ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.stop:
		return false
	case <-ctx.Done():
		return false
	}
}
