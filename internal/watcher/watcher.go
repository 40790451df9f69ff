package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

const DefaultDebounce = 500 * time.Millisecond

// DefaultPatterns selects the files the Watcher records.
var DefaultPatterns = []string{"*.json"}

// Recorder stores a measurement. *history.Manager satisfies it.
type Recorder interface {
	SaveSnapshot(ctx context.Context, bs stats.BundleStats) (*history.SaveResult, error)
}

// Options configures a Watcher. Zero values select the defaults.
type Options struct {
	// Patterns are matched against file base names.
	Patterns []string
	Debounce time.Duration
	Logger   *slog.Logger
	// OnRecord, if set, is called after each file is handled.
	OnRecord func(Result)
}

// Watcher records stats files dropped into a directory.
type Watcher struct {
	recorder Recorder
	dir      string
	patterns []glob.Glob
	debounce time.Duration
	logger   *slog.Logger
	onRecord func(Result)

	mu sync.Mutex
	// rejected maps a drop path to the time its file was renamed aside.
	rejected map[string]time.Time
}

// New creates a Watcher for dir. The directory must exist.
func New(rec Recorder, dir string, opts Options) (*Watcher, error) {
	if rec == nil {
		return nil, fmt.Errorf("recorder cannot be nil")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open drop directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &Watcher{
		recorder: rec,
		dir:      dir,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		onRecord: opts.OnRecord,
		rejected: make(map[string]time.Time),
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid watch pattern %q: %w", p, err)
		}
		w.patterns = append(w.patterns, g)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run records files already in the directory, then watches for new ones
// until ctx is cancelled. Pending files are flushed before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for bundle stats", "dir", w.dir, "debounce", w.debounce)

	if err := w.Sweep(ctx); err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		sort.Strings(paths)
		for _, p := range paths {
			w.process(ctx, p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			ctx = context.WithoutCancel(ctx)
			flush()
			w.logger.Info("watcher stopped", "dir", w.dir)
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			name := event.Name
			// A producer still writing through its open handle follows the
			// file to its rejected name.
			if orig, ok := strings.CutSuffix(name, RejectedSuffix); ok && event.Has(fsnotify.Write) {
				name = orig
			} else if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(name) {
				continue
			}
			pending[name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			flush()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Sweep records every matching file currently in the directory, including
// files this Watcher rejected that have been written to since.
func (w *Watcher) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read drop directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if orig, ok := strings.CutSuffix(name, RejectedSuffix); ok {
			if _, err := os.Stat(filepath.Join(w.dir, orig)); err == nil {
				continue
			}
			name = orig
		}
		if !w.matches(name) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.patterns {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) process(ctx context.Context, path string) {
	res := w.ProcessFile(ctx, path)
	if res.Status == StatusSkipped && w.retryRejected(path) {
		res = w.ProcessFile(ctx, path)
	}
	if res.Status == StatusSkipped {
		return
	}
	if w.onRecord != nil {
		w.onRecord(res)
	}
}

// retryRejected moves the rejected copy of path back into place if it was
// modified after this Watcher rejected it, and reports whether it did.
func (w *Watcher) retryRejected(path string) bool {
	w.mu.Lock()
	at, ok := w.rejected[path]
	w.mu.Unlock()
	if !ok {
		return false
	}

	info, err := os.Stat(path + RejectedSuffix)
	if err != nil || !info.ModTime().After(at) {
		return false
	}
	if _, err := os.Stat(path); err == nil {
		return false
	}
	if err := os.Rename(path+RejectedSuffix, path); err != nil {
		w.logger.Error("failed to restore rejected stats file", "path", path, "error", err)
		return false
	}

	w.mu.Lock()
	delete(w.rejected, path)
	w.mu.Unlock()
	w.logger.Info("retrying rejected stats file written after rejection", "path", path)
	return true
}
