package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

const (
	RecordedSuffix = ".recorded"
	RejectedSuffix = ".rejected"
)

// Status is the outcome of handling one dropped file.
type Status string

const (
	StatusRecorded Status = "recorded"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Result describes one handled file.
type Result struct {
	Path   string
	Status Status
	Save   *history.SaveResult
	Err    error
}

// ProcessFile records the stats in path.
//
// A recorded file is renamed with RecordedSuffix. A file that cannot be
// decoded or fails validation is renamed with RejectedSuffix; if it is
// written to again while the Watcher runs, it is moved back and retried.
// When storing
// fails the file is left in place so the next sweep retries it. A file that
// has disappeared is skipped.
func (w *Watcher) ProcessFile(ctx context.Context, path string) Result {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Result{Path: path, Status: StatusSkipped}
	}
	if err != nil {
		w.logger.Error("failed to read stats file", "path", path, "error", err)
		return Result{Path: path, Status: StatusFailed, Err: err}
	}

	bs, err := stats.Parse(data)
	if err != nil {
		return w.reject(path, err)
	}

	saved, err := w.recorder.SaveSnapshot(ctx, bs)
	if err != nil {
		w.logger.Error("failed to record stats file", "path", path, "error", err)
		return Result{Path: path, Status: StatusFailed, Err: err}
	}

	w.mu.Lock()
	delete(w.rejected, path)
	w.mu.Unlock()

	if err := os.Rename(path, path+RecordedSuffix); err != nil {
		w.logger.Warn("recorded stats file could not be renamed", "path", path, "error", err)
	}
	w.logger.Info("recorded stats file",
		"path", path,
		"id", saved.Snapshot.ID,
		"total_size", saved.Snapshot.TotalSize,
		"alerts", len(saved.Alerts))
	return Result{Path: path, Status: StatusRecorded, Save: saved}
}

func (w *Watcher) reject(path string, reason error) Result {
	w.logger.Warn("rejected stats file", "path", path, "error", reason)
	at := time.Now()
	if err := os.Rename(path, path+RejectedSuffix); err != nil {
		w.logger.Error("failed to rename rejected stats file", "path", path, "error", err)
		return Result{Path: path, Status: StatusRejected, Err: reason}
	}
	w.mu.Lock()
	w.rejected[path] = at
	w.mu.Unlock()
	return Result{Path: path, Status: StatusRejected, Err: reason}
}
