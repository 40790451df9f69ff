package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend keeps one JSON file per document in a directory
// (history.json, alerts.json, thresholds.json).
type FileBackend struct {
	dir string
}

// NewFile returns a backend rooted at dir.
func NewFile(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

// Init creates the directory. It is safe to call more than once.
func (b *FileBackend) Init(ctx context.Context) error {
	if err := os.MkdirAll(b.dir, 0755); err != nil {
		return &IOError{Op: "failed to initialize history directory", Err: err}
	}
	return nil
}

// Load reads a document file. A missing file is ErrNotFound.
func (b *FileBackend) Load(ctx context.Context, doc Doc) ([]byte, error) {
	data, err := os.ReadFile(b.path(doc))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &IOError{Op: "failed to read", Doc: doc, Err: err}
	}
	return data, nil
}

// Save replaces each document file in turn. Every file is written to a
// temp file and renamed, so a crash leaves either the old or the new body,
// but two documents of one call may end up from different calls.
func (b *FileBackend) Save(ctx context.Context, records ...Record) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeFileAtomic(b.path(r.Doc), r.Data); err != nil {
			return &IOError{Op: "failed to write", Doc: r.Doc, Err: err}
		}
	}
	return nil
}

// Location returns the directory.
func (b *FileBackend) Location() string { return b.dir }

// Close is a no-op.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) path(doc Doc) string {
	return filepath.Join(b.dir, string(doc)+".json")
}

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
