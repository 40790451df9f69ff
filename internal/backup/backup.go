// Package backup keeps copies of the history store taken before it is
// replaced, so an import can be undone.
//
// Each backup is an export envelope written to its own file named after
// the time it was taken (2006-01-02-150405.json), which means a backup can
// also be fed straight to `bundlewatch import`.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/history"
)

const (
	// DirName is the backup directory inside the history directory.
	DirName = "backups"

	// DefaultMaxAge is how long Cleanup keeps backups.
	DefaultMaxAge = 90 * 24 * time.Hour

	nameLayout = "2006-01-02-150405"
)

// Backup describes one backup file.
type Backup struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Entries   int
	Alerts    int
}

// Manager manages backup creation, listing and cleanup.
type Manager struct {
	dir string
	now func() time.Time
}

// New creates a Manager storing backups in dir.
func New(dir string) *Manager {
	return &Manager{dir: dir, now: time.Now}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes env to a new backup file.
func (m *Manager) Create(env history.Envelope) (Backup, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return Backup{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return Backup{}, fmt.Errorf("failed to marshal backup: %w", err)
	}

	created := m.now()
	base := created.Format(nameLayout)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(m.dir, name+".json")

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return Backup{}, fmt.Errorf("failed to create backup file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return Backup{}, fmt.Errorf("failed to write backup file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return Backup{}, fmt.Errorf("failed to write backup file: %w", err)
		}
		return Backup{
			Name:      name,
			Path:      path,
			CreatedAt: created,
			Entries:   len(env.History),
			Alerts:    len(env.Alerts),
		}, nil
	}
}

// List returns every backup, newest first. A missing directory means no
// backups.
func (m *Manager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Backup{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := []Backup{}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".json")
		if e.IsDir() || !ok {
			continue
		}
		created, ok := parseName(name)
		if !ok {
			continue
		}
		b := Backup{Name: name, Path: filepath.Join(m.dir, e.Name()), CreatedAt: created}
		if counts, err := readCounts(b.Path); err == nil {
			b.Entries, b.Alerts = counts.entries, counts.alerts
		}
		backups = append(backups, b)
	}

	// names sort chronologically; same-second suffixes sort after the base
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].CreatedAt.After(backups[j].CreatedAt)
		}
		return len(backups[i].Name) > len(backups[j].Name) ||
			(len(backups[i].Name) == len(backups[j].Name) && backups[i].Name > backups[j].Name)
	})
	return backups, nil
}

// Find returns the backup with the given name, or the newest backup when
// name is "latest".
func (m *Manager) Find(name string) (Backup, error) {
	backups, err := m.List()
	if err != nil {
		return Backup{}, err
	}
	if len(backups) == 0 {
		return Backup{}, fmt.Errorf("no backups in %s", m.dir)
	}
	if strings.EqualFold(name, "latest") {
		return backups[0], nil
	}
	name = strings.TrimSuffix(name, ".json")
	for _, b := range backups {
		if b.Name == name {
			return b, nil
		}
	}
	return Backup{}, fmt.Errorf("backup %s not found", name)
}

// Read returns the envelope bytes stored in b.
func (m *Manager) Read(b Backup) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup %s: %w", b.Name, err)
	}
	return data, nil
}

// Remove deletes b.
func (m *Manager) Remove(b Backup) error {
	if err := os.Remove(b.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete backup %s: %w", b.Name, err)
	}
	return nil
}

// Cleanup removes backups older than maxAge and returns how many it removed.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	backups, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.Remove(b); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func parseName(name string) (time.Time, bool) {
	if len(name) < len(nameLayout) {
		return time.Time{}, false
	}
	created, err := time.ParseInLocation(nameLayout, name[:len(nameLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	if rest := name[len(nameLayout):]; rest != "" && !strings.HasPrefix(rest, "-") {
		return time.Time{}, false
	}
	return created, true
}

type counts struct {
	entries, alerts int
}

func readCounts(path string) (counts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return counts{}, err
	}
	var env struct {
		History []json.RawMessage `json:"history"`
		Alerts  []json.RawMessage `json:"alerts"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return counts{}, err
	}
	return counts{entries: len(env.History), alerts: len(env.Alerts)}, nil
}
