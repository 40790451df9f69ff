// Package history is bundlewatch's history and alerting engine: a
// capacity-bounded log of bundle snapshots, an alert log fed by the
// alerting package, a threshold registry, a query layer and an
// import/export gateway, all persisted through a store.Backend.
//
// A Manager serializes mutations (SaveSnapshot, SetThresholds,
// ImportHistory) with a write lock held for the whole read-modify-write;
// read paths share a read lock and always recompute from the stored
// documents.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/report"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

const (
	DefaultHistoryDir = ".bundle-size-history"
	DefaultMaxEntries = 100
)

// Visualizer renders the stored history and returns where it put the result.
// now is the Manager's clock reading at the time of the call.
type Visualizer interface {
	Render(ctx context.Context, dir string, history []stats.Snapshot, now time.Time) (string, error)
}

// Observer is told about every stored snapshot.
type Observer interface {
	SnapshotSaved(snap stats.Snapshot, alerts []alerting.Alert, entries int)
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	HistoryDir string
	MaxEntries int
	// MaxAlerts caps the alert log, dropping the oldest alerts first.
	// Zero keeps every alert.
	MaxAlerts  int
	Logger     *slog.Logger
	Clock      func() time.Time
	Visualizer Visualizer
	Observer   Observer
}

// Manager owns the bundle-size history stored in a backend.
type Manager struct {
	backend    store.Backend
	dir        string
	maxEntries int
	maxAlerts  int
	logger     *slog.Logger
	now        func() time.Time
	visualizer Visualizer
	observer   Observer

	mu sync.RWMutex
}

// New creates a Manager over backend.
func New(backend store.Backend, opts Options) *Manager {
	m := &Manager{
		backend:    backend,
		dir:        opts.HistoryDir,
		maxEntries: opts.MaxEntries,
		maxAlerts:  opts.MaxAlerts,
		logger:     opts.Logger,
		now:        opts.Clock,
		visualizer: opts.Visualizer,
		observer:   opts.Observer,
	}
	if m.dir == "" {
		m.dir = DefaultHistoryDir
	}
	if m.maxEntries <= 0 {
		m.maxEntries = DefaultMaxEntries
	}
	if m.maxAlerts < 0 {
		m.maxAlerts = 0
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.visualizer == nil {
		m.visualizer = report.HTML{}
	}
	return m
}

// Initialize prepares the backing storage. It is idempotent.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.backend.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	m.logger.Debug("history initialized", "location", m.backend.Location())
	return nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// Location describes where the history is stored.
func (m *Manager) Location() string {
	return m.backend.Location()
}

// MaxEntries returns the retention cap.
func (m *Manager) MaxEntries() int {
	return m.maxEntries
}

func (m *Manager) loadHistory(ctx context.Context) ([]stats.Snapshot, error) {
	var history []stats.Snapshot
	if err := m.load(ctx, store.DocHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (m *Manager) loadAlerts(ctx context.Context) ([]alerting.Alert, error) {
	var alerts []alerting.Alert
	if err := m.load(ctx, store.DocAlerts, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (m *Manager) loadThresholds(ctx context.Context) (alerting.Thresholds, error) {
	th := alerting.DefaultThresholds()
	var stored *alerting.Thresholds
	if err := m.load(ctx, store.DocThresholds, &stored); err != nil {
		return th, err
	}
	if stored != nil {
		th = *stored
	}
	return th, nil
}

// load decodes doc into v. A document that does not exist leaves v untouched.
func (m *Manager) load(ctx context.Context, doc store.Doc, v any) error {
	data, err := m.backend.Load(ctx, doc)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return store.Decode(doc, data, v)
}
