package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock returns epoch, epoch+1m, epoch+2m, ...
func stepClock() func() time.Time {
	var mu sync.Mutex
	next := epoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Minute)
		return now
	}
}

func newTestManager(t *testing.T, opts Options) (*Manager, *store.MemoryBackend) {
	t.Helper()
	backend := store.NewMemory()
	if opts.Clock == nil {
		opts.Clock = stepClock()
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(backend, opts)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return m, backend
}

func bundle(total int64, chunks ...stats.Chunk) stats.BundleStats {
	return stats.BundleStats{TotalSize: total, GzipSize: total / 3, BrotliSize: total / 4, Chunks: chunks}
}

func mustSave(t *testing.T, m *Manager, bs stats.BundleStats) *SaveResult {
	t.Helper()
	res, err := m.SaveSnapshot(context.Background(), bs)
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	return res
}

func mustHistory(t *testing.T, m *Manager) []stats.Snapshot {
	t.Helper()
	history, err := m.History(context.Background())
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	return history
}

func mustAlerts(t *testing.T, m *Manager) []alerting.Alert {
	t.Helper()
	alerts, err := m.GetAlerts(context.Background())
	if err != nil {
		t.Fatalf("GetAlerts() error = %v", err)
	}
	return alerts
}

func mustThresholds(t *testing.T, m *Manager) alerting.Thresholds {
	t.Helper()
	th, err := m.GetThresholds(context.Background())
	if err != nil {
		t.Fatalf("GetThresholds() error = %v", err)
	}
	return th
}

func TestNew_Defaults(t *testing.T) {
	m := New(store.NewMemory(), Options{})
	if m.MaxEntries() != DefaultMaxEntries {
		t.Errorf("MaxEntries() = %d, want %d", m.MaxEntries(), DefaultMaxEntries)
	}
	if m.dir != DefaultHistoryDir {
		t.Errorf("dir = %q, want %q", m.dir, DefaultHistoryDir)
	}
	if m.Location() != "memory" {
		t.Errorf("Location() = %q, want memory", m.Location())
	}
}

func TestSaveSnapshot_AssignsIDAndTimestamp(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	res := mustSave(t, m, bundle(1000))
	if res.Snapshot.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if !res.Snapshot.Timestamp.Equal(epoch) {
		t.Errorf("Timestamp = %v, want %v", res.Snapshot.Timestamp, epoch)
	}
	if res.Entries != 1 {
		t.Errorf("Entries = %d, want 1", res.Entries)
	}

	latest, err := m.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest == nil || !reflect.DeepEqual(res.Snapshot, *latest) {
		t.Errorf("Latest() = %+v, want %+v", latest, res.Snapshot)
	}
}

func TestSaveSnapshot_RejectsInvalidStats(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	if _, err := m.SaveSnapshot(context.Background(), stats.BundleStats{TotalSize: -1}); err == nil {
		t.Fatal("expected error for negative total size")
	}
	if history := mustHistory(t, m); len(history) != 0 {
		t.Errorf("expected nothing stored, got %d entries", len(history))
	}
}

func TestSaveSnapshot_Retention(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxEntries: 3})

	var last *SaveResult
	for i := 1; i <= 5; i++ {
		last = mustSave(t, m, bundle(int64(i*1000)))
	}
	if last.Entries != 3 || last.Evicted != 1 {
		t.Errorf("last save: Entries = %d, Evicted = %d, want 3 and 1", last.Entries, last.Evicted)
	}

	history := mustHistory(t, m)
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, snap := range history {
		if want := int64((i + 3) * 1000); snap.TotalSize != want {
			t.Errorf("entry %d: TotalSize = %d, want %d", i, snap.TotalSize, want)
		}
	}
	if !history[0].Timestamp.Before(history[2].Timestamp) {
		t.Error("expected history in chronological order")
	}
}

func TestSaveSnapshot_FirstEntryProducesNoAlerts(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	if _, err := m.SetThresholds(context.Background(), alerting.ThresholdsPatch{MaxTotalSize: ptr[int64](1)}); err != nil {
		t.Fatal(err)
	}

	res := mustSave(t, m, bundle(10_000_000, stats.Chunk{Name: "main", Size: 9_000_000}))
	if len(res.Alerts) != 0 {
		t.Errorf("expected no alerts for the first entry, got %+v", res.Alerts)
	}

	alerts := mustAlerts(t, m)
	if alerts == nil || len(alerts) != 0 {
		t.Errorf("expected an empty, non-nil alert log, got %#v", alerts)
	}
}

func TestSaveSnapshot_TotalIncreaseAlert(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	mustSave(t, m, bundle(900000))
	res := mustSave(t, m, bundle(1200000))

	if len(res.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", res.Alerts)
	}
	a := res.Alerts[0]
	if a.Type != alerting.TypeTotalSizeIncrease || a.Severity != alerting.SeverityWarning {
		t.Errorf("unexpected alert %s/%s", a.Type, a.Severity)
	}
	if !a.Details.Timestamp.Equal(res.Snapshot.Timestamp) {
		t.Errorf("alert timestamp %v, want snapshot timestamp %v", a.Details.Timestamp, res.Snapshot.Timestamp)
	}

	if alerts := mustAlerts(t, m); !reflect.DeepEqual(alerts, res.Alerts) {
		t.Errorf("alert log = %+v, want %+v", alerts, res.Alerts)
	}
}

func TestSaveSnapshot_AbsoluteAlertIndependentOfPercentage(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	if _, err := m.SetThresholds(context.Background(), alerting.ThresholdsPatch{MaxTotalSize: ptr[int64](1000000)}); err != nil {
		t.Fatal(err)
	}

	mustSave(t, m, bundle(1450000))
	res := mustSave(t, m, bundle(1500000))

	if len(res.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", res.Alerts)
	}
	if res.Alerts[0].Type != alerting.TypeMaxSizeExceeded || res.Alerts[0].Severity != alerting.SeverityError {
		t.Errorf("unexpected alert %s/%s", res.Alerts[0].Type, res.Alerts[0].Severity)
	}
}

func TestSaveSnapshot_ChunkAlertTargeting(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	mustSave(t, m, bundle(300000,
		stats.Chunk{Name: "main", Size: 100000},
		stats.Chunk{Name: "vendor", Size: 200000}))
	res := mustSave(t, m, bundle(320000,
		stats.Chunk{Name: "main", Size: 120000},
		stats.Chunk{Name: "vendor", Size: 200000}))

	if len(res.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", res.Alerts)
	}
	a := res.Alerts[0]
	if a.Type != alerting.TypeChunkSizeIncrease || a.Details.ChunkName != "main" {
		t.Errorf("expected chunk alert for main, got %s for %q", a.Type, a.Details.ChunkName)
	}
}

func TestSaveSnapshot_AlertLogAccumulatesAndCaps(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxAlerts: 2})

	size := int64(1000)
	mustSave(t, m, bundle(size))
	for i := 0; i < 3; i++ {
		size *= 2
		if res := mustSave(t, m, bundle(size)); len(res.Alerts) != 1 {
			t.Fatalf("save %d: expected 1 alert, got %d", i, len(res.Alerts))
		}
	}

	alerts := mustAlerts(t, m)
	if len(alerts) != 2 {
		t.Fatalf("expected the log capped at 2, got %d", len(alerts))
	}
	if alerts[0].Details.CurrentValue != 4000 || alerts[1].Details.CurrentValue != 8000 {
		t.Errorf("expected the 2 newest alerts, got %d and %d",
			alerts[0].Details.CurrentValue, alerts[1].Details.CurrentValue)
	}
}

type recordingObserver struct {
	snaps   []stats.Snapshot
	entries []int
}

func (o *recordingObserver) SnapshotSaved(snap stats.Snapshot, alerts []alerting.Alert, entries int) {
	o.snaps = append(o.snaps, snap)
	o.entries = append(o.entries, entries)
}

func TestSaveSnapshot_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	m, _ := newTestManager(t, Options{Observer: obs})

	mustSave(t, m, bundle(1000))
	mustSave(t, m, bundle(1100))

	if len(obs.snaps) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(obs.snaps))
	}
	if !reflect.DeepEqual(obs.entries, []int{1, 2}) {
		t.Errorf("entries = %v, want [1 2]", obs.entries)
	}
}

func TestSaveSnapshot_ConcurrentSavesAreSerialized(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.SaveSnapshot(context.Background(), bundle(int64(1000+i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent save: %v", err)
		}
	}

	if history := mustHistory(t, m); len(history) != n {
		t.Errorf("expected %d entries, got %d", n, len(history))
	}
}

func TestThresholds_DefaultsAndMerge(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	if th := mustThresholds(t, m); th != alerting.DefaultThresholds() {
		t.Errorf("GetThresholds() = %+v, want defaults", th)
	}

	updated, err := m.SetThresholds(context.Background(), alerting.ThresholdsPatch{TotalSizeIncreaseThreshold: ptr(25.0)})
	if err != nil {
		t.Fatalf("SetThresholds() error = %v", err)
	}
	if updated.TotalSizeIncreaseThreshold != 25 {
		t.Errorf("TotalSizeIncreaseThreshold = %v, want 25", updated.TotalSizeIncreaseThreshold)
	}
	if updated.ChunkSizeIncreaseThreshold != alerting.DefaultChunkSizeIncreaseThreshold {
		t.Errorf("ChunkSizeIncreaseThreshold = %v, want default", updated.ChunkSizeIncreaseThreshold)
	}

	if th := mustThresholds(t, m); th != updated {
		t.Errorf("GetThresholds() = %+v, want %+v", th, updated)
	}
}

func TestSetThresholds_RejectsNegative(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	if _, err := m.SetThresholds(context.Background(), alerting.ThresholdsPatch{MaxChunkSize: ptr[int64](-1)}); err == nil {
		t.Fatal("expected error for negative max chunk size")
	}
	if th := mustThresholds(t, m); th != alerting.DefaultThresholds() {
		t.Errorf("thresholds changed after rejected update: %+v", th)
	}
}

func TestCorruptStoreIsNotTreatedAsEmpty(t *testing.T) {
	m, backend := newTestManager(t, Options{})
	ctx := context.Background()
	if err := backend.Save(ctx, store.Record{Doc: store.DocHistory, Data: []byte("{not json")}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.History(ctx); !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("History() error = %v, want ErrCorrupt", err)
	}
	if _, err := m.SaveSnapshot(ctx, bundle(1000)); !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("SaveSnapshot() error = %v, want ErrCorrupt", err)
	}
	if _, err := m.QueryHistory(ctx, Query{}); !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("QueryHistory() error = %v, want ErrCorrupt", err)
	}
	if _, err := m.ExportHistory(ctx); !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("ExportHistory() error = %v, want ErrCorrupt", err)
	}

	data, err := backend.Load(ctx, store.DocHistory)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{not json" {
		t.Errorf("corrupt document was overwritten: %q", data)
	}
}

func TestFileBackedManager_PersistsAcrossInstances(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DefaultHistoryDir)
	ctx := context.Background()

	m1 := New(store.NewFile(dir), Options{HistoryDir: dir, Clock: stepClock()})
	if err := m1.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	mustSave(t, m1, bundle(1000))
	mustSave(t, m1, bundle(2000))

	for _, name := range []string{"history.json", "alerts.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}

	m2 := New(store.NewFile(dir), Options{HistoryDir: dir})
	history := mustHistory(t, m2)
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[1].TotalSize != 2000 {
		t.Errorf("latest TotalSize = %d, want 2000", history[1].TotalSize)
	}
	if alerts := mustAlerts(t, m2); len(alerts) != 1 {
		t.Errorf("expected 1 alert, got %d", len(alerts))
	}
}

type fakeVisualizer struct {
	dir     string
	entries int
	now     time.Time
	err     error
}

func (v *fakeVisualizer) Render(ctx context.Context, dir string, history []stats.Snapshot, now time.Time) (string, error) {
	v.dir = dir
	v.entries = len(history)
	v.now = now
	if v.err != nil {
		return "", v.err
	}
	return filepath.Join(dir, "report.html"), nil
}

func TestGenerateReport(t *testing.T) {
	viz := &fakeVisualizer{}
	m, _ := newTestManager(t, Options{HistoryDir: "hist", Visualizer: viz})
	mustSave(t, m, bundle(1000))

	path, err := m.GenerateReport(context.Background())
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if want := filepath.Join("hist", "report.html"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	if viz.dir != "hist" || viz.entries != 1 {
		t.Errorf("visualizer got dir %q and %d entries", viz.dir, viz.entries)
	}
	// the save consumed epoch, so the report is stamped with the next tick
	if want := epoch.Add(time.Minute); !viz.now.Equal(want) {
		t.Errorf("report stamped %v, want manager clock %v", viz.now, want)
	}
}

func TestGenerateReport_VisualizerError(t *testing.T) {
	viz := &fakeVisualizer{err: fmt.Errorf("disk full")}
	m, _ := newTestManager(t, Options{Visualizer: viz})

	_, err := m.GenerateReport(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("GenerateReport() error = %v, want disk full", err)
	}
}

func ptr[T any](v T) *T { return &v }
