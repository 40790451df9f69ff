package history

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

func mustExport(t *testing.T, m *Manager) Envelope {
	t.Helper()
	env, err := m.ExportHistory(context.Background())
	if err != nil {
		t.Fatalf("ExportHistory() error = %v", err)
	}
	return env
}

func TestExportHistory_Empty(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	env := mustExport(t, m)
	if env.Version != ExportVersion {
		t.Errorf("Version = %q, want %q", env.Version, ExportVersion)
	}
	if env.Thresholds != alerting.DefaultThresholds() {
		t.Errorf("Thresholds = %+v, want defaults", env.Thresholds)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"history":[]`, `"alerts":[]`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src, _ := newTestManager(t, Options{})
	if _, err := src.SetThresholds(ctx, alerting.ThresholdsPatch{ChunkSizeIncreaseThreshold: ptr(5.0)}); err != nil {
		t.Fatal(err)
	}
	mustSave(t, src, bundle(1000, stats.Chunk{Name: "main", Size: 1000, Modules: []stats.Module{{Name: "a.js", Size: 1000, Path: "src/a.js"}}}))
	mustSave(t, src, bundle(2000, stats.Chunk{Name: "main", Size: 2000}))

	before := mustQuery(t, src, Query{Limit: 100})
	env := mustExport(t, src)
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	// into the same store
	res := src.ImportHistory(ctx, data)
	if !res.Success {
		t.Fatalf("import into the same store failed: %s", res.Message)
	}
	if res.EntriesImported != 2 {
		t.Errorf("EntriesImported = %d, want 2", res.EntriesImported)
	}
	if after := mustQuery(t, src, Query{Limit: 100}); !reflect.DeepEqual(before, after) {
		t.Errorf("history changed after re-import:\nbefore %+v\nafter  %+v", before, after)
	}

	// into a fresh store
	dst, _ := newTestManager(t, Options{})
	res = dst.ImportHistory(ctx, data)
	if !res.Success {
		t.Fatalf("import into a fresh store failed: %s", res.Message)
	}
	if len(res.Alerts) != len(env.Alerts) {
		t.Errorf("result echoes %d alerts, want %d", len(res.Alerts), len(env.Alerts))
	}
	if after := mustQuery(t, dst, Query{Limit: 100}); !reflect.DeepEqual(before, after) {
		t.Errorf("imported history differs:\nbefore %+v\nafter  %+v", before, after)
	}
	if th := mustThresholds(t, dst); th != env.Thresholds {
		t.Errorf("thresholds = %+v, want %+v", th, env.Thresholds)
	}
	if alerts := mustAlerts(t, dst); !reflect.DeepEqual(alerts, env.Alerts) {
		t.Errorf("alerts = %+v, want %+v", alerts, env.Alerts)
	}
}

func TestImportHistory_ReplacesWholesale(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 100, 200, 300)

	env := Envelope{
		Version:    ExportVersion,
		ExportDate: epoch,
		History: []stats.Snapshot{
			{ID: "only", Timestamp: epoch.Add(-time.Hour), BundleStats: bundle(42)},
		},
		Alerts:     []alerting.Alert{},
		Thresholds: alerting.DefaultThresholds(),
	}
	res := m.Import(context.Background(), env)
	if !res.Success {
		t.Fatalf("Import() failed: %s", res.Message)
	}
	if res.EntriesImported != 1 {
		t.Errorf("EntriesImported = %d, want 1", res.EntriesImported)
	}

	history := mustHistory(t, m)
	if len(history) != 1 || history[0].ID != "only" {
		t.Errorf("expected only the imported snapshot, got %+v", history)
	}
	if alerts := mustAlerts(t, m); len(alerts) != 0 {
		t.Errorf("expected the alert log to be replaced, got %d alerts", len(alerts))
	}
}

func TestImportHistory_DoesNotTruncateUntilNextSave(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxEntries: 2})

	env := Envelope{Version: ExportVersion, Alerts: []alerting.Alert{}, Thresholds: alerting.DefaultThresholds()}
	for i := 0; i < 4; i++ {
		env.History = append(env.History, stats.Snapshot{Timestamp: epoch.Add(-time.Duration(4-i) * time.Hour), BundleStats: bundle(int64(i + 1))})
	}
	res := m.Import(context.Background(), env)
	if !res.Success {
		t.Fatalf("Import() failed: %s", res.Message)
	}
	if res.EntriesImported != 4 {
		t.Errorf("EntriesImported = %d, want 4", res.EntriesImported)
	}

	saved := mustSave(t, m, bundle(5))
	if saved.Entries != 2 || saved.Evicted != 3 {
		t.Errorf("next save: Entries = %d, Evicted = %d, want 2 and 3", saved.Entries, saved.Evicted)
	}
}

func TestImportHistory_Invalid(t *testing.T) {
	validThresholds := `{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":15,"maxTotalSize":5242880,"maxChunkSize":2097152}`
	withThresholds := func(th string) string {
		return `{"version":"1.0.0","history":[],"alerts":[],"thresholds":` + th + `}`
	}
	withHistory := func(history string) string {
		return `{"version":"1.0.0","history":` + history + `,"alerts":[],"thresholds":` + validThresholds + `}`
	}

	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty object", `{}`, "version"},
		{"not json", `not json`, "JSON object"},
		{"array", `[]`, "JSON object"},
		{"null", `null`, "JSON object"},
		{"version not a string", `{"version":1,"history":[],"alerts":[],"thresholds":` + validThresholds + `}`, "version"},
		{"history not an array", `{"version":"1.0.0","history":{},"alerts":[],"thresholds":` + validThresholds + `}`, "history"},
		{"alerts missing", `{"version":"1.0.0","history":[],"thresholds":` + validThresholds + `}`, "alerts"},
		{"thresholds missing field", withThresholds(`{"totalSizeIncreaseThreshold":10}`), "thresholds"},
		{"thresholds not numeric", withThresholds(`{"totalSizeIncreaseThreshold":"10","chunkSizeIncreaseThreshold":15,"maxTotalSize":1,"maxChunkSize":1}`), "thresholds"},
		{"max total size overflows", withThresholds(`{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":15,"maxTotalSize":1e19,"maxChunkSize":1}`), "maxTotalSize"},
		{"max total size at 2^63", withThresholds(`{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":15,"maxTotalSize":9223372036854775808,"maxChunkSize":1}`), "maxTotalSize"},
		{"max chunk size fractional", withThresholds(`{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":15,"maxTotalSize":1,"maxChunkSize":1.5}`), "maxChunkSize"},
		{"negative max total size", withThresholds(`{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":15,"maxTotalSize":-1,"maxChunkSize":1}`), "maxTotalSize"},
		{"negative total percentage", withThresholds(`{"totalSizeIncreaseThreshold":-5,"chunkSizeIncreaseThreshold":15,"maxTotalSize":1,"maxChunkSize":1}`), "totalSizeIncreaseThreshold"},
		{"negative chunk percentage", withThresholds(`{"totalSizeIncreaseThreshold":10,"chunkSizeIncreaseThreshold":-1,"maxTotalSize":1,"maxChunkSize":1}`), "chunkSizeIncreaseThreshold"},
		{"bad snapshot", withHistory(`[{"timestamp":"yesterday"}]`), "history"},
		{"negative snapshot size", withHistory(`[{"timestamp":"2024-01-01T00:00:00Z","totalSize":-10,"gzipSize":0,"brotliSize":0,"chunks":[]}]`), "history[0]"},
		{"duplicate chunk names", withHistory(`[
			{"timestamp":"2024-01-01T00:00:00Z","totalSize":10,"gzipSize":0,"brotliSize":0,"chunks":[]},
			{"timestamp":"2024-01-02T00:00:00Z","totalSize":20,"gzipSize":0,"brotliSize":0,
			 "chunks":[{"name":"main","size":10,"modules":[]},{"name":"main","size":10,"modules":[]}]}]`), "history[1]"},
		{"newer major version", `{"version":"2.0.0","history":[],"alerts":[],"thresholds":` + validThresholds + `}`, "unsupported version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, _ := newTestManager(t, Options{})
			seed(t, m, 100, 200)
			before := mustExport(t, m)

			res := m.ImportHistory(ctx, []byte(tt.data))
			if res.Success {
				t.Fatal("expected import to be rejected")
			}
			if res.EntriesImported != 0 {
				t.Errorf("EntriesImported = %d, want 0", res.EntriesImported)
			}
			if !strings.Contains(res.Message, "Invalid export data format") || !strings.Contains(res.Message, tt.want) {
				t.Errorf("Message = %q, want invalid format mentioning %q", res.Message, tt.want)
			}

			after := mustExport(t, m)
			if !reflect.DeepEqual(before.History, after.History) ||
				!reflect.DeepEqual(before.Alerts, after.Alerts) ||
				before.Thresholds != after.Thresholds {
				t.Error("rejected import changed the store")
			}
		})
	}
}

func TestImportHistory_LargestByteLimitSurvives(t *testing.T) {
	// 2^53 is exactly representable, so it must import unchanged
	data := `{"version":"1.0.0","history":[],"alerts":[],"thresholds":{"totalSizeIncreaseThreshold":0,"chunkSizeIncreaseThreshold":0,"maxTotalSize":9007199254740992,"maxChunkSize":0}}`
	m, _ := newTestManager(t, Options{})

	res := m.ImportHistory(context.Background(), []byte(data))
	if !res.Success {
		t.Fatalf("import failed: %s", res.Message)
	}
	th := mustThresholds(t, m)
	if th.MaxTotalSize != 1<<53 || th.MaxChunkSize != 0 {
		t.Errorf("thresholds = %+v", th)
	}

	// an unchanged bundle under the imported limits raises nothing
	mustSave(t, m, bundle(1000))
	if res := mustSave(t, m, bundle(1000)); len(res.Alerts) != 0 {
		t.Errorf("expected no alerts for an unchanged bundle, got %+v", res.Alerts)
	}
}

func TestImportHistory_AcceptsOriginalToolFormat(t *testing.T) {
	data := `{
  "version": "1.0.0",
  "exportDate": "2024-02-01T10:00:00.000Z",
  "history": [
    {"timestamp": "2024-01-31T09:00:00.000Z", "totalSize": 900000, "gzipSize": 300000, "brotliSize": 250000,
     "chunks": [{"name": "main", "size": 900000, "modules": [{"name": "index.js", "size": 900000}]}]}
  ],
  "alerts": [],
  "thresholds": {"totalSizeIncreaseThreshold": 10, "chunkSizeIncreaseThreshold": 15, "maxTotalSize": 5242880.0, "maxChunkSize": 2097152}
}`
	m, _ := newTestManager(t, Options{})

	res := m.ImportHistory(context.Background(), []byte(data))
	if !res.Success {
		t.Fatalf("import failed: %s", res.Message)
	}
	if res.EntriesImported != 1 {
		t.Errorf("EntriesImported = %d, want 1", res.EntriesImported)
	}
	if th := mustThresholds(t, m); th.MaxTotalSize != 5242880 {
		t.Errorf("MaxTotalSize = %d, want 5242880", th.MaxTotalSize)
	}

	saved := mustSave(t, m, bundle(1200000))
	if len(saved.Alerts) != 1 || saved.Alerts[0].Type != alerting.TypeTotalSizeIncrease {
		t.Errorf("expected one total-size-increase alert, got %+v", saved.Alerts)
	}
}

func TestImportHistory_ExportDateOptional(t *testing.T) {
	data := `{"version":"1.2","history":[],"alerts":[],"thresholds":{"totalSizeIncreaseThreshold":1,"chunkSizeIncreaseThreshold":2,"maxTotalSize":3,"maxChunkSize":4}}`
	m, _ := newTestManager(t, Options{})

	res := m.ImportHistory(context.Background(), []byte(data))
	if !res.Success {
		t.Fatalf("import failed: %s", res.Message)
	}
	if res.EntriesImported != 0 {
		t.Errorf("EntriesImported = %d, want 0", res.EntriesImported)
	}
}
