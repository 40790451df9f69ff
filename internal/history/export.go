package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

// ExportVersion tags envelopes written by ExportHistory.
const ExportVersion = "1.0.0"

// Envelope is the portable form of the whole store.
type Envelope struct {
	Version    string              `json:"version"`
	ExportDate time.Time           `json:"exportDate"`
	History    []stats.Snapshot    `json:"history"`
	Alerts     []alerting.Alert    `json:"alerts"`
	Thresholds alerting.Thresholds `json:"thresholds"`
}

// ImportResult reports the outcome of an import. A failed import has
// Success false, a Message, and leaves the store unchanged.
type ImportResult struct {
	Success         bool             `json:"success"`
	Message         string           `json:"message"`
	EntriesImported int              `json:"entriesImported"`
	Alerts          []alerting.Alert `json:"alerts,omitempty"`
}

// ExportHistory captures history, alerts and thresholds in one envelope.
func (m *Manager) ExportHistory(ctx context.Context) (Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, err := m.loadHistory(ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to export history: %w", err)
	}
	alerts, err := m.loadAlerts(ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to export history: %w", err)
	}
	thresholds, err := m.loadThresholds(ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to export history: %w", err)
	}

	if history == nil {
		history = []stats.Snapshot{}
	}
	if alerts == nil {
		alerts = []alerting.Alert{}
	}
	return Envelope{
		Version:    ExportVersion,
		ExportDate: m.now().UTC(),
		History:    history,
		Alerts:     alerts,
		Thresholds: thresholds,
	}, nil
}

// Import is ImportHistory for an envelope already in memory.
func (m *Manager) Import(ctx context.Context, env Envelope) ImportResult {
	if env.History == nil {
		env.History = []stats.Snapshot{}
	}
	if env.Alerts == nil {
		env.Alerts = []alerting.Alert{}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return invalidImport(err.Error())
	}
	return m.ImportHistory(ctx, data)
}

// ImportHistory validates data as an export envelope and, if it is well
// formed, replaces the stored history, alerts and thresholds with its
// contents. It never returns an error; failures are reported in the result.
func (m *Manager) ImportHistory(ctx context.Context, data []byte) ImportResult {
	env, err := parseEnvelope(data)
	if err != nil {
		m.logger.Warn("rejected history import", "error", err)
		return invalidImport(err.Error())
	}

	historyRec, err := store.Encode(store.DocHistory, env.History)
	if err != nil {
		return failedImport(err)
	}
	alertsRec, err := store.Encode(store.DocAlerts, env.Alerts)
	if err != nil {
		return failedImport(err)
	}
	thresholdsRec, err := store.Encode(store.DocThresholds, env.Thresholds)
	if err != nil {
		return failedImport(err)
	}

	m.mu.Lock()
	err = m.backend.Save(ctx, historyRec, alertsRec, thresholdsRec)
	m.mu.Unlock()
	if err != nil {
		m.logger.Error("history import failed", "error", err)
		return failedImport(err)
	}

	m.logger.Info("history imported",
		"version", env.Version,
		"entries", len(env.History),
		"alerts", len(env.Alerts))
	return ImportResult{
		Success:         true,
		Message:         fmt.Sprintf("Successfully imported %d history entries", len(env.History)),
		EntriesImported: len(env.History),
		Alerts:          env.Alerts,
	}
}

func invalidImport(reason string) ImportResult {
	return ImportResult{Message: "Invalid export data format: " + reason}
}

func failedImport(err error) ImportResult {
	return ImportResult{Message: "Failed to import history: " + err.Error()}
}

// envelopeThresholds accepts any JSON number for every field, so byte
// limits written as 5242880.0 still import.
type envelopeThresholds struct {
	TotalSizeIncreaseThreshold *float64 `json:"totalSizeIncreaseThreshold"`
	ChunkSizeIncreaseThreshold *float64 `json:"chunkSizeIncreaseThreshold"`
	MaxTotalSize               *float64 `json:"maxTotalSize"`
	MaxChunkSize               *float64 `json:"maxChunkSize"`
}

func parseEnvelope(data []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Envelope{}, fmt.Errorf("expected a JSON object")
	}

	var env Envelope
	if err := decodeField(raw, "version", '"', &env.Version); err != nil {
		return Envelope{}, err
	}
	if err := checkVersion(env.Version); err != nil {
		return Envelope{}, err
	}
	if err := decodeField(raw, "history", '[', &env.History); err != nil {
		return Envelope{}, err
	}
	if err := decodeField(raw, "alerts", '[', &env.Alerts); err != nil {
		return Envelope{}, err
	}

	var th envelopeThresholds
	if err := decodeField(raw, "thresholds", '{', &th); err != nil {
		return Envelope{}, err
	}
	if th.TotalSizeIncreaseThreshold == nil || th.ChunkSizeIncreaseThreshold == nil ||
		th.MaxTotalSize == nil || th.MaxChunkSize == nil {
		return Envelope{}, fmt.Errorf("thresholds must define totalSizeIncreaseThreshold, chunkSizeIncreaseThreshold, maxTotalSize and maxChunkSize")
	}
	maxTotal, err := byteLimit("maxTotalSize", *th.MaxTotalSize)
	if err != nil {
		return Envelope{}, err
	}
	maxChunk, err := byteLimit("maxChunkSize", *th.MaxChunkSize)
	if err != nil {
		return Envelope{}, err
	}
	env.Thresholds = alerting.Thresholds{
		TotalSizeIncreaseThreshold: *th.TotalSizeIncreaseThreshold,
		ChunkSizeIncreaseThreshold: *th.ChunkSizeIncreaseThreshold,
		MaxTotalSize:               maxTotal,
		MaxChunkSize:               maxChunk,
	}
	if err := env.Thresholds.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("invalid thresholds: %v", err)
	}

	for i, snap := range env.History {
		if err := snap.BundleStats.Validate(); err != nil {
			return Envelope{}, fmt.Errorf("history[%d]: %v", i, err)
		}
	}

	if rawDate, ok := raw["exportDate"]; ok && string(rawDate) != "null" {
		if err := json.Unmarshal(rawDate, &env.ExportDate); err != nil {
			return Envelope{}, fmt.Errorf("invalid exportDate: %v", err)
		}
	}
	return env, nil
}

// byteLimit converts a JSON number to a byte count. Fractions and values
// outside [0, MaxInt64] are rejected rather than truncated.
func byteLimit(name string, v float64) (int64, error) {
	// 2^63 is the first float64 past MaxInt64
	if v != math.Trunc(v) || v < 0 || v >= math.Exp2(63) {
		return 0, fmt.Errorf("%s must be a whole number of bytes between 0 and %d, got %v", name, int64(math.MaxInt64), v)
	}
	return int64(v), nil
}

// decodeField requires raw[name] to be a JSON value whose first byte is
// kind, then decodes it into v.
func decodeField(raw map[string]json.RawMessage, name string, kind byte, v any) error {
	value, ok := raw[name]
	trimmed := strings.TrimSpace(string(value))
	if !ok || trimmed == "" || trimmed[0] != kind {
		return fmt.Errorf("missing or invalid %s", name)
	}
	if err := json.Unmarshal(value, v); err != nil {
		return fmt.Errorf("invalid %s: %v", name, err)
	}
	return nil
}

// checkVersion rejects envelopes from a newer major format. Versions that
// are not semver are accepted as-is.
func checkVersion(version string) error {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil
	}
	if semver.Compare(semver.Major(v), semver.Major("v"+ExportVersion)) > 0 {
		return fmt.Errorf("unsupported version %s", version)
	}
	return nil
}
