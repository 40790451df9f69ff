package history

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

// SaveResult describes what SaveSnapshot stored.
type SaveResult struct {
	Snapshot stats.Snapshot   `json:"snapshot"`
	Alerts   []alerting.Alert `json:"alerts"`
	Entries  int              `json:"entries"`
	Evicted  int              `json:"evicted"`
}

// SaveSnapshot timestamps bs, compares it with the most recent stored
// snapshot, appends it and persists the history and the alert log.
// The oldest snapshots are evicted once the history exceeds MaxEntries.
func (m *Manager) SaveSnapshot(ctx context.Context, bs stats.BundleStats) (*SaveResult, error) {
	if err := bs.Validate(); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: invalid stats: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	history, err := m.loadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	thresholds, err := m.loadThresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	alertLog, err := m.loadAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	snap := stats.Snapshot{
		ID:          uuid.NewString(),
		Timestamp:   m.now().UTC(),
		BundleStats: bs.Clone(),
	}

	var previous *stats.Snapshot
	if len(history) > 0 {
		previous = &history[len(history)-1]
	}
	alerts := alerting.Evaluate(snap, previous, thresholds)

	history = append(history, snap)
	evicted := 0
	if len(history) > m.maxEntries {
		evicted = len(history) - m.maxEntries
		history = append([]stats.Snapshot(nil), history[evicted:]...)
	}

	alertLog = append(alertLog, alerts...)
	if m.maxAlerts > 0 && len(alertLog) > m.maxAlerts {
		alertLog = append([]alerting.Alert(nil), alertLog[len(alertLog)-m.maxAlerts:]...)
	}
	if alertLog == nil {
		alertLog = []alerting.Alert{}
	}

	historyRec, err := store.Encode(store.DocHistory, history)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	alertsRec, err := store.Encode(store.DocAlerts, alertLog)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	if err := m.backend.Save(ctx, historyRec, alertsRec); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	m.logger.Info("snapshot recorded",
		"id", snap.ID,
		"total_size", snap.TotalSize,
		"chunks", len(snap.Chunks),
		"alerts", len(alerts),
		"entries", len(history))
	if evicted > 0 {
		m.logger.Debug("evicted oldest snapshots", "count", evicted, "max_entries", m.maxEntries)
	}
	for _, a := range alerts {
		m.logger.Warn("bundle size alert", "type", a.Type, "severity", a.Severity, "message", a.Message)
	}
	if m.observer != nil {
		m.observer.SnapshotSaved(snap, alerts, len(history))
	}

	return &SaveResult{
		Snapshot: snap,
		Alerts:   alerts,
		Entries:  len(history),
		Evicted:  evicted,
	}, nil
}

// History returns every stored snapshot in insertion order.
func (m *Manager) History(ctx context.Context) ([]stats.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history, err := m.loadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	if history == nil {
		history = []stats.Snapshot{}
	}
	return history, nil
}

// Latest returns the most recent snapshot, or nil when the history is empty.
func (m *Manager) Latest(ctx context.Context) (*stats.Snapshot, error) {
	history, err := m.History(ctx)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

// GetAlerts returns the alert log, oldest first. It is empty when no alert
// has been recorded.
func (m *Manager) GetAlerts(ctx context.Context) ([]alerting.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts, err := m.loadAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	if alerts == nil {
		alerts = []alerting.Alert{}
	}
	return alerts, nil
}
