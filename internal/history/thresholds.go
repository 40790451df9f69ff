package history

import (
	"context"
	"fmt"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/store"
)

// GetThresholds returns the current thresholds, or the defaults when none
// have been set.
func (m *Manager) GetThresholds(ctx context.Context) (alerting.Thresholds, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	th, err := m.loadThresholds(ctx)
	if err != nil {
		return th, fmt.Errorf("failed to get thresholds: %w", err)
	}
	return th, nil
}

// SetThresholds overlays the supplied fields on the current thresholds and
// persists the result.
func (m *Manager) SetThresholds(ctx context.Context, patch alerting.ThresholdsPatch) (alerting.Thresholds, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.loadThresholds(ctx)
	if err != nil {
		return current, fmt.Errorf("failed to set thresholds: %w", err)
	}

	updated := current.Merge(patch)
	if err := updated.Validate(); err != nil {
		return current, fmt.Errorf("failed to set thresholds: %w", err)
	}

	rec, err := store.Encode(store.DocThresholds, updated)
	if err != nil {
		return current, fmt.Errorf("failed to set thresholds: %w", err)
	}
	if err := m.backend.Save(ctx, rec); err != nil {
		return current, fmt.Errorf("failed to set thresholds: %w", err)
	}

	m.logger.Info("thresholds updated",
		"total_pct", updated.TotalSizeIncreaseThreshold,
		"chunk_pct", updated.ChunkSizeIncreaseThreshold,
		"max_total", updated.MaxTotalSize,
		"max_chunk", updated.MaxChunkSize)
	return updated, nil
}
