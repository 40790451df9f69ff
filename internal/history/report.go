package history

import (
	"context"
	"fmt"
)

// GenerateReport hands the stored history to the visualizer and returns
// the location of what it produced.
func (m *Manager) GenerateReport(ctx context.Context) (string, error) {
	history, err := m.History(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	path, err := m.visualizer.Render(ctx, m.dir, history, m.now())
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}
	m.logger.Info("report generated", "path", path, "entries", len(history))
	return path, nil
}
