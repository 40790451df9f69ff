package alerting

import (
	"fmt"

	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

// Evaluate compares current against the snapshot stored immediately before
// it and returns the alerts it triggers. A nil previous means the history was
// empty, in which case nothing is compared and no alerts are returned.
//
// Percentage alerts are skipped when the previous size is zero. Every alert
// in the batch carries current's timestamp.
func Evaluate(current stats.Snapshot, previous *stats.Snapshot, t Thresholds) []Alert {
	if previous == nil {
		return nil
	}

	var alerts []Alert
	ts := current.Timestamp

	if pct, ok := percentChange(previous.TotalSize, current.TotalSize); ok && pct > t.TotalSizeIncreaseThreshold {
		prev := previous.TotalSize
		alerts = append(alerts, Alert{
			Type:     TypeTotalSizeIncrease,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Total bundle size increased by %.2f%%", pct),
			Details: Details{
				Timestamp:        ts,
				PreviousValue:    &prev,
				CurrentValue:     current.TotalSize,
				Threshold:        t.TotalSizeIncreaseThreshold,
				PercentageChange: &pct,
			},
		})
	}

	if current.TotalSize > t.MaxTotalSize {
		alerts = append(alerts, Alert{
			Type:     TypeMaxSizeExceeded,
			Severity: SeverityError,
			Message: fmt.Sprintf("Total bundle size (%d) exceeds maximum allowed size (%d)",
				current.TotalSize, t.MaxTotalSize),
			Details: Details{
				Timestamp:    ts,
				CurrentValue: current.TotalSize,
				Threshold:    float64(t.MaxTotalSize),
			},
		})
	}

	for _, chunk := range current.Chunks {
		prevChunk := previous.Chunk(chunk.Name)
		if prevChunk == nil {
			continue
		}
		pct, ok := percentChange(prevChunk.Size, chunk.Size)
		if !ok || pct <= t.ChunkSizeIncreaseThreshold {
			continue
		}
		prev := prevChunk.Size
		alerts = append(alerts, Alert{
			Type:     TypeChunkSizeIncrease,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Chunk %q size increased by %.2f%%", chunk.Name, pct),
			Details: Details{
				Timestamp:        ts,
				PreviousValue:    &prev,
				CurrentValue:     chunk.Size,
				Threshold:        t.ChunkSizeIncreaseThreshold,
				PercentageChange: &pct,
				ChunkName:        chunk.Name,
			},
		})
	}

	for _, chunk := range current.Chunks {
		if chunk.Size <= t.MaxChunkSize {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     TypeMaxChunkSizeExceeded,
			Severity: SeverityError,
			Message: fmt.Sprintf("Chunk %q size (%d) exceeds maximum allowed chunk size (%d)",
				chunk.Name, chunk.Size, t.MaxChunkSize),
			Details: Details{
				Timestamp:    ts,
				CurrentValue: chunk.Size,
				Threshold:    float64(t.MaxChunkSize),
				ChunkName:    chunk.Name,
			},
		})
	}

	return alerts
}

// percentChange returns the growth from prev to cur in percent. It reports
// false when prev is zero and the change is undefined.
func percentChange(prev, cur int64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return float64(cur-prev) * 100 / float64(prev), true
}
