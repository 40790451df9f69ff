// Package output renders bundlewatch results for the terminal.
//
// Tables use plain column padding and box-drawing rules. ANSI colours are
// only emitted when stdout is a terminal and NO_COLOR is unset. Sizes are
// formatted in IEC units (KiB, MiB) to match the alert thresholds.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/backup"
	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderHistoryTable renders snapshots in the order given.
func RenderHistoryTable(entries []stats.Snapshot) string {
	if len(entries) == 0 {
		return "No snapshots recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %-20s %-10s %-10s %-10s %s\n",
		"ID", "Recorded", "Total", "Gzip", "Brotli", "Chunks"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%-10s %-20s %-10s %-10s %-10s %d\n",
			shortID(e.ID),
			FormatTime(e.Timestamp),
			FormatSize(e.TotalSize),
			formatOptionalSize(e.GzipSize),
			formatOptionalSize(e.BrotliSize),
			len(e.Chunks)))
	}
	return sb.String()
}

// RenderQueryFooter summarizes a query page:
// "Showing 1-10 of 42 · avg 1.2 MiB · min 1.0 MiB · max 1.5 MiB"
func RenderQueryFooter(res *history.QueryResult) string {
	if res.Total == 0 {
		return "No snapshots match the query."
	}

	first := res.Pagination.Offset + 1
	last := res.Pagination.Offset + len(res.Entries)
	var sb strings.Builder
	if len(res.Entries) == 0 {
		sb.WriteString(fmt.Sprintf("No entries at offset %d of %d", res.Pagination.Offset, res.Total))
	} else {
		sb.WriteString(fmt.Sprintf("Showing %d-%d of %d", first, last, res.Total))
	}
	sb.WriteString(fmt.Sprintf(" · avg %s · min %s · max %s",
		humanize.IBytes(uint64(res.Summary.AverageSize)),
		FormatSize(res.Summary.MinSize),
		FormatSize(res.Summary.MaxSize)))
	if res.Pagination.HasMore {
		sb.WriteString(fmt.Sprintf(" (more: --offset %d)", res.Pagination.Offset+res.Pagination.Limit))
	}
	return sb.String()
}

// RenderAlertTable renders alerts newest first.
func RenderAlertTable(alerts []alerting.Alert) string {
	if len(alerts) == 0 {
		return "No alerts recorded.\n"
	}

	sorted := make([]alerting.Alert, len(alerts))
	copy(sorted, alerts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Details.Timestamp.After(sorted[j].Details.Timestamp)
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-9s %-24s %-20s %s\n",
		"Severity", "Type", "Recorded", "Message"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, a := range sorted {
		// pad before colouring so the escape codes do not break alignment
		severity := colorize(severityColor(a.Severity), fmt.Sprintf("%-9s", a.Severity))
		sb.WriteString(fmt.Sprintf("%s %-24s %-20s %s\n",
			severity,
			a.Type,
			FormatTime(a.Details.Timestamp),
			a.Message))
	}
	return sb.String()
}

// RenderAlertLines renders alerts as a bulleted list, for use right after
// a snapshot is recorded.
func RenderAlertLines(alerts []alerting.Alert) string {
	var sb strings.Builder
	for _, a := range alerts {
		marker := "⚠"
		if a.Severity == alerting.SeverityError {
			marker = "✗"
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", colorize(severityColor(a.Severity), marker), a.Message))
	}
	return sb.String()
}

// RenderSaveResult renders the outcome of recording a snapshot.
func RenderSaveResult(res *history.SaveResult) string {
	var sb strings.Builder
	snap := res.Snapshot
	sb.WriteString(fmt.Sprintf("Recorded snapshot %s: %s total", shortID(snap.ID), FormatSize(snap.TotalSize)))
	if snap.GzipSize > 0 || snap.BrotliSize > 0 {
		sb.WriteString(fmt.Sprintf(" (%s gzip, %s brotli)", FormatSize(snap.GzipSize), FormatSize(snap.BrotliSize)))
	}
	sb.WriteString(fmt.Sprintf(", %d chunks\n", len(snap.Chunks)))

	sb.WriteString(fmt.Sprintf("History: %d entries", res.Entries))
	if res.Evicted > 0 {
		sb.WriteString(fmt.Sprintf(" (%d oldest evicted)", res.Evicted))
	}
	sb.WriteString("\n")

	if len(res.Alerts) == 0 {
		sb.WriteString(colorize(colorGreen, "✓ No size alerts") + "\n")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("%d alert(s):\n", len(res.Alerts)))
	sb.WriteString(RenderAlertLines(res.Alerts))
	return sb.String()
}

// RenderBackupTable renders history backups, newest first.
func RenderBackupTable(backups []backup.Backup) string {
	if len(backups) == 0 {
		return "No backups found.\n"
	}

	sorted := make([]backup.Backup, len(backups))
	copy(sorted, backups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-22s %-20s %-10s %s\n",
		"Name", "Created", "Snapshots", "Alerts"))
	sb.WriteString(strings.Repeat("─", 64))
	sb.WriteString("\n")

	for _, b := range sorted {
		sb.WriteString(fmt.Sprintf("%-22s %-20s %-10d %d\n",
			truncateNoEllipsis(b.Name, 22),
			FormatTime(b.CreatedAt),
			b.Entries,
			b.Alerts))
	}
	return sb.String()
}

// RenderThresholds renders the alert thresholds.
func RenderThresholds(t alerting.Thresholds) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-22s %s\n", "Total size increase:", formatPercent(t.TotalSizeIncreaseThreshold)))
	sb.WriteString(fmt.Sprintf("%-22s %s\n", "Chunk size increase:", formatPercent(t.ChunkSizeIncreaseThreshold)))
	sb.WriteString(fmt.Sprintf("%-22s %s (%d bytes)\n", "Max total size:", FormatSize(t.MaxTotalSize), t.MaxTotalSize))
	sb.WriteString(fmt.Sprintf("%-22s %s (%d bytes)\n", "Max chunk size:", FormatSize(t.MaxChunkSize), t.MaxChunkSize))
	return sb.String()
}

// RenderChunkTable renders the chunks of one snapshot, largest first,
// with their share of the total and a marker for chunks over maxChunk.
func RenderChunkTable(snap stats.Snapshot, maxChunk int64) string {
	if len(snap.Chunks) == 0 {
		return "No chunks in the latest snapshot.\n"
	}

	sorted := make([]stats.Chunk, len(snap.Chunks))
	copy(sorted, snap.Chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size > sorted[j].Size
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %-10s %-7s %-8s %s\n", "Chunk", "Size", "Share", "Modules", "Status"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, c := range sorted {
		share := "—"
		if snap.TotalSize > 0 {
			share = fmt.Sprintf("%.1f%%", float64(c.Size)*100/float64(snap.TotalSize))
		}
		status := colorize(colorGreen, "✓ ok")
		if maxChunk > 0 && c.Size > maxChunk {
			status = colorize(colorRed, "✗ over limit")
		}
		sb.WriteString(fmt.Sprintf("%-40s %-10s %-7s %-8d %s\n",
			truncate(c.Name, 40),
			FormatSize(c.Size),
			share,
			len(c.Modules),
			status))
	}
	return sb.String()
}

// RenderChunkNames renders one chunk name per line.
func RenderChunkNames(names []string) string {
	if len(names) == 0 {
		return "No chunks recorded.\n"
	}
	return strings.Join(names, "\n") + "\n"
}

// FormatSize converts bytes to an IEC size string (e.g. "1.5 MiB").
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

func formatOptionalSize(bytes int64) string {
	if bytes == 0 {
		return "—"
	}
	return FormatSize(bytes)
}

// FormatTime renders t relative to now ("3 hours ago"); the zero time is "never".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%g%%", p)
}

func severityColor(s alerting.Severity) string {
	switch s {
	case alerting.SeverityError:
		return colorRed
	case alerting.SeverityWarning:
		return colorYellow
	default:
		return colorGray
	}
}

func shortID(id string) string {
	if id == "" {
		return "—"
	}
	return truncateNoEllipsis(id, 8)
}

func truncateNoEllipsis(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
