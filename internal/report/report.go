// Package report renders the bundle-size history as a self-contained HTML
// trend page.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

// FileName is the name of the report written into the history directory.
const FileName = "bundle-report.html"

//go:embed report.html.tmpl
var pageSource string

var page = template.Must(template.New("report").Parse(pageSource))

var palette = []string{
	"rgb(75, 192, 192)",
	"rgb(255, 159, 64)",
	"rgb(153, 102, 255)",
	"rgb(255, 99, 132)",
	"rgb(54, 162, 235)",
}

// HTML writes FileName into the history directory.
type HTML struct{}

// Card is one summary figure at the top of the report.
type Card struct {
	Title string
	Value string
}

// Dataset is a Chart.js dataset.
type Dataset struct {
	Label           string  `json:"label"`
	Data            []int64 `json:"data"`
	BorderColor     string  `json:"borderColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	Tension         float64 `json:"tension,omitempty"`
}

// Page is the data the report template is executed with.
type Page struct {
	Generated     string
	Entries       int
	Cards         []Card
	Labels        []string
	SizeDatasets  []Dataset
	ChunkDatasets []Dataset
}

// Render writes the report for history into dir, stamped with now, and
// returns its path.
func (HTML) Render(ctx context.Context, dir string, history []stats.Snapshot, now time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Write(&buf, history, now); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Write executes the report template for history.
func Write(w io.Writer, history []stats.Snapshot, now time.Time) error {
	if err := page.Execute(w, Build(history, now)); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// Build computes the page data: summary cards, the size series and one
// stacked series per chunk.
func Build(history []stats.Snapshot, now time.Time) Page {
	p := Page{
		Generated:     now.UTC().Format(time.RFC3339),
		Entries:       len(history),
		Labels:        make([]string, len(history)),
		SizeDatasets:  []Dataset{},
		ChunkDatasets: []Dataset{},
	}

	total := make([]int64, len(history))
	gzip := make([]int64, len(history))
	brotli := make([]int64, len(history))
	var sum int64
	for i, snap := range history {
		p.Labels[i] = snap.Timestamp.UTC().Format(time.RFC3339)
		total[i] = snap.TotalSize
		gzip[i] = snap.GzipSize
		brotli[i] = snap.BrotliSize
		sum += snap.TotalSize
	}

	var latest stats.Snapshot
	var average uint64
	if len(history) > 0 {
		latest = history[len(history)-1]
		average = uint64(sum / int64(len(history)))
	}
	p.Cards = []Card{
		{Title: "Latest Total Size", Value: humanize.IBytes(uint64(latest.TotalSize))},
		{Title: "Average Size", Value: humanize.IBytes(average)},
		{Title: "Latest Gzip Size", Value: humanize.IBytes(uint64(latest.GzipSize))},
		{Title: "Latest Brotli Size", Value: humanize.IBytes(uint64(latest.BrotliSize))},
	}

	if len(history) == 0 {
		return p
	}

	p.SizeDatasets = []Dataset{
		{Label: "Total Size", Data: total, BorderColor: palette[0], Tension: 0.1},
		{Label: "Gzip Size", Data: gzip, BorderColor: palette[1], Tension: 0.1},
		{Label: "Brotli Size", Data: brotli, BorderColor: palette[2], Tension: 0.1},
	}
	p.ChunkDatasets = chunkDatasets(history)
	return p
}

// chunkDatasets has one dataset per chunk name, ordered by first
// appearance. Snapshots without the chunk contribute 0.
func chunkDatasets(history []stats.Snapshot) []Dataset {
	order := map[string]int{}
	var names []string
	for _, snap := range history {
		for _, c := range snap.Chunks {
			if _, ok := order[c.Name]; !ok {
				order[c.Name] = len(names)
				names = append(names, c.Name)
			}
		}
	}
	out := make([]Dataset, len(names))
	for i, name := range names {
		data := make([]int64, len(history))
		for j, snap := range history {
			if c := snap.Chunk(name); c != nil {
				data[j] = c.Size
			}
		}
		out[i] = Dataset{Label: name, Data: data, BackgroundColor: palette[i%len(palette)]}
	}
	return out
}
