// Package metrics exposes bundle-size gauges and counters in Prometheus
// format. Metrics are written to a node-exporter textfile rather than served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

const namespace = "bundlewatch"

// Metrics holds the collectors in a private registry. It implements
// history.Observer.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsTotal prometheus.Counter
	AlertsTotal    *prometheus.CounterVec
	TotalSize      prometheus.Gauge
	GzipSize       prometheus.Gauge
	BrotliSize     prometheus.Gauge
	ChunkSize      *prometheus.GaugeVec
	HistoryEntries prometheus.Gauge
	LastRecorded   prometheus.Gauge
}

// New registers a fresh set of collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SnapshotsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_recorded_total",
			Help:      "Total number of bundle snapshots recorded",
		}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Total number of size alerts raised",
		}, []string{"type", "severity"}),
		TotalSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "total_bytes",
			Help:      "Total size of the latest recorded bundle",
		}),
		GzipSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "gzip_bytes",
			Help:      "Gzip size of the latest recorded bundle",
		}),
		BrotliSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bundle",
			Name:      "brotli_bytes",
			Help:      "Brotli size of the latest recorded bundle",
		}),
		ChunkSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chunk",
			Name:      "bytes",
			Help:      "Size of each chunk in the latest recorded bundle",
		}, []string{"chunk"}),
		HistoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "entries",
			Help:      "Number of snapshots currently kept in the history",
		}),
		LastRecorded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_recorded_timestamp_seconds",
			Help:      "Unix time of the latest recorded snapshot",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SnapshotSaved updates the collectors for a newly stored snapshot.
func (m *Metrics) SnapshotSaved(snap stats.Snapshot, alerts []alerting.Alert, entries int) {
	m.SnapshotsTotal.Inc()
	m.TotalSize.Set(float64(snap.TotalSize))
	m.GzipSize.Set(float64(snap.GzipSize))
	m.BrotliSize.Set(float64(snap.BrotliSize))
	m.HistoryEntries.Set(float64(entries))
	m.LastRecorded.Set(float64(snap.Timestamp.Unix()))

	// only the latest bundle's chunks are reported
	m.ChunkSize.Reset()
	for _, c := range snap.Chunks {
		m.ChunkSize.WithLabelValues(c.Name).Set(float64(c.Size))
	}

	for _, a := range alerts {
		m.AlertsTotal.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
}

// WriteTextfile writes the current values to path in the text exposition
// format, replacing the file atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
