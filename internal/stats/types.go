// Package stats defines the bundle-size measurement records stored by bundlewatch.
package stats

import (
	"encoding/json"
	"fmt"
	"time"
)

// Module is a single source module inside a chunk.
type Module struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Path string `json:"path,omitempty"`
}

// Chunk is a named, sized partition of a build's output.
type Chunk struct {
	Name    string   `json:"name"`
	Size    int64    `json:"size"`
	Modules []Module `json:"modules"`
}

// BundleStats is one measurement of a build's output, as produced by an analyzer.
// GzipSize and BrotliSize are zero when compression analysis was skipped.
type BundleStats struct {
	TotalSize  int64   `json:"totalSize"`
	GzipSize   int64   `json:"gzipSize"`
	BrotliSize int64   `json:"brotliSize"`
	Chunks     []Chunk `json:"chunks"`
}

// Snapshot is a BundleStats value once it has been stored in the history.
// TotalSize is authoritative and is never recomputed from the chunk sizes.
type Snapshot struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	BundleStats
}

// Validate checks the measurement for negative sizes and duplicate chunk names.
func (b *BundleStats) Validate() error {
	if b.TotalSize < 0 || b.GzipSize < 0 || b.BrotliSize < 0 {
		return fmt.Errorf("sizes must be non-negative (total=%d gzip=%d brotli=%d)",
			b.TotalSize, b.GzipSize, b.BrotliSize)
	}

	seen := make(map[string]struct{}, len(b.Chunks))
	for _, c := range b.Chunks {
		if c.Name == "" {
			return fmt.Errorf("chunk name must not be empty")
		}
		if c.Size < 0 {
			return fmt.Errorf("chunk %q has negative size %d", c.Name, c.Size)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate chunk name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		for _, m := range c.Modules {
			if m.Size < 0 {
				return fmt.Errorf("module %q in chunk %q has negative size %d", m.Name, c.Name, m.Size)
			}
		}
	}
	return nil
}

// Parse decodes an analyzer's JSON output and validates it.
func Parse(data []byte) (BundleStats, error) {
	var bs BundleStats
	if err := json.Unmarshal(data, &bs); err != nil {
		return bs, fmt.Errorf("invalid stats JSON: %w", err)
	}
	if err := bs.Validate(); err != nil {
		return bs, fmt.Errorf("invalid stats: %w", err)
	}
	return bs, nil
}

// Chunk returns the chunk with the given name, or nil when the snapshot has none.
func (b *BundleStats) Chunk(name string) *Chunk {
	for i := range b.Chunks {
		if b.Chunks[i].Name == name {
			return &b.Chunks[i]
		}
	}
	return nil
}

// HasAnyChunk reports whether any chunk name is in names.
func (b *BundleStats) HasAnyChunk(names []string) bool {
	for _, c := range b.Chunks {
		for _, n := range names {
			if c.Name == n {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy so stored snapshots are not aliased by callers.
func (b BundleStats) Clone() BundleStats {
	out := b
	if b.Chunks != nil {
		out.Chunks = make([]Chunk, len(b.Chunks))
		for i, c := range b.Chunks {
			out.Chunks[i] = c
			if c.Modules != nil {
				out.Chunks[i].Modules = append([]Module(nil), c.Modules...)
			}
		}
	}
	return out
}
