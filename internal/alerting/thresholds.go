package alerting

import "fmt"

const (
	DefaultTotalSizeIncreaseThreshold = 10.0
	DefaultChunkSizeIncreaseThreshold = 15.0
	DefaultMaxTotalSize               = 5 * 1024 * 1024
	DefaultMaxChunkSize               = 2 * 1024 * 1024
)

// Thresholds are the limits that decide when an alert fires. The increase
// thresholds are percentages, the max sizes are bytes.
type Thresholds struct {
	TotalSizeIncreaseThreshold float64 `json:"totalSizeIncreaseThreshold" yaml:"total_size_increase_threshold" toml:"total_size_increase_threshold"`
	ChunkSizeIncreaseThreshold float64 `json:"chunkSizeIncreaseThreshold" yaml:"chunk_size_increase_threshold" toml:"chunk_size_increase_threshold"`
	MaxTotalSize               int64   `json:"maxTotalSize" yaml:"max_total_size" toml:"max_total_size"`
	MaxChunkSize               int64   `json:"maxChunkSize" yaml:"max_chunk_size" toml:"max_chunk_size"`
}

// ThresholdsPatch is a partial update; nil fields are left unchanged.
type ThresholdsPatch struct {
	TotalSizeIncreaseThreshold *float64 `json:"totalSizeIncreaseThreshold,omitempty" yaml:"total_size_increase_threshold,omitempty" toml:"total_size_increase_threshold,omitempty"`
	ChunkSizeIncreaseThreshold *float64 `json:"chunkSizeIncreaseThreshold,omitempty" yaml:"chunk_size_increase_threshold,omitempty" toml:"chunk_size_increase_threshold,omitempty"`
	MaxTotalSize               *int64   `json:"maxTotalSize,omitempty" yaml:"max_total_size,omitempty" toml:"max_total_size,omitempty"`
	MaxChunkSize               *int64   `json:"maxChunkSize,omitempty" yaml:"max_chunk_size,omitempty" toml:"max_chunk_size,omitempty"`
}

// DefaultThresholds returns the thresholds used when none have been set.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TotalSizeIncreaseThreshold: DefaultTotalSizeIncreaseThreshold,
		ChunkSizeIncreaseThreshold: DefaultChunkSizeIncreaseThreshold,
		MaxTotalSize:               DefaultMaxTotalSize,
		MaxChunkSize:               DefaultMaxChunkSize,
	}
}

// Merge overlays the non-nil fields of p onto t.
func (t Thresholds) Merge(p ThresholdsPatch) Thresholds {
	if p.TotalSizeIncreaseThreshold != nil {
		t.TotalSizeIncreaseThreshold = *p.TotalSizeIncreaseThreshold
	}
	if p.ChunkSizeIncreaseThreshold != nil {
		t.ChunkSizeIncreaseThreshold = *p.ChunkSizeIncreaseThreshold
	}
	if p.MaxTotalSize != nil {
		t.MaxTotalSize = *p.MaxTotalSize
	}
	if p.MaxChunkSize != nil {
		t.MaxChunkSize = *p.MaxChunkSize
	}
	return t
}

// IsEmpty reports whether the patch changes nothing.
func (p ThresholdsPatch) IsEmpty() bool {
	return p.TotalSizeIncreaseThreshold == nil && p.ChunkSizeIncreaseThreshold == nil &&
		p.MaxTotalSize == nil && p.MaxChunkSize == nil
}

// Validate rejects negative limits.
func (t Thresholds) Validate() error {
	if t.TotalSizeIncreaseThreshold < 0 {
		return fmt.Errorf("totalSizeIncreaseThreshold must be non-negative, got %v", t.TotalSizeIncreaseThreshold)
	}
	if t.ChunkSizeIncreaseThreshold < 0 {
		return fmt.Errorf("chunkSizeIncreaseThreshold must be non-negative, got %v", t.ChunkSizeIncreaseThreshold)
	}
	if t.MaxTotalSize < 0 {
		return fmt.Errorf("maxTotalSize must be non-negative, got %d", t.MaxTotalSize)
	}
	if t.MaxChunkSize < 0 {
		return fmt.Errorf("maxChunkSize must be non-negative, got %d", t.MaxChunkSize)
	}
	return nil
}
