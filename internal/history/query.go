package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

// ErrInvalidQuery is returned for an unknown sort field or order.
var ErrInvalidQuery = errors.New("invalid history query")

// SortField selects the value QueryHistory orders by.
type SortField string

const (
	SortByDate       SortField = "date"
	SortByTotalSize  SortField = "totalSize"
	SortByGzipSize   SortField = "gzipSize"
	SortByBrotliSize SortField = "brotliSize"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const defaultLimit = 10

// Query filters, sorts and paginates the history. Nil bounds are unset;
// all bounds are inclusive.
type Query struct {
	StartDate  *time.Time
	EndDate    *time.Time
	MinSize    *int64
	MaxSize    *int64
	ChunkNames []string
	SortBy     SortField
	SortOrder  SortOrder
	Limit      int
	Offset     int
}

// Pagination echoes the effective page window.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// Summary aggregates totalSize over the filtered entries, before pagination.
type Summary struct {
	AverageSize  float64 `json:"averageSize"`
	MinSize      int64   `json:"minSize"`
	MaxSize      int64   `json:"maxSize"`
	TotalEntries int     `json:"totalEntries"`
}

// QueryResult is one page of history.
type QueryResult struct {
	Entries    []stats.Snapshot `json:"entries"`
	Total      int              `json:"total"`
	Pagination Pagination       `json:"pagination"`
	Summary    Summary          `json:"summary"`
}

// DateRange spans the stored timestamps. Both ends are nil when the history is empty.
type DateRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}

// SizeRange spans the stored total sizes. All zero when the history is empty.
type SizeRange struct {
	Min     int64   `json:"min"`
	Max     int64   `json:"max"`
	Average float64 `json:"average"`
}

// QueryHistory runs q over the stored history: filter, summarize, sort, paginate.
func (m *Manager) QueryHistory(ctx context.Context, q Query) (*QueryResult, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	history, err := m.loadHistory(ctx)
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	return runQuery(history, q), nil
}

// GetChunkNames returns every distinct chunk name in the history, sorted.
func (m *Manager) GetChunkNames(ctx context.Context) ([]string, error) {
	history, err := m.History(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	names := []string{}
	for _, snap := range history {
		for _, c := range snap.Chunks {
			if _, ok := seen[c.Name]; ok {
				continue
			}
			seen[c.Name] = struct{}{}
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// GetDateRange returns the earliest and latest stored timestamps.
func (m *Manager) GetDateRange(ctx context.Context) (DateRange, error) {
	history, err := m.History(ctx)
	if err != nil {
		return DateRange{}, err
	}
	if len(history) == 0 {
		return DateRange{}, nil
	}

	earliest, latest := history[0].Timestamp, history[0].Timestamp
	for _, snap := range history[1:] {
		if snap.Timestamp.Before(earliest) {
			earliest = snap.Timestamp
		}
		if snap.Timestamp.After(latest) {
			latest = snap.Timestamp
		}
	}
	return DateRange{Earliest: &earliest, Latest: &latest}, nil
}

// GetSizeRange returns min, max and average totalSize over the history.
func (m *Manager) GetSizeRange(ctx context.Context) (SizeRange, error) {
	history, err := m.History(ctx)
	if err != nil {
		return SizeRange{}, err
	}
	s := summarize(history)
	return SizeRange{Min: s.MinSize, Max: s.MaxSize, Average: s.AverageSize}, nil
}

func (q *Query) normalize() error {
	switch q.SortBy {
	case "":
		q.SortBy = SortByDate
	case SortByDate, SortByTotalSize, SortByGzipSize, SortByBrotliSize:
	default:
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, q.SortBy)
	}

	switch q.SortOrder {
	case "":
		q.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidQuery, q.SortOrder)
	}

	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// runQuery expects a normalized query. The pipeline order is fixed: the
// summary covers the filtered set before sorting and pagination.
func runQuery(history []stats.Snapshot, q Query) *QueryResult {
	filtered := filter(history, q)
	summary := summarize(filtered)
	sortSnapshots(filtered, q.SortBy, q.SortOrder)

	total := len(filtered)
	start := q.Offset
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}

	entries := make([]stats.Snapshot, end-start)
	copy(entries, filtered[start:end])

	return &QueryResult{
		Entries: entries,
		Total:   total,
		Pagination: Pagination{
			Limit:   q.Limit,
			Offset:  q.Offset,
			HasMore: q.Offset+q.Limit < total,
		},
		Summary: summary,
	}
}

func filter(history []stats.Snapshot, q Query) []stats.Snapshot {
	out := make([]stats.Snapshot, 0, len(history))
	for _, snap := range history {
		if q.StartDate != nil && snap.Timestamp.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && snap.Timestamp.After(*q.EndDate) {
			continue
		}
		if q.MinSize != nil && snap.TotalSize < *q.MinSize {
			continue
		}
		if q.MaxSize != nil && snap.TotalSize > *q.MaxSize {
			continue
		}
		if len(q.ChunkNames) > 0 && !snap.HasAnyChunk(q.ChunkNames) {
			continue
		}
		out = append(out, snap)
	}
	return out
}

func summarize(entries []stats.Snapshot) Summary {
	if len(entries) == 0 {
		return Summary{}
	}

	s := Summary{
		MinSize:      entries[0].TotalSize,
		MaxSize:      entries[0].TotalSize,
		TotalEntries: len(entries),
	}
	var sum float64
	for _, e := range entries {
		sum += float64(e.TotalSize)
		if e.TotalSize < s.MinSize {
			s.MinSize = e.TotalSize
		}
		if e.TotalSize > s.MaxSize {
			s.MaxSize = e.TotalSize
		}
	}
	s.AverageSize = sum / float64(len(entries))
	return s
}

// sortSnapshots sorts in place. Ties keep their stored order in both directions.
func sortSnapshots(entries []stats.Snapshot, by SortField, order SortOrder) {
	cmp := func(a, b stats.Snapshot) int {
		switch by {
		case SortByTotalSize:
			return compareInt(a.TotalSize, b.TotalSize)
		case SortByGzipSize:
			return compareInt(a.GzipSize, b.GzipSize)
		case SortByBrotliSize:
			return compareInt(a.BrotliSize, b.BrotliSize)
		default:
			return a.Timestamp.Compare(b.Timestamp)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		c := cmp(entries[i], entries[j])
		if order == SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
