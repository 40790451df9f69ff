package history

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

// seed stores snapshots with the given total sizes, one minute apart.
func seed(t *testing.T, m *Manager, sizes ...int64) {
	t.Helper()
	for _, s := range sizes {
		mustSave(t, m, bundle(s))
	}
}

func totals(entries []stats.Snapshot) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.TotalSize
	}
	return out
}

func mustQuery(t *testing.T, m *Manager, q Query) *QueryResult {
	t.Helper()
	res, err := m.QueryHistory(context.Background(), q)
	if err != nil {
		t.Fatalf("QueryHistory(%+v) error = %v", q, err)
	}
	return res
}

func TestQueryHistory_EmptyStore(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	res := mustQuery(t, m, Query{})
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("expected empty, non-nil entries, got %#v", res.Entries)
	}
	if res.Total != 0 {
		t.Errorf("Total = %d, want 0", res.Total)
	}
	if res.Summary != (Summary{}) {
		t.Errorf("Summary = %+v, want zeros", res.Summary)
	}
	if want := (Pagination{Limit: 10, Offset: 0, HasMore: false}); res.Pagination != want {
		t.Errorf("Pagination = %+v, want %+v", res.Pagination, want)
	}
}

func TestQueryHistory_DefaultsSortNewestFirst(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 100, 300, 200)

	if got := totals(mustQuery(t, m, Query{}).Entries); !reflect.DeepEqual(got, []int64{200, 300, 100}) {
		t.Errorf("default order = %v, want [200 300 100]", got)
	}
}

func TestQueryHistory_Sorting(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 100, 300, 200)

	tests := []struct {
		name  string
		query Query
		want  []int64
	}{
		{"total size ascending", Query{SortBy: SortByTotalSize, SortOrder: SortAsc}, []int64{100, 200, 300}},
		{"gzip size descending", Query{SortBy: SortByGzipSize}, []int64{300, 200, 100}},
		{"date ascending", Query{SortBy: SortByDate, SortOrder: SortAsc}, []int64{100, 300, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := totals(mustQuery(t, m, tt.query).Entries); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryHistory_SortIsStable(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 500, 500, 500)

	history := mustHistory(t, m)
	for _, order := range []SortOrder{SortAsc, SortDesc} {
		res := mustQuery(t, m, Query{SortBy: SortByTotalSize, SortOrder: order})
		if len(res.Entries) != 3 {
			t.Fatalf("order %s: expected 3 entries, got %d", order, len(res.Entries))
		}
		for i := range history {
			if res.Entries[i].ID != history[i].ID {
				t.Errorf("order %s: entry %d moved; equal keys must keep insertion order", order, i)
			}
		}
	}
}

func TestQueryHistory_InvalidSort(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	for _, q := range []Query{{SortBy: "size"}, {SortOrder: "up"}} {
		if _, err := m.QueryHistory(context.Background(), q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("QueryHistory(%+v) error = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestQueryHistory_Filters(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	mustSave(t, m, bundle(100, stats.Chunk{Name: "main", Size: 100}))
	mustSave(t, m, bundle(0, stats.Chunk{Name: "vendor", Size: 0}))
	mustSave(t, m, bundle(300, stats.Chunk{Name: "main", Size: 200}, stats.Chunk{Name: "lazy", Size: 100}))

	tests := []struct {
		name  string
		query Query
		want  []int64
	}{
		{"min size inclusive", Query{MinSize: ptr[int64](100), SortOrder: SortAsc}, []int64{100, 300}},
		{"zero max size is a bound", Query{MaxSize: ptr[int64](0)}, []int64{0}},
		{"size window", Query{MinSize: ptr[int64](50), MaxSize: ptr[int64](100)}, []int64{100}},
		{"start date inclusive", Query{StartDate: ptr(epoch.Add(time.Minute)), SortOrder: SortAsc}, []int64{0, 300}},
		{"end date inclusive", Query{EndDate: ptr(epoch.Add(time.Minute)), SortOrder: SortAsc}, []int64{100, 0}},
		{"any chunk matches", Query{ChunkNames: []string{"lazy", "vendor"}, SortOrder: SortAsc}, []int64{0, 300}},
		{"unknown chunk", Query{ChunkNames: []string{"nope"}}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustQuery(t, m, tt.query)
			if got := totals(res.Entries); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("entries = %v, want %v", got, tt.want)
			}
			if res.Total != len(tt.want) {
				t.Errorf("Total = %d, want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestQueryHistory_PaginationInvariant(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 10, 20, 30, 40, 50, 60, 70)

	for _, limit := range []int{1, 2, 3, 7, 10} {
		for _, offset := range []int{0, 1, 3, 6, 7, 12} {
			res := mustQuery(t, m, Query{Limit: limit, Offset: offset})

			want := min(limit, max(7-offset, 0))
			if len(res.Entries) != want {
				t.Errorf("limit=%d offset=%d: got %d entries, want %d", limit, offset, len(res.Entries), want)
			}
			if res.Total != 7 {
				t.Errorf("limit=%d offset=%d: Total = %d, want 7", limit, offset, res.Total)
			}
			if res.Pagination.HasMore != (offset+limit < 7) {
				t.Errorf("limit=%d offset=%d: HasMore = %v", limit, offset, res.Pagination.HasMore)
			}
		}
	}
}

func TestQueryHistory_PaginationNormalizesBadInput(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 1, 2, 3)

	res := mustQuery(t, m, Query{Limit: -4, Offset: -2})
	if res.Pagination.Limit != 10 || res.Pagination.Offset != 0 {
		t.Errorf("Pagination = %+v, want limit 10 offset 0", res.Pagination)
	}
	if len(res.Entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(res.Entries))
	}
}

func TestQueryHistory_SummaryIgnoresPagination(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	seed(t, m, 100, 200, 300, 400)

	res := mustQuery(t, m, Query{Limit: 1, MinSize: ptr[int64](200)})
	if len(res.Entries) != 1 {
		t.Fatalf("expected a page of 1, got %d", len(res.Entries))
	}
	if want := (Summary{AverageSize: 300, MinSize: 200, MaxSize: 400, TotalEntries: 3}); res.Summary != want {
		t.Errorf("Summary = %+v, want %+v", res.Summary, want)
	}
	if res.Total != res.Summary.TotalEntries {
		t.Errorf("Total %d != Summary.TotalEntries %d", res.Total, res.Summary.TotalEntries)
	}
}

func TestGetChunkNames(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	names, err := m.GetChunkNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("expected no chunk names, got %v", names)
	}

	mustSave(t, m, bundle(300, stats.Chunk{Name: "vendor", Size: 200}, stats.Chunk{Name: "main", Size: 100}))
	mustSave(t, m, bundle(400, stats.Chunk{Name: "main", Size: 100}, stats.Chunk{Name: "admin", Size: 300}))

	names, err = m.GetChunkNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"admin", "main", "vendor"}; !reflect.DeepEqual(names, want) {
		t.Errorf("GetChunkNames() = %v, want %v", names, want)
	}
}

func TestGetDateRangeAndSizeRange(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	dr, err := m.GetDateRange(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dr.Earliest != nil || dr.Latest != nil {
		t.Errorf("expected nil date range on an empty store, got %+v", dr)
	}
	sr, err := m.GetSizeRange(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sr != (SizeRange{}) {
		t.Errorf("expected zero size range, got %+v", sr)
	}

	seed(t, m, 200, 100, 600)

	dr, err = m.GetDateRange(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dr.Earliest == nil || dr.Latest == nil {
		t.Fatalf("expected a date range, got %+v", dr)
	}
	if !dr.Earliest.Equal(epoch) || !dr.Latest.Equal(epoch.Add(2*time.Minute)) {
		t.Errorf("date range = %v to %v", *dr.Earliest, *dr.Latest)
	}

	sr, err = m.GetSizeRange(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := (SizeRange{Min: 100, Max: 600, Average: 300}); sr != want {
		t.Errorf("GetSizeRange() = %+v, want %+v", sr, want)
	}
}
