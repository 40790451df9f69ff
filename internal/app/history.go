package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/history"
	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var (
	historySince   string
	historyUntil   string
	historyMinSize string
	historyMaxSize string
	historyChunks  []string
	historySort    string
	historyOrder   string
	historyLimit   int
	historyOffset  int
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query recorded snapshots",
	Long: `Lists recorded snapshots, filtered, sorted and paginated.

Filters combine with AND:
  --since / --until   recorded at or after / at or before a time
                      (RFC 3339, YYYY-MM-DD, or a duration ago such as 7d or 36h)
  --min-size / --max-size
                      total size bounds, inclusive (bytes or 250KB, 1.5MiB, ...)
  --chunk             snapshots containing at least one of the named chunks

The footer shows the total number of matches and the average, smallest and
largest total size over all of them, not just the page shown.`,
	Example: `  bundlewatch history
  bundlewatch history --since 7d --sort totalSize --order desc
  bundlewatch history --chunk main.js --chunk vendor.js --limit 20 --offset 20
  bundlewatch history --min-size 1MiB --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "only snapshots recorded at or after this time")
	historyCmd.Flags().StringVar(&historyUntil, "until", "", "only snapshots recorded at or before this time")
	historyCmd.Flags().StringVar(&historyMinSize, "min-size", "", "minimum total size")
	historyCmd.Flags().StringVar(&historyMaxSize, "max-size", "", "maximum total size")
	historyCmd.Flags().StringArrayVar(&historyChunks, "chunk", nil, "only snapshots containing this chunk (repeatable)")
	historyCmd.Flags().StringVar(&historySort, "sort", "date", "sort by: date, totalSize, gzipSize, brotliSize")
	historyCmd.Flags().StringVar(&historyOrder, "order", "desc", "sort order: asc or desc")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "page size")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "entries to skip")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the query result as JSON")

	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	q, err := buildQuery(time.Now())
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.history.QueryHistory(ctx, q)
	if err != nil {
		return err
	}

	if historyJSON {
		return writeJSON(out, res)
	}
	fmt.Fprint(out, output.RenderHistoryTable(res.Entries))
	fmt.Fprintln(out)
	fmt.Fprintln(out, output.RenderQueryFooter(res))
	return nil
}

// buildQuery turns the history flags into a query. Unset filters stay nil.
func buildQuery(now time.Time) (history.Query, error) {
	q := history.Query{
		ChunkNames: historyChunks,
		SortBy:     history.SortField(historySort),
		SortOrder:  history.SortOrder(historyOrder),
		Limit:      historyLimit,
		Offset:     historyOffset,
	}
	if historySince != "" {
		t, err := parseTime(historySince, now)
		if err != nil {
			return q, fmt.Errorf("--since: %w", err)
		}
		q.StartDate = &t
	}
	if historyUntil != "" {
		t, err := parseTime(historyUntil, now)
		if err != nil {
			return q, fmt.Errorf("--until: %w", err)
		}
		q.EndDate = &t
	}
	if historyMinSize != "" {
		n, err := parseSize(historyMinSize)
		if err != nil {
			return q, fmt.Errorf("--min-size: %w", err)
		}
		q.MinSize = &n
	}
	if historyMaxSize != "" {
		n, err := parseSize(historyMaxSize)
		if err != nil {
			return q, fmt.Errorf("--max-size: %w", err)
		}
		q.MaxSize = &n
	}
	return q, nil
}
