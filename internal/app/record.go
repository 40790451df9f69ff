package app

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/measure"
	"github.com/blackwell-systems/bundlewatch/internal/output"
	"github.com/blackwell-systems/bundlewatch/internal/stats"
)

var (
	recordMeasureDir string
	recordPatterns   []string
	recordNoGzip     bool
	recordNoBrotli   bool
	recordFailOn     string
	recordJSON       bool
)

var recordCmd = &cobra.Command{
	Use:   "record [stats.json | -]",
	Short: "Record a bundle-size snapshot",
	Long: `Records a snapshot of the bundle and checks it against the previous one.

The snapshot comes from one of:
  • a stats JSON file written by your analyzer ({"totalSize", "gzipSize",
    "brotliSize", "chunks": [{"name", "size", "modules"}]})
  • standard input, when the argument is "-"
  • --measure <dir>: every matching file in a build directory becomes a chunk
    and gzip/brotli sizes are computed in-process

Any alerts raised by the new snapshot are printed. Use --fail-on to make the
command exit non-zero when alerts of a given severity were raised, e.g. in CI.`,
	Example: `  # Measure a build directory
  bundlewatch record --measure dist/

  # Record analyzer output
  bundlewatch record stats.json
  webpack-stats | bundlewatch record -

  # Fail the CI job on error-level alerts
  bundlewatch record --measure dist/ --fail-on error`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecord,
}

func init() {
	recordCmd.Flags().StringVar(&recordMeasureDir, "measure", "", "measure the build output in this directory")
	recordCmd.Flags().StringSliceVar(&recordPatterns, "pattern", nil, "file patterns to measure (default from config: **/*.js, **/*.css)")
	recordCmd.Flags().BoolVar(&recordNoGzip, "no-gzip", false, "skip gzip sizes when measuring")
	recordCmd.Flags().BoolVar(&recordNoBrotli, "no-brotli", false, "skip brotli sizes when measuring")
	recordCmd.Flags().StringVar(&recordFailOn, "fail-on", "", "exit non-zero on alerts of this severity or worse (warning, error)")
	recordCmd.Flags().BoolVar(&recordJSON, "json", false, "print the stored snapshot and alerts as JSON")

	RootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var failOn alerting.Severity
	switch recordFailOn {
	case "":
	case string(alerting.SeverityWarning), string(alerting.SeverityError):
		failOn = alerting.ParseSeverity(recordFailOn)
	default:
		return fmt.Errorf("invalid --fail-on %q: must be 'warning' or 'error'", recordFailOn)
	}

	if recordMeasureDir != "" && len(args) > 0 {
		return fmt.Errorf("use either a stats file or --measure, not both")
	}
	if recordMeasureDir == "" && len(args) == 0 {
		return fmt.Errorf("a stats file, '-' or --measure <dir> is required")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var bs stats.BundleStats
	if recordMeasureDir != "" {
		opts := s.cfg.MeasureOptions()
		if len(recordPatterns) > 0 {
			opts.Patterns = recordPatterns
		}
		if recordNoGzip {
			opts.Gzip = false
		}
		if recordNoBrotli {
			opts.Brotli = false
		}

		var (
			bar  *output.ProgressBar
			once sync.Once
		)
		opts.Progress = func(done, total int) {
			once.Do(func() {
				bar = output.NewProgress(total, "Measuring "+recordMeasureDir)
				bar.SetWriter(cmd.ErrOrStderr())
			})
			bar.Increment()
		}
		bs, err = measure.Dir(ctx, recordMeasureDir, opts)
		if err != nil {
			return fmt.Errorf("failed to measure %s: %w", recordMeasureDir, err)
		}
		bar.Finish()
	} else {
		bs, err = readStats(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
	}

	res, err := s.history.SaveSnapshot(ctx, bs)
	if err != nil {
		return err
	}
	if err := s.flushMetrics(); err != nil {
		return err
	}

	if recordJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, output.RenderSaveResult(res))
	}

	if failOn != "" {
		if n := alerting.Count(res.Alerts, failOn); n > 0 {
			return fmt.Errorf("%d alert(s) at severity %s or above", n, failOn)
		}
	}
	return nil
}

func readStats(stdin io.Reader, arg string) (stats.BundleStats, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return stats.BundleStats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	return stats.Parse(data)
}
