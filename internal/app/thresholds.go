package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var (
	thresholdsJSON bool

	setTotalPct float64
	setChunkPct float64
	setMaxTotal string
	setMaxChunk string
)

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show the alert thresholds",
	Long: `Shows the thresholds new snapshots are checked against.

Defaults: total size +10%, chunk size +15%, max total 5 MiB, max chunk 2 MiB.`,
	Example: `  bundlewatch thresholds
  bundlewatch thresholds set --total-pct 5 --max-total 2MiB`,
	Args: cobra.NoArgs,
	RunE: runThresholds,
}

var thresholdsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change one or more alert thresholds",
	Long: `Updates the given thresholds and keeps the others unchanged.

Percentages are increases relative to the previous snapshot. Sizes accept
bytes or humanized values such as 500KB or 1.5MiB.`,
	Example: `  bundlewatch thresholds set --chunk-pct 20
  bundlewatch thresholds set --max-total 3MiB --max-chunk 1MiB`,
	Args: cobra.NoArgs,
	RunE: runThresholdsSet,
}

func init() {
	thresholdsCmd.Flags().BoolVar(&thresholdsJSON, "json", false, "print thresholds as JSON")

	thresholdsSetCmd.Flags().Float64Var(&setTotalPct, "total-pct", 0, "total size increase threshold in percent")
	thresholdsSetCmd.Flags().Float64Var(&setChunkPct, "chunk-pct", 0, "chunk size increase threshold in percent")
	thresholdsSetCmd.Flags().StringVar(&setMaxTotal, "max-total", "", "maximum total size")
	thresholdsSetCmd.Flags().StringVar(&setMaxChunk, "max-chunk", "", "maximum chunk size")

	thresholdsCmd.AddCommand(thresholdsSetCmd)
	RootCmd.AddCommand(thresholdsCmd)
}

func runThresholds(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	th, err := s.history.GetThresholds(ctx)
	if err != nil {
		return err
	}
	if thresholdsJSON {
		return writeJSON(out, th)
	}
	fmt.Fprint(out, output.RenderThresholds(th))
	return nil
}

func runThresholdsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	patch, err := thresholdsPatch(cmd)
	if err != nil {
		return err
	}
	if patch.IsEmpty() {
		return fmt.Errorf("no thresholds given (use --total-pct, --chunk-pct, --max-total or --max-chunk)")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	th, err := s.history.SetThresholds(ctx, patch)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Thresholds updated")
	fmt.Fprint(out, output.RenderThresholds(th))
	return nil
}

// thresholdsPatch includes only the flags given on the command line.
func thresholdsPatch(cmd *cobra.Command) (alerting.ThresholdsPatch, error) {
	var patch alerting.ThresholdsPatch
	flags := cmd.Flags()
	if flags.Changed("total-pct") {
		v := setTotalPct
		patch.TotalSizeIncreaseThreshold = &v
	}
	if flags.Changed("chunk-pct") {
		v := setChunkPct
		patch.ChunkSizeIncreaseThreshold = &v
	}
	if flags.Changed("max-total") {
		n, err := parseSize(setMaxTotal)
		if err != nil {
			return patch, fmt.Errorf("--max-total: %w", err)
		}
		patch.MaxTotalSize = &n
	}
	if flags.Changed("max-chunk") {
		n, err := parseSize(setMaxChunk)
		if err != nil {
			return patch, fmt.Errorf("--max-chunk: %w", err)
		}
		patch.MaxChunkSize = &n
	}
	return patch, nil
}
