package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var (
	chunksNamesOnly bool
	chunksJSON      bool
)

var chunksCmd = &cobra.Command{
	Use:   "chunks",
	Short: "List chunk names and the latest chunk sizes",
	Long: `Shows the chunks of the most recent snapshot, largest first, with their
share of the total size and whether they are over the maximum chunk size.

With --names, lists every chunk name seen anywhere in the history instead.
These are the names accepted by 'bundlewatch history --chunk'.`,
	Example: `  bundlewatch chunks
  bundlewatch chunks --names`,
	Args: cobra.NoArgs,
	RunE: runChunks,
}

func init() {
	chunksCmd.Flags().BoolVar(&chunksNamesOnly, "names", false, "list every chunk name in the history")
	chunksCmd.Flags().BoolVar(&chunksJSON, "json", false, "print as JSON")

	RootCmd.AddCommand(chunksCmd)
}

func runChunks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if chunksNamesOnly {
		names, err := s.history.GetChunkNames(ctx)
		if err != nil {
			return err
		}
		if chunksJSON {
			return writeJSON(out, names)
		}
		fmt.Fprint(out, output.RenderChunkNames(names))
		return nil
	}

	latest, err := s.history.Latest(ctx)
	if err != nil {
		return err
	}
	if latest == nil {
		fmt.Fprintln(out, "No snapshots recorded yet.")
		fmt.Fprintln(out, "Run 'bundlewatch record' to record one.")
		return nil
	}
	if chunksJSON {
		return writeJSON(out, latest.Chunks)
	}

	th, err := s.history.GetThresholds(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Snapshot %s, recorded %s: %s total\n\n",
		latest.ID, output.FormatTime(latest.Timestamp), output.FormatSize(latest.TotalSize))
	fmt.Fprint(out, output.RenderChunkTable(*latest, th.MaxChunkSize))
	return nil
}
