package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the history store",
	Long: `Creates the history store for the configured backend and applies any
threshold overrides from the config file.

Running init again is safe: existing history is kept and the configured
thresholds are applied on top of the stored ones.`,
	Example: `  bundlewatch init
  bundlewatch init --backend sqlite --dir .bundlewatch`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	RootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	thresholds, err := s.history.GetThresholds(ctx)
	if err != nil {
		return err
	}
	if !s.cfg.Thresholds.IsEmpty() {
		thresholds, err = s.history.SetThresholds(ctx, s.cfg.Thresholds)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "✓ History initialized (%s backend): %s\n", s.cfg.Backend, s.history.Location())
	if s.cfg.Path != "" {
		fmt.Fprintf(out, "  Config: %s\n", s.cfg.Path)
	}
	fmt.Fprintf(out, "  Keeping the last %d snapshots\n", s.history.MaxEntries())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Thresholds:")
	fmt.Fprint(out, output.RenderThresholds(thresholds))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Next: bundlewatch record --measure dist/")
	return nil
}
