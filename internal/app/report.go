package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render an HTML trend report",
	Long: `Renders the recorded history as a self-contained HTML page with size
trend and per-chunk charts. The report is written to bundle-report.html
inside the history directory.`,
	Example: `  bundlewatch report
  bundlewatch report --dir .bundlewatch`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	RootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	spinner := output.NewSpinner("Rendering report")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	path, err := s.history.GenerateReport(ctx)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage("✓ Report generated")

	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
