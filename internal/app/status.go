package app

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/output"
	"github.com/blackwell-systems/bundlewatch/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the recorded history",
	Long: `Displays a summary of the bundle-size history.

Shows:
  • Where the history is stored and how many snapshots it holds
  • The time span and total-size range of the recorded snapshots
  • The most recent snapshot
  • How many alerts have been raised
  • Whether the watch daemon is running`,
	Example: `  bundlewatch status`,
	Args:    cobra.NoArgs,
	RunE:    runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.history.History(ctx)
	if err != nil {
		return err
	}
	dates, err := s.history.GetDateRange(ctx)
	if err != nil {
		return err
	}
	sizes, err := s.history.GetSizeRange(ctx)
	if err != nil {
		return err
	}
	alerts, err := s.history.GetAlerts(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%-12s %s (%s)\n", "Store:", s.history.Location(), s.cfg.Backend)
	fmt.Fprintf(out, "%-12s %d of %d\n", "Snapshots:", len(entries), s.history.MaxEntries())

	if dates.Earliest == nil {
		fmt.Fprintf(out, "%-12s none yet, run 'bundlewatch record'\n", "Recorded:")
	} else {
		fmt.Fprintf(out, "%-12s %s to %s (%s)\n", "Recorded:",
			dates.Earliest.Local().Format("2006-01-02 15:04"),
			dates.Latest.Local().Format("2006-01-02 15:04"),
			humanize.RelTime(*dates.Earliest, *dates.Latest, "", "later"))
		fmt.Fprintf(out, "%-12s %s to %s, avg %s\n", "Total size:",
			output.FormatSize(sizes.Min),
			output.FormatSize(sizes.Max),
			output.FormatSize(int64(sizes.Average)))

		latest := entries[len(entries)-1]
		fmt.Fprintf(out, "%-12s %s (%s, %d chunks, %s)\n", "Latest:",
			output.FormatSize(latest.TotalSize),
			latest.ID,
			len(latest.Chunks),
			output.FormatTime(latest.Timestamp))
	}

	fmt.Fprintf(out, "%-12s %d (%d error)\n", "Alerts:",
		len(alerts), alerting.Count(alerts, alerting.SeverityError))

	pidFile, err := getDefaultPIDFile(s.cfg)
	if err != nil {
		return fmt.Errorf("failed to get PID file path: %w", err)
	}
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Fprintf(out, "%-12s running (PID file %s)\n", "Watcher:", pidFile)
	} else {
		fmt.Fprintf(out, "%-12s stopped (start: bundlewatch watch <dir> --daemon)\n", "Watcher:")
	}
	return nil
}
