package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var (
	alertsSeverity string
	alertsLimit    int
	alertsJSON     bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show the alert log",
	Long: `Shows the alerts raised by recorded snapshots, newest first.

Alert types:
  total-size-increase      total size grew more than the threshold (warning)
  chunk-size-increase      a chunk grew more than the threshold (warning)
  max-size-exceeded        total size is over the maximum (error)
  max-chunk-size-exceeded  a chunk is over the maximum (error)`,
	Example: `  bundlewatch alerts
  bundlewatch alerts --severity error
  bundlewatch alerts --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runAlerts,
}

func init() {
	alertsCmd.Flags().StringVar(&alertsSeverity, "severity", "", "only alerts of this severity or worse (warning, error)")
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 0, "show only the most recent N alerts (0 shows all)")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "print alerts as JSON, oldest first")

	RootCmd.AddCommand(alertsCmd)
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var minSeverity alerting.Severity
	switch alertsSeverity {
	case "":
	case string(alerting.SeverityWarning), string(alerting.SeverityError):
		minSeverity = alerting.ParseSeverity(alertsSeverity)
	default:
		return fmt.Errorf("invalid --severity %q: must be 'warning' or 'error'", alertsSeverity)
	}
	if alertsLimit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	alerts, err := s.history.GetAlerts(ctx)
	if err != nil {
		return err
	}
	if minSeverity != "" {
		filtered := alerts[:0:0]
		for _, a := range alerts {
			if a.Severity.AtLeast(minSeverity) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}
	// the log is oldest first
	if alertsLimit > 0 && len(alerts) > alertsLimit {
		alerts = alerts[len(alerts)-alertsLimit:]
	}

	if alertsJSON {
		return writeJSON(out, alerts)
	}
	fmt.Fprint(out, output.RenderAlertTable(alerts))
	if len(alerts) > 0 {
		fmt.Fprintf(out, "\n%d alert(s), %d error(s)\n",
			len(alerts), alerting.Count(alerts, alerting.SeverityError))
	}
	return nil
}
