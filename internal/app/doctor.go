package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/config"
	"github.com/blackwell-systems/bundlewatch/internal/store"
	"github.com/blackwell-systems/bundlewatch/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration and the history store",
	Long: `Runs diagnostic checks on your bundlewatch setup.

Checks:
  • The config file parses and is valid
  • The history store can be opened
  • The history, alert and threshold documents are readable
  • The metrics textfile directory exists, when configured
  • The watch daemon is running (warning only)

Exits non-zero when a critical check fails.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Running bundlewatch diagnostics...")
	fmt.Fprintln(out)

	criticalIssues := 0
	warningIssues := 0

	// Check 1: config
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, "✗ Config:", err)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Found 1 critical issue(s).")
		return fmt.Errorf("diagnostics failed")
	}
	if cfg.Path != "" {
		fmt.Fprintln(out, "✓ Config loaded:", cfg.Path)
	} else {
		fmt.Fprintln(out, "✓ No config file, using defaults")
		if dir, err := config.Dir(); err == nil {
			fmt.Fprintf(out, "  Searched ./bundlewatch.{yaml,yml,toml} and %s\n", dir)
		}
	}

	// Check 2: store opens and initializes
	s, err := openSession(ctx)
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot open history store:", err)
		if errors.Is(err, store.ErrIO) {
			fmt.Fprintln(out, "  Action: check that the history directory or Redis server is reachable")
		}
		criticalIssues++
	} else {
		defer s.Close()
		fmt.Fprintf(out, "✓ History store is accessible (%s): %s\n", cfg.Backend, s.history.Location())

		// Check 3: documents decode
		if entries, err := s.history.History(ctx); err != nil {
			reportDocError(out, "history", err)
			criticalIssues++
		} else if len(entries) == 0 {
			fmt.Fprintln(out, "⚠ No snapshots recorded yet")
			fmt.Fprintln(out, "  Action: Run 'bundlewatch record --measure <dist>'")
			warningIssues++
		} else {
			fmt.Fprintf(out, "✓ %d snapshots recorded (max %d)\n", len(entries), s.history.MaxEntries())
		}

		if alerts, err := s.history.GetAlerts(ctx); err != nil {
			reportDocError(out, "alerts", err)
			criticalIssues++
		} else {
			fmt.Fprintf(out, "✓ Alert log readable (%d alerts)\n", len(alerts))
		}

		if th, err := s.history.GetThresholds(ctx); err != nil {
			reportDocError(out, "thresholds", err)
			criticalIssues++
		} else if err := th.Validate(); err != nil {
			fmt.Fprintln(out, "✗ Stored thresholds are invalid:", err)
			fmt.Fprintln(out, "  Action: Run 'bundlewatch thresholds set' to fix them")
			criticalIssues++
		} else {
			fmt.Fprintln(out, "✓ Thresholds valid")
		}
	}

	// Check 4: metrics textfile directory
	if cfg.Metrics.Textfile != "" {
		dir := filepath.Dir(cfg.Metrics.Textfile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			fmt.Fprintln(out, "⚠ Metrics textfile directory missing:", dir)
			fmt.Fprintln(out, "  It will be created on the next record")
			warningIssues++
		} else {
			fmt.Fprintln(out, "✓ Metrics textfile:", cfg.Metrics.Textfile)
		}
	}

	// Check 5: watch daemon (warning only)
	pidFile, err := getDefaultPIDFile(cfg)
	if err != nil {
		fmt.Fprintln(out, "⚠ Failed to get PID file path:", err)
		warningIssues++
	} else if running, err := watcher.IsDaemonRunning(pidFile); err != nil {
		fmt.Fprintln(out, "⚠ Failed to check daemon status:", err)
		warningIssues++
	} else if !running {
		fmt.Fprintln(out, "⚠ Watch daemon not running")
		fmt.Fprintln(out, "  This is fine if you record from CI with 'bundlewatch record'")
		warningIssues++
	} else {
		fmt.Fprintln(out, "✓ Watch daemon running")
	}

	fmt.Fprintln(out)
	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}
	if warningIssues > 0 {
		fmt.Fprintf(out, "Found %d warning(s). bundlewatch is functional.\n", warningIssues)
		return nil
	}
	fmt.Fprintln(out, "✓ All checks passed!")
	return nil
}

func reportDocError(out io.Writer, doc string, err error) {
	switch {
	case errors.Is(err, store.ErrCorrupt):
		fmt.Fprintf(out, "✗ %s document is corrupt: %v\n", doc, err)
		fmt.Fprintln(out, "  Action: restore it from 'bundlewatch export' output with 'bundlewatch import'")
	default:
		fmt.Fprintf(out, "✗ Cannot read %s: %v\n", doc, err)
	}
}
