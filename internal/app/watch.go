package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/output"
	"github.com/blackwell-systems/bundlewatch/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool

	watchCmd = &cobra.Command{
		Use:   "watch <drop-dir>",
		Short: "Record stats files dropped into a directory",
		Long: `Watches a directory and records every stats JSON file written into it.

This lets build tools that cannot call bundlewatch directly hand over their
analyzer output by writing it to a shared directory. Each file is handled once:
  • recorded files are renamed to <name>.recorded
  • files that are not valid stats are renamed to <name>.rejected
  • files that could not be stored are left in place and retried

Producers should write to a temporary name and rename it into the directory.
A file rejected because it was read mid-write is retried once it is written
to again, but only while the same watcher keeps running.

Files already in the directory when the watcher starts are recorded first.
Alerts raised by recorded snapshots are printed (foreground) or logged (daemon).

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as a background process
  • Stop: Stop a running daemon`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  bundlewatch watch ./bundle-drop

  # Run as background daemon
  bundlewatch watch ./bundle-drop --daemon

  # Stop running daemon
  bundlewatch watch --stop`,
		Args: func(cmd *cobra.Command, args []string) error {
			if watchStop {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: <history dir>/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: <history dir>/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Get default paths if not specified
	if watchPIDFile == "" {
		if watchPIDFile, err = getDefaultPIDFile(cfg); err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
	}
	if watchLogFile == "" {
		if watchLogFile, err = getDefaultLogFile(cfg); err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
	}

	if watchStop {
		return stopWatchDaemon(cmd)
	}

	dropDir := args[0]
	if info, err := os.Stat(dropDir); err != nil || !info.IsDir() {
		return fmt.Errorf("drop directory %s does not exist", dropDir)
	}

	if watchDaemon {
		return startWatchDaemon(cmd, dropDir)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := watcher.Options{
		Patterns: s.cfg.Watch.Patterns,
		Debounce: s.cfg.Watch.Debounce,
	}
	if !watchDaemonChild {
		opts.OnRecord = func(res watcher.Result) {
			printWatchResult(out, res)
		}
	}
	if s.metrics != nil {
		printResult := opts.OnRecord
		opts.OnRecord = func(res watcher.Result) {
			if printResult != nil {
				printResult(res)
			}
			if res.Status == watcher.StatusRecorded {
				if err := s.flushMetrics(); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
				}
			}
		}
	}

	w, err := watcher.New(s.history, dropDir, opts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Handle daemon child process
	if watchDaemonChild {
		// stdout/stderr are redirected to the log file
		return w.RunDaemon(ctx, watchPIDFile)
	}

	return runWatchForeground(ctx, out, w)
}

func stopWatchDaemon(cmd *cobra.Command) error {
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if !running {
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(cmd *cobra.Command, dropDir string) error {
	out := cmd.OutOrStdout()

	// the child re-runs this command line without --daemon
	var childArgs []string
	for _, a := range os.Args[1:] {
		if a != "--daemon" && a != "--daemon=true" {
			childArgs = append(childArgs, a)
		}
	}

	for _, p := range []string{watchPIDFile, watchLogFile} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(p), err)
		}
	}

	spinner := output.NewSpinner("Starting daemon")
	spinner.SetWriter(cmd.ErrOrStderr())
	spinner.Start()
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, childArgs); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Fprintf(out, "\nWatching %s for stats files\n", dropDir)
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: bundlewatch watch --stop\n")
	return nil
}

func runWatchForeground(ctx context.Context, out io.Writer, w *watcher.Watcher) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fmt.Fprintf(out, "Watching %s for stats files (press Ctrl+C to stop)...\n\n", w.Dir())
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("watcher failed: %w", err)
	}
	fmt.Fprintln(out, "\nWatcher stopped")
	return nil
}

func printWatchResult(out io.Writer, res watcher.Result) {
	switch res.Status {
	case watcher.StatusRecorded:
		fmt.Fprintf(out, "%s\n", res.Path)
		fmt.Fprint(out, output.RenderSaveResult(res.Save))
		fmt.Fprintln(out)
	case watcher.StatusRejected:
		fmt.Fprintf(out, "✗ %s rejected: %v\n\n", res.Path, res.Err)
	case watcher.StatusFailed:
		fmt.Fprintf(out, "✗ %s not recorded, will retry: %v\n\n", res.Path, res.Err)
	}
}
