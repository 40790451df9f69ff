package app

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	historyDir  string
	backendKind string
	verbose     bool
)

// RootCmd is the base command for bundlewatch.
var RootCmd = &cobra.Command{
	Use:   "bundlewatch",
	Short: "Track bundle sizes over time and alert on regressions",
	Long: `bundlewatch records the size of your build output after every build and
warns you when it grows.

Each recorded snapshot holds the total, gzip and brotli sizes of the bundle
plus the size of every chunk. When a new snapshot is recorded it is compared
with the previous one and alerts are raised when:
  • the total size grew by more than the total-size threshold (warning)
  • a chunk grew by more than the chunk-size threshold (warning)
  • the total size is over the maximum total size (error)
  • a chunk is over the maximum chunk size (error)

The history keeps the most recent snapshots (100 by default) and can be
queried, exported, imported and rendered as an HTML trend report.

Quick start:
  bundlewatch init
  bundlewatch record --measure dist/
  bundlewatch history
  bundlewatch report`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./bundlewatch.yaml or ~/.config/bundlewatch/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&historyDir, "dir", "", "history directory (default: .bundle-size-history)")
	RootCmd.PersistentFlags().StringVar(&backendKind, "backend", "", "storage backend: json, sqlite, redis or memory")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}

func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
