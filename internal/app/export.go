package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/alerting"
	"github.com/blackwell-systems/bundlewatch/internal/backup"
)

var (
	exportOutput   string
	importNoBackup bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history, alerts and thresholds as JSON",
	Long: `Writes the whole history store as one JSON document:

  {"version": "1.0.0", "exportDate": ..., "history": [...],
   "alerts": [...], "thresholds": {...}}

The document can be restored with 'bundlewatch import', on this machine or
another one, into any backend.`,
	Example: `  bundlewatch export > bundle-history.json
  bundlewatch export -o bundle-history.json`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file | ->",
	Short: "Replace the history store with an exported document",
	Long: `Validates an export document and, if it is well formed, replaces the stored
history, alerts and thresholds with its contents.

An invalid document leaves the store untouched. Imported history is not
trimmed: if it holds more snapshots than the retention limit, the oldest are
evicted on the next record.

Unless --no-backup is given, a store holding snapshots, alerts or
non-default thresholds is exported to <history dir>/backups before it is
replaced. Use 'bundlewatch restore' to
roll an import back.`,
	Example: `  bundlewatch import bundle-history.json
  curl -s https://ci.example.com/artifacts/bundle-history.json | bundlewatch import -`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	importCmd.Flags().BoolVar(&importNoBackup, "no-backup", false, "replace the store without backing it up first")

	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	env, err := s.history.ExportHistory(ctx)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return writeJSON(cmd.OutOrStdout(), env)
	}

	var buf bytes.Buffer
	if err := writeJSON(&buf, env); err != nil {
		return err
	}
	if err := os.WriteFile(exportOutput, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d snapshots and %d alerts to %s\n",
		len(env.History), len(env.Alerts), exportOutput)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	var saved *backup.Backup
	if !importNoBackup {
		b, err := backupStore(ctx, s)
		if err != nil {
			return err
		}
		saved = b
	}

	res := s.history.ImportHistory(ctx, data)
	if !res.Success {
		if saved != nil {
			s.backups().Remove(*saved)
		}
		return fmt.Errorf("%s", res.Message)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ %s (%d alerts)\n", res.Message, len(res.Alerts))
	if saved != nil {
		fmt.Fprintf(out, "  Previous history backed up as %s\n", saved.Name)
		fmt.Fprintf(out, "  Undo with: bundlewatch restore %s\n", saved.Name)
	}
	return nil
}

// backupStore saves the current store contents, or returns nil when the
// store is empty and still on default thresholds.
func backupStore(ctx context.Context, s *session) (*backup.Backup, error) {
	env, err := s.history.ExportHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history for backup: %w", err)
	}
	if len(env.History) == 0 && len(env.Alerts) == 0 && env.Thresholds == alerting.DefaultThresholds() {
		return nil, nil
	}

	backups := s.backups()
	b, err := backups.Create(env)
	if err != nil {
		return nil, err
	}
	if _, err := backups.Cleanup(backup.DefaultMaxAge); err != nil {
		slog.Warn("failed to clean up old backups", "error", err)
	}
	return &b, nil
}
