package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/bundlewatch/internal/output"
)

var (
	restoreFlagList bool
	restoreFlagYes  bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-name | latest]",
	Short: "Roll the history store back to a backup",
	Long: `Replace the history store with a backup taken before an earlier import
or restore.

Backups are created automatically before 'bundlewatch import' and
'bundlewatch restore' replace a store holding snapshots, alerts or
non-default thresholds, so a restore can itself be undone. Backups older than 90 days are removed when a new one is taken.

Arguments:
  backup-name  The name of the backup to restore (see --list)
  latest       Restore the most recent backup`,
	Example: `  bundlewatch restore --list                     # List all backups
  bundlewatch restore latest                     # Restore latest backup
  bundlewatch restore 2024-03-01-101500 --yes    # Restore without confirmation`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreFlagList, "list", false, "list available backups")
	restoreCmd.Flags().BoolVar(&restoreFlagYes, "yes", false, "skip confirmation prompt")

	RootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	backups := s.backups()

	if restoreFlagList {
		list, err := backups.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No backups available.")
			fmt.Fprintln(out, "\nBackups are created automatically before 'bundlewatch import' replaces the history.")
			return nil
		}
		fmt.Fprintf(out, "Backups in %s:\n\n", backups.Dir())
		fmt.Fprint(out, output.RenderBackupTable(list))
		fmt.Fprintf(out, "\nRestore with: bundlewatch restore <name>\n")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("backup name or 'latest' required\n\nUsage: bundlewatch restore [backup-name | latest]\n\nUse 'bundlewatch restore --list' to see available backups")
	}

	target, err := backups.Find(args[0])
	if err != nil {
		return fmt.Errorf("%w\n\nRun 'bundlewatch restore --list' to see available backups", err)
	}
	data, err := backups.Read(target)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Backup %s\n", target.Name)
	fmt.Fprintf(out, "  Created:   %s\n", target.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  Snapshots: %d\n", target.Entries)
	fmt.Fprintf(out, "  Alerts:    %d\n\n", target.Alerts)

	if !restoreFlagYes && !confirmRestore(cmd.InOrStdin(), out, target.Entries) {
		fmt.Fprintln(out, "Restore cancelled.")
		return nil
	}

	saved, err := backupStore(ctx, s)
	if err != nil {
		return err
	}

	res := s.history.ImportHistory(ctx, data)
	if !res.Success {
		if saved != nil {
			backups.Remove(*saved)
		}
		return fmt.Errorf("backup %s could not be restored: %s", target.Name, res.Message)
	}

	fmt.Fprintf(out, "✓ Restored %d snapshots and %d alerts from %s\n",
		res.EntriesImported, len(res.Alerts), target.Name)
	if saved != nil {
		fmt.Fprintf(out, "  Replaced history backed up as %s\n", saved.Name)
	}
	return nil
}

// confirmRestore prompts for a yes/no answer on in.
func confirmRestore(in io.Reader, out io.Writer, count int) bool {
	fmt.Fprintf(out, "Replace the current history with %d snapshots? [y/N]: ", count)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
