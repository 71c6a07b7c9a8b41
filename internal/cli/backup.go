package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/esantos/moneta/internal/syncengine"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage local safety backups",
	Long: `Safety backups are taken automatically before every destructive
operation (push, pull, restore, reset). The most recent five per
operation are kept.`,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List safety backups",
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-path>",
	Short: "Restore the database from a safety backup",
	Long: `Replace the live database with a safety backup. The current database
is backed up first. Restoring invalidates the recorded sync point, so
the next check reports local changes until they are pushed.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupRestore,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the local database and sync configuration",
	Long: `Delete the local database and clear the sync configuration. A final
safety backup is taken first. The cloud backup is left untouched.`,
	RunE: runReset,
}

var backupTag string

func init() {
	backupListCmd.Flags().StringVar(&backupTag, "tag", "", "Only list backups for one operation (pre-push, pre-pull, ...)")

	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(resetCmd)
}

// backupList renders the backup inventory as a table.
type backupList []syncengine.Backup

func (l backupList) Headers() []string {
	return []string{"Tag", "Created", "Size", "Path"}
}

func (l backupList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, b := range l {
		rows = append(rows, []string{
			b.Tag,
			b.CreatedAt.Format(time.RFC3339),
			fmt.Sprintf("%d", b.Size),
			b.Path,
		})
	}
	return rows
}

func (l backupList) EmptyMessage() string {
	return "No safety backups found"
}

func runBackupList(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return writeEngineError(out, "backup.list", err)
	}
	defer a.Close()

	backups, err := a.engine.Backups().List(backupTag)
	if err != nil {
		return writeEngineError(out, "backup.list", err)
	}
	if flags.OutputFormat == types.OutputFormatTable {
		return out.WriteSuccess("backup.list", backupList(backups))
	}
	return out.WriteSuccess("backup.list", map[string]interface{}{
		"backups": backups,
	})
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return writeEngineError(out, "backup.restore", err)
	}
	defer a.Close()

	if err := a.engine.RestoreBackup(ctx, args[0]); err != nil {
		return writeEngineError(out, "backup.restore", err)
	}

	out.Log("Database restored. Run 'moneta sync check' before pushing.")
	return out.WriteSuccess("backup.restore", map[string]interface{}{
		"restoredFrom": args[0],
	})
}

func runReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	if !flags.Yes {
		return out.WriteError("reset", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"reset deletes the local database; pass --yes to confirm").Build())
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return writeEngineError(out, "reset", err)
	}
	defer a.Close()

	if err := a.engine.ResetLocal(ctx); err != nil {
		return writeEngineError(out, "reset", err)
	}

	out.Log("Local database deleted and sync configuration cleared.")
	return out.WriteSuccess("reset", map[string]interface{}{
		"status": "reset",
	})
}
