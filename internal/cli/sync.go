package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/esantos/moneta/internal/auth"
	"github.com/esantos/moneta/internal/config"
	"github.com/esantos/moneta/internal/syncengine"
	"github.com/esantos/moneta/internal/syncstore"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the database with its cloud backup",
}

var syncCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check sync state against the cloud backup",
	Long: `Compare the local database with the cloud backup and report the
sync state. The check is read-only: no file content is transferred and
nothing is modified.`,
	RunE: runSyncCheck,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync configuration and current state",
	RunE:  runSyncStatus,
}

var syncPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local database to the cloud backup",
	Long: `Upload the local database, overwriting the cloud backup. A local
safety backup is taken first. When the cloud copy has changes of its
own, push refuses unless --yes is given; 'moneta sync resolve' is the
guided way to settle divergence.`,
	RunE: runSyncPush,
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download the cloud backup over the local database",
	Long: `Download the cloud backup and replace the local database with it.
The existing database is backed up first and restored automatically if
the replacement fails. When the local copy has unpushed changes, pull
refuses unless --yes is given.`,
	RunE: runSyncPull,
}

var syncConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Configure the cloud location for backups",
	Long: `Record where the cloud backup lives. For Google Drive pass a folder
ID (the backup file is created inside it) or the ID of an existing
database file. For S3 the bucket comes from the configuration and the
same flags select a key prefix or exact key.

Connecting only records the target; the first push or pull moves data.`,
	RunE: runSyncConnect,
}

var syncDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Stop syncing and forget the cloud location",
	Long: `Clear the sync configuration. The local database and the cloud
backup are both left in place; a safety backup of the database is taken
since it will no longer be protected by cloud copies.`,
	RunE: runSyncDisconnect,
}

var (
	connectFolderID string
	connectFileID   string
	connectName     string
)

func init() {
	syncConnectCmd.Flags().StringVar(&connectFolderID, "folder", "", "Folder ID (or key prefix) to keep the backup in")
	syncConnectCmd.Flags().StringVar(&connectFileID, "file", "", "File ID (or object key) of an existing backup")
	syncConnectCmd.Flags().StringVar(&connectName, "name", "", "Display name for the target")

	syncCmd.AddCommand(syncCheckCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPushCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncConnectCmd)
	syncCmd.AddCommand(syncDisconnectCmd)
	rootCmd.AddCommand(syncCmd)
}

// syncStateView is the command payload for check/status output.
type syncStateView struct {
	types.SyncState
	Provider string `json:"provider,omitempty"`
	Target   string `json:"target,omitempty"`
}

func (v syncStateView) AsTableRenderer() types.TableRenderer {
	return stateTable{v}
}

type stateTable struct {
	v syncStateView
}

func (t stateTable) Headers() []string {
	return []string{"Field", "Value"}
}

func (t stateTable) Rows() [][]string {
	rows := [][]string{
		{"Status", colorStatus(t.v.Status)},
		{"Editing", formatBool(t.v.CanEdit, "allowed", "blocked")},
	}
	if t.v.Target != "" {
		rows = append(rows, []string{"Target", t.v.Target})
	}
	if t.v.Provider != "" {
		rows = append(rows, []string{"Provider", t.v.Provider})
	}
	rows = append(rows,
		[]string{"Local changes", formatBool(t.v.HasLocalChanges, "yes", "no")},
		[]string{"Cloud changes", formatBool(t.v.HasCloudChanges, "yes", "no")},
		[]string{"Last synced", formatTime(t.v.LastSyncedAt)},
		[]string{"Cloud modified", formatTime(t.v.CloudModifiedAt)},
	)
	if t.v.Message != "" {
		rows = append(rows, []string{"Note", t.v.Message})
	}
	if t.v.Warning != "" {
		rows = append(rows, []string{"Warning", color.YellowString(t.v.Warning)})
	}
	return rows
}

func (t stateTable) EmptyMessage() string {
	return "No sync state available"
}

func colorStatus(status types.SyncStatus) string {
	switch status {
	case types.StatusInSync:
		return color.GreenString(string(status))
	case types.StatusConflict, types.StatusCloudOnly, types.StatusNeverSynced:
		return color.RedString(string(status))
	case types.StatusCheckFailed, types.StatusLocalOnly:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func formatBool(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func runSyncCheck(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return writeEngineError(out, "sync.check", err)
	}
	defer a.Close()

	state, err := a.engine.Evaluate(ctx)
	if err != nil {
		return writeEngineError(out, "sync.check", err)
	}
	if state.Warning != "" {
		out.AddWarning(utils.ErrCodeCheckFailed, state.Warning, "warning")
	}
	return out.WriteSuccess("sync.check", stateView(a, state))
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	// Status degrades to local-only information when the remote cannot
	// be built (e.g. not logged in yet); Evaluate then reports
	// check_failed rather than erroring out.
	a, err := newApp(ctx, true)
	if err != nil {
		if a2, err2 := newApp(ctx, false); err2 == nil {
			defer a2.Close()
			cfg, loadErr := a2.store.Load(ctx)
			if loadErr != nil {
				return writeEngineError(out, "sync.status", loadErr)
			}
			out.AddWarning(utils.ErrCodeCheckFailed, err.Error(), "warning")
			return out.WriteSuccess("sync.status", configView(a2, cfg))
		}
		return writeEngineError(out, "sync.status", err)
	}
	defer a.Close()

	state, err := a.engine.Evaluate(ctx)
	if err != nil {
		return writeEngineError(out, "sync.status", err)
	}
	return out.WriteSuccess("sync.status", stateView(a, state))
}

func runSyncConnect(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	if (connectFolderID == "") == (connectFileID == "") {
		return out.WriteError("sync.connect", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"exactly one of --folder or --file is required").Build())
	}

	target := types.SyncTarget{Kind: types.TargetFolder, ID: connectFolderID, Name: connectName}
	if connectFileID != "" {
		target = types.SyncTarget{Kind: types.TargetFile, ID: connectFileID, Name: connectName}
	}
	if target.Name == "" {
		target.Name = target.ID
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return writeEngineError(out, "sync.connect", err)
	}
	defer a.Close()

	if err := a.engine.Connect(ctx, syncstore.Config{Configured: true, Target: &target}); err != nil {
		return writeEngineError(out, "sync.connect", err)
	}

	out.Log("Sync target configured: %s (%s)", target.Name, target.Kind)
	return out.WriteSuccess("sync.connect", map[string]interface{}{
		"provider": a.cfg.RemoteProvider,
		"kind":     target.Kind,
		"id":       target.ID,
		"name":     target.Name,
	})
}

func runSyncDisconnect(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return writeEngineError(out, "sync.disconnect", err)
	}
	defer a.Close()

	if err := a.engine.Disconnect(ctx); err != nil {
		return writeEngineError(out, "sync.disconnect", err)
	}

	if a.cfg.RemoteProvider == config.ProviderGoogleDrive {
		revokeOnDisconnect(ctx, out, auth.NewManager(getConfigDir()), flags.Profile)
	}

	out.Log("Sync disconnected. Local database and cloud backup are untouched.")
	return out.WriteSuccess("sync.disconnect", map[string]interface{}{
		"status": "disconnected",
	})
}

// credentialRevoker is the slice of the auth manager disconnect needs.
type credentialRevoker interface {
	LoadCredentials(profile string) (*types.Credentials, error)
	Revoke(ctx context.Context, profile string) error
}

// revokeOnDisconnect invalidates stored tokens as part of disconnecting.
// Revocation is best effort: failures become warnings, never errors, so
// a dead token cannot leave the sync configuration half-cleared. Doing
// nothing when no credentials are stored keeps disconnect usable on a
// device that never logged in.
func revokeOnDisconnect(ctx context.Context, out *OutputWriter, mgr credentialRevoker, profile string) {
	if _, err := mgr.LoadCredentials(profile); err != nil {
		return
	}
	if err := mgr.Revoke(ctx, profile); err != nil {
		out.AddWarning(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("Token revocation incomplete: %v", err), "warning")
	}
}

func runSyncPush(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return writeEngineError(out, "sync.push", err)
	}
	defer a.Close()

	if !flags.Yes {
		state, err := a.engine.Evaluate(ctx)
		if err != nil {
			return writeEngineError(out, "sync.push", err)
		}
		if state.HasCloudChanges {
			return out.WriteError("sync.push", utils.NewCLIError(utils.ErrCodeConflict,
				"The cloud backup has changes this device has not pulled. Pushing would overwrite them. Run 'moneta sync resolve', or pass --yes to force.").Build())
		}
	}

	result, err := a.engine.Push(ctx)
	if err != nil {
		return writeEngineError(out, "sync.push", err)
	}

	out.Log("Pushed database to cloud backup.")
	return out.WriteSuccess("sync.push", result)
}

func runSyncPull(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return writeEngineError(out, "sync.pull", err)
	}
	defer a.Close()

	if !flags.Yes {
		state, err := a.engine.Evaluate(ctx)
		if err != nil {
			return writeEngineError(out, "sync.pull", err)
		}
		if state.HasLocalChanges {
			return out.WriteError("sync.pull", utils.NewCLIError(utils.ErrCodeConflict,
				"The local database has changes that were never pushed. Pulling would discard them. Run 'moneta sync resolve', or pass --yes to force.").Build())
		}
	}

	result, err := a.engine.Pull(ctx)
	if err != nil {
		return writeEngineError(out, "sync.pull", err)
	}

	out.Log("Pulled cloud backup over local database.")
	return out.WriteSuccess("sync.pull", result)
}

func stateView(a *app, state types.SyncState) syncStateView {
	view := syncStateView{SyncState: state, Provider: string(a.cfg.RemoteProvider)}
	if cfg, err := a.store.Load(context.Background()); err == nil && cfg.Target != nil {
		view.Target = fmt.Sprintf("%s (%s)", cfg.Target.Name, cfg.Target.Kind)
	}
	return view
}

func configView(a *app, cfg syncstore.Config) syncStateView {
	view := syncStateView{Provider: string(a.cfg.RemoteProvider)}
	view.Status = types.StatusNotConfigured
	view.CanEdit = true
	if cfg.Configured && cfg.Target != nil {
		view.Status = types.StatusCheckFailed
		view.Target = fmt.Sprintf("%s (%s)", cfg.Target.Name, cfg.Target.Kind)
		view.LastSyncedAt = cfg.LastSyncedAt
		view.Message = "Remote unavailable; showing local configuration only."
	}
	return view
}

// writeEngineError maps an engine error onto the stable error code set
// and writes the error envelope. Errors that already carry a CLI error
// (auth failures) pass through unchanged.
func writeEngineError(out *OutputWriter, command string, err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return out.WriteError(command, appErr.CLIError)
	}
	code := syncengine.ErrorCode(err)
	return out.WriteError(command, utils.NewCLIError(code, err.Error()).
		WithRetryable(code == utils.ErrCodeRemoteTransport).Build())
}
