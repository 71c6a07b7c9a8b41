package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
	"github.com/spf13/cobra"
)

var syncResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve sync divergence interactively",
	Long: `Evaluate the sync state and, when the local and cloud copies have
diverged, choose which side wins. Keeping the local copy pushes it over
the cloud backup; keeping the cloud copy pulls it over the local
database. Safety backups are taken either way.

Use --use to pick a side without the interactive prompt.`,
	RunE: runSyncResolve,
}

var resolveUse string

func init() {
	syncResolveCmd.Flags().StringVar(&resolveUse, "use", "", "Resolve without prompting: local or cloud")
	syncCmd.AddCommand(syncResolveCmd)
}

const (
	resolveKeepLocal = "local"
	resolveKeepCloud = "cloud"
	resolveCancel    = "cancel"
)

func runSyncResolve(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := context.Background()

	a, err := newApp(ctx, true)
	if err != nil {
		return writeEngineError(out, "sync.resolve", err)
	}
	defer a.Close()

	state, err := a.engine.Evaluate(ctx)
	if err != nil {
		return writeEngineError(out, "sync.resolve", err)
	}
	if !state.NeedsResolution() {
		out.Log("Nothing to resolve: %s", state.Message)
		return out.WriteSuccess("sync.resolve", stateView(a, state))
	}

	choice := resolveUse
	if choice == "" {
		choice, err = promptResolution(state)
		if err != nil {
			return writeEngineError(out, "sync.resolve", err)
		}
	}
	if choice == resolveKeepLocal && !allowKeepLocal(state) {
		return out.WriteError("sync.resolve", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"The cloud backup is strictly newer and the local database has no changes of its own. Only 'cloud' can be kept; use 'moneta sync resolve --use cloud'.").Build())
	}

	switch choice {
	case resolveKeepLocal:
		if _, err := a.engine.Push(ctx); err != nil {
			return writeEngineError(out, "sync.resolve", err)
		}
		out.Log("Kept the local copy; cloud backup overwritten.")
	case resolveKeepCloud:
		if _, err := a.engine.Pull(ctx); err != nil {
			return writeEngineError(out, "sync.resolve", err)
		}
		out.Log("Kept the cloud copy; local database replaced.")
	case resolveCancel:
		out.Log("Resolution cancelled. Editing stays blocked until resolved.")
		return out.WriteSuccess("sync.resolve", stateView(a, state))
	default:
		return out.WriteError("sync.resolve", utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid resolution %q: use 'local' or 'cloud'", choice)).Build())
	}

	// Report the state the resolution produced.
	resolved, err := a.engine.Evaluate(ctx)
	if err != nil {
		return writeEngineError(out, "sync.resolve", err)
	}
	return out.WriteSuccess("sync.resolve", stateView(a, resolved))
}

// allowKeepLocal reports whether pushing the local copy is a valid
// resolution. When only the cloud side changed there are no local edits
// to keep, so pushing would just overwrite the newer backup with a
// stale copy.
func allowKeepLocal(state types.SyncState) bool {
	return state.Status != types.StatusCloudOnly
}

func resolveOptions(state types.SyncState) []huh.Option[string] {
	options := []huh.Option[string]{
		huh.NewOption("Keep the cloud backup (pull it over the local database)", resolveKeepCloud),
		huh.NewOption("Decide later", resolveCancel),
	}
	if allowKeepLocal(state) {
		options = append([]huh.Option[string]{
			huh.NewOption("Keep the local database (push it to the cloud)", resolveKeepLocal),
		}, options...)
	}
	return options
}

// promptResolution asks the user to pick a side. The option set depends
// on the state: a never-synced device chooses which copy to adopt, a
// conflict chooses which edits survive, and a cloud-only divergence only
// offers the download.
func promptResolution(state types.SyncState) (string, error) {
	var title, description string
	options := resolveOptions(state)

	switch state.Status {
	case types.StatusNeverSynced:
		title = "Cloud backup found"
		description = "This device has never synchronized with the existing cloud backup. Which copy should this device use?"
	case types.StatusConflict:
		title = "Sync conflict"
		description = "Both the local database and the cloud backup changed since the last sync. Only one side's changes can survive."
	case types.StatusCloudOnly:
		title = "Cloud backup is newer"
		description = "The cloud backup changed since the last sync and the local database has no changes of its own. Download it to catch up."
	default:
		title = "Resolve sync state"
		description = state.Message
	}

	choice := resolveCancel
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(title).
				Description(description).
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("resolution prompt failed: %w", err)
	}
	return choice, nil
}
