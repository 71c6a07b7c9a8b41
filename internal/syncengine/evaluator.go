package syncengine

import (
	"context"

	"github.com/esantos/moneta/internal/logging"
	"github.com/esantos/moneta/internal/remote"
	"github.com/esantos/moneta/internal/syncstore"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
)

// Evaluate derives the current sync state from the persisted
// configuration, the local database fingerprint, and one remote metadata
// check. It never mutates anything and never transfers file content.
//
// The CanEdit policy is deliberately asymmetric. When we cannot verify
// the remote (CheckFailed) editing stays allowed, because a network blip
// must not lock the user out of their own data. When the remote is known
// to have diverged (NeverSynced, CloudOnly, Conflict) editing is blocked
// until the user picks a side, because edits made on top of a stale copy
// deepen the divergence.
func (e *Engine) Evaluate(ctx context.Context) (types.SyncState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx)
}

func (e *Engine) evaluateLocked(ctx context.Context) (types.SyncState, error) {
	cfg, err := e.store.Load(ctx)
	if err != nil {
		return types.SyncState{}, err
	}
	if !cfg.Configured || cfg.Target == nil {
		return types.SyncState{
			Status:  types.StatusNotConfigured,
			CanEdit: true,
			Message: "Cloud sync is not configured. Editing is unrestricted.",
		}, nil
	}

	state := types.SyncState{LastSyncedAt: cfg.LastSyncedAt}

	info, err := e.remote.Stat(ctx, *cfg.Target)
	if err != nil {
		e.logger.Warn("Remote check failed", logging.F("error", err.Error()))
		state.Status = types.StatusCheckFailed
		state.CanEdit = true
		state.Message = "Could not verify the cloud backup. Editing is allowed; try checking again later."
		state.Warning = err.Error()
		return state, nil
	}
	if !info.Exists {
		state.Status = types.StatusNoCloudBackup
		state.CanEdit = true
		state.Message = "No cloud backup exists yet. Push to create one."
		return state, nil
	}

	state.CloudModifiedAt = info.ModifiedTime

	if cfg.LastSyncedAt == nil {
		state.Status = types.StatusNeverSynced
		state.CanEdit = false
		state.Message = "A cloud backup exists but this device has never synchronized with it. Choose the cloud copy or the local copy before editing."
		return state, nil
	}

	hasLocal, err := e.fp.HasLocalChanges(ctx, cfg.SyncedHash)
	if err != nil {
		e.logger.Warn("Local fingerprint check failed", logging.F("error", err.Error()))
		state.Status = types.StatusCheckFailed
		state.CanEdit = true
		state.Message = "Could not verify the local database. Editing is allowed; try checking again later."
		state.Warning = err.Error()
		return state, nil
	}
	hasCloud := cloudChanged(cfg, info)

	state.HasLocalChanges = hasLocal
	state.HasCloudChanges = hasCloud

	switch {
	case hasLocal && hasCloud:
		state.Status = types.StatusConflict
		state.CanEdit = false
		state.Message = "Both the local database and the cloud backup changed since the last sync. Choose a side before editing."
	case hasLocal:
		state.Status = types.StatusLocalOnly
		state.CanEdit = true
		state.Message = "Local changes have not been pushed to the cloud yet."
	case hasCloud:
		state.Status = types.StatusCloudOnly
		state.CanEdit = false
		state.Message = "The cloud backup changed since the last sync. Pull before editing."
	default:
		state.Status = types.StatusInSync
		state.CanEdit = true
		state.Message = "Local database matches the cloud backup."
	}
	return state, nil
}

// cloudChanged decides whether the remote diverged from the last sync
// point. Either signal is enough: a fingerprint mismatch, or a remote
// modification timestamp past the last sync time. The timestamp can add
// a change verdict but never negate one, so a writer that updates the
// file content without refreshing the fingerprint metadata is still
// caught.
//
// The skew buffer absorbs clock differences between this machine and the
// storage service: a remote timestamp must exceed the last sync time by
// strictly more than the buffer to count as a change.
func cloudChanged(cfg syncstore.Config, info remote.Info) bool {
	if info.Fingerprint != "" && cfg.SyncedHash != "" && info.Fingerprint != cfg.SyncedHash {
		return true
	}
	if info.ModifiedTime == nil || cfg.LastSyncedAt == nil {
		return false
	}
	return info.ModifiedTime.After(cfg.LastSyncedAt.Add(utils.ClockSkewBuffer))
}
