package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/esantos/moneta/internal/logging"
)

// PushResult reports a completed upload.
type PushResult struct {
	FileID       string    `json:"fileId"`
	Fingerprint  string    `json:"fingerprint"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	BackupPath   string    `json:"backupPath"`
}

// Push uploads the local database to the configured remote, overwriting
// whatever is there, and records the new sync point. A local safety
// backup is taken before the upload so even a surprising remote outcome
// leaves a recoverable copy.
//
// Push is caller-driven; the engine never uploads on its own. The caller
// decides how much divergence warning the user gets first.
func (e *Engine) Push(ctx context.Context) (*PushResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured || cfg.Target == nil {
		return nil, ErrNotConfigured
	}

	// Hashing checkpoints the WAL first, so the file we back up and
	// upload below is the complete database.
	hash, err := e.fp.CurrentHash(ctx)
	if err != nil {
		return nil, err
	}

	backupPath, err := e.backups.Create(TagPrePush, e.fp.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to create safety backup: %w", err)
	}
	if err := e.backups.Prune(TagPrePush); err != nil {
		e.logger.Warn("Failed to prune push backups", logging.F("error", err.Error()))
	}

	fileID, err := e.remote.Upload(ctx, *cfg.Target, e.fp.Path(), hash)
	if err != nil {
		// Sync point untouched: a failed upload changed nothing durable.
		return nil, err
	}

	syncedAt := e.now().UTC()
	cfg.LastSyncedAt = &syncedAt
	cfg.SyncedHash = hash
	if err := e.store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("upload succeeded but recording the sync point failed: %w", err)
	}

	e.logger.Info("Pushed database to cloud",
		logging.F("fileId", fileID),
		logging.F("fingerprint", hash))

	return &PushResult{
		FileID:       fileID,
		Fingerprint:  hash,
		LastSyncedAt: syncedAt,
		BackupPath:   backupPath,
	}, nil
}
