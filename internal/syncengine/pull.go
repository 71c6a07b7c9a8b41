package syncengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/esantos/moneta/internal/logging"
)

// PullResult reports a completed download.
type PullResult struct {
	Fingerprint  string    `json:"fingerprint"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	BackupPath   string    `json:"backupPath,omitempty"`
}

// Pull downloads the remote backup and replaces the local database with
// it, then records the new sync point. The existing local database, if
// any, is backed up first; if the replacement fails partway the backup
// is restored so the live file never stays in a half-replaced state.
//
// Returns ErrRemoteNotFound when no remote backup exists, ErrReplaceFailed
// when the swap failed but the previous database is intact or restored,
// and ErrRestoreFailed when even the rollback failed.
func (e *Engine) Pull(ctx context.Context) (*PullResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured || cfg.Target == nil {
		return nil, ErrNotConfigured
	}

	dbPath := e.fp.Path()

	backupPath := ""
	if _, err := os.Stat(dbPath); err == nil {
		// Flush the WAL so the safety copy is the complete database.
		if err := e.fp.Checkpoint(ctx); err != nil {
			return nil, fmt.Errorf("failed to checkpoint before pull: %w", err)
		}
		backupPath, err = e.backups.Create(TagPrePull, dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create safety backup: %w", err)
		}
		if err := e.backups.Prune(TagPrePull); err != nil {
			e.logger.Warn("Failed to prune pull backups", logging.F("error", err.Error()))
		}
	}

	// Download to a sibling temp path first; the live file is untouched
	// until the download has fully succeeded.
	tmpPath := dbPath + ".download"
	if err := e.remote.Download(ctx, *cfg.Target, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if err := e.replaceLive(dbPath, tmpPath, backupPath); err != nil {
		return nil, err
	}

	hash, err := e.fp.CurrentHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("replaced database but fingerprinting it failed: %w", err)
	}

	syncedAt := e.now().UTC()
	cfg.LastSyncedAt = &syncedAt
	cfg.SyncedHash = hash
	if err := e.store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("replaced database but recording the sync point failed: %w", err)
	}

	e.logger.Info("Pulled database from cloud", logging.F("fingerprint", hash))

	return &PullResult{
		Fingerprint:  hash,
		LastSyncedAt: syncedAt,
		BackupPath:   backupPath,
	}, nil
}

// replaceLive swaps the downloaded file over the live database. On any
// failure it rolls back to the safety backup taken before the pull.
func (e *Engine) replaceLive(dbPath, tmpPath, backupPath string) error {
	replaceErr := func() error {
		if err := removeDatabaseFiles(dbPath); err != nil {
			return err
		}
		return e.rename(tmpPath, dbPath)
	}()
	if replaceErr == nil {
		return nil
	}
	_ = os.Remove(tmpPath)

	e.logger.Error("Failed to replace live database", logging.F("error", replaceErr.Error()))

	if backupPath == "" {
		// There was no prior database; nothing to roll back to.
		return fmt.Errorf("%w: %v", ErrReplaceFailed, replaceErr)
	}

	// The live file may be gone or half-swapped. Put the safety backup
	// back unconditionally rather than guessing which state we are in.
	if restoreErr := restoreFromBackup(backupPath, dbPath); restoreErr != nil {
		e.logger.Error("Failed to restore database from safety backup",
			logging.F("backup", backupPath),
			logging.F("error", restoreErr.Error()))
		return fmt.Errorf("%w: replace failed (%v), restore failed (%v), safety backup at %s",
			ErrRestoreFailed, replaceErr, restoreErr, backupPath)
	}

	e.logger.Info("Restored database from safety backup", logging.F("backup", backupPath))
	return fmt.Errorf("%w: %v (previous database restored)", ErrReplaceFailed, replaceErr)
}

// restoreFromBackup copies the safety backup back over the live path,
// clearing any leftover WAL/SHM files that belonged to the replaced copy.
func restoreFromBackup(backupPath, dbPath string) error {
	for _, p := range []string{dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return copyFile(backupPath, dbPath)
}
