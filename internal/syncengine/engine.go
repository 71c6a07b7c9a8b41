package syncengine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/esantos/moneta/internal/fingerprint"
	"github.com/esantos/moneta/internal/logging"
	"github.com/esantos/moneta/internal/remote"
	"github.com/esantos/moneta/internal/syncstore"
)

// Engine coordinates sync state evaluation and the push/pull operations
// between the local database and the configured remote backup.
//
// All public methods take the engine mutex, so at most one sync operation
// runs at a time per process. Remote state can still change underneath us
// between a check and the operation acting on it; operations re-read
// whatever they depend on rather than trusting a prior Evaluate.
type Engine struct {
	mu      sync.Mutex
	store   *syncstore.Store
	fp      *fingerprint.Service
	remote  remote.Client
	backups *BackupManager
	logger  logging.Logger

	// Overridable in tests.
	now    func() time.Time
	rename func(oldpath, newpath string) error
}

// Options carries optional engine collaborators.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
}

// New creates an engine over the given store, fingerprint service, remote
// client and backup manager.
func New(store *syncstore.Store, fp *fingerprint.Service, remoteClient remote.Client, backups *BackupManager, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   store,
		fp:      fp,
		remote:  remoteClient,
		backups: backups,
		logger:  logger,
		now:     now,
		rename:  os.Rename,
	}
}

// Backups exposes the backup manager for listing and restore commands.
func (e *Engine) Backups() *BackupManager {
	return e.backups
}

// Connect records the sync target. It does not touch the database or the
// remote; the first push or pull after connecting does the real work.
func (e *Engine) Connect(ctx context.Context, cfg syncstore.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.store.Save(ctx, cfg); err != nil {
		return fmt.Errorf("failed to save sync configuration: %w", err)
	}
	e.logger.Info("Sync target configured",
		logging.F("kind", string(cfg.Target.Kind)),
		logging.F("target", cfg.Target.Name))
	return nil
}

// Disconnect clears the sync configuration. The local database is left in
// place, but since it is no longer protected by cloud copies a safety
// backup is taken first when a database exists.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.fp.Path()); err == nil {
		if _, err := e.backups.Create(TagPreClear, e.fp.Path()); err != nil {
			return fmt.Errorf("failed to create safety backup before disconnect: %w", err)
		}
		if err := e.backups.Prune(TagPreClear); err != nil {
			e.logger.Warn("Failed to prune disconnect backups", logging.F("error", err.Error()))
		}
	}
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear sync configuration: %w", err)
	}
	e.logger.Info("Sync disconnected")
	return nil
}

// RestoreBackup replaces the live database with a previously created
// safety backup. The current live database, if any, is backed up first.
func (e *Engine) RestoreBackup(ctx context.Context, backupPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not accessible: %w", err)
	}
	dbPath := e.fp.Path()
	if _, err := os.Stat(dbPath); err == nil {
		if err := e.fp.Checkpoint(ctx); err != nil {
			return fmt.Errorf("failed to checkpoint live database: %w", err)
		}
		if _, err := e.backups.Create(TagPreRestore, dbPath); err != nil {
			return fmt.Errorf("failed to create safety backup before restore: %w", err)
		}
		if err := e.backups.Prune(TagPreRestore); err != nil {
			e.logger.Warn("Failed to prune restore backups", logging.F("error", err.Error()))
		}
	}
	if err := removeDatabaseFiles(dbPath); err != nil {
		return fmt.Errorf("%w: %v", ErrReplaceFailed, err)
	}
	if err := copyFile(backupPath, dbPath); err != nil {
		return fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	// The restored copy no longer matches the recorded sync point.
	cfg, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.Configured {
		cfg.SyncedHash = ""
		if err := e.store.Save(ctx, cfg); err != nil {
			return fmt.Errorf("failed to update sync configuration: %w", err)
		}
	}
	e.logger.Info("Database restored from backup", logging.F("backup", backupPath))
	return nil
}

// ResetLocal deletes the local database and clears the sync configuration.
// A safety backup is taken first when a database exists.
func (e *Engine) ResetLocal(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	dbPath := e.fp.Path()
	if _, err := os.Stat(dbPath); err == nil {
		if err := e.fp.Checkpoint(ctx); err != nil {
			return fmt.Errorf("failed to checkpoint live database: %w", err)
		}
		if _, err := e.backups.Create(TagPreReset, dbPath); err != nil {
			return fmt.Errorf("failed to create safety backup before reset: %w", err)
		}
		if err := e.backups.Prune(TagPreReset); err != nil {
			e.logger.Warn("Failed to prune reset backups", logging.F("error", err.Error()))
		}
	}
	if err := removeDatabaseFiles(dbPath); err != nil {
		return fmt.Errorf("failed to delete local database: %w", err)
	}
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear sync configuration: %w", err)
	}
	e.logger.Info("Local database reset")
	return nil
}

// removeDatabaseFiles deletes the database and its WAL/SHM side files.
// Missing files are fine; any other failure aborts immediately.
func removeDatabaseFiles(dbPath string) error {
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
