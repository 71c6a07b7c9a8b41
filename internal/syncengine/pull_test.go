package syncengine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/esantos/moneta/internal/types"
)

// stageRemoteDatabase builds a real database file, loads its bytes into
// the fake remote, and deletes the staging file.
func stageRemoteDatabase(t *testing.T, env *testEnv, seed string) []byte {
	t.Helper()
	staging := filepath.Join(t.TempDir(), "remote.db")
	writeDatabase(t, staging, seed)
	data := readFile(t, staging)
	env.remote.exists = true
	env.remote.content = data
	env.remote.fingerprint = "remote-fingerprint"
	return data
}

func TestPullNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Pull(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Pull error = %v, want ErrNotConfigured", err)
	}
}

func TestPullRemoteNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "local")

	_, err := env.engine.Pull(context.Background())
	if !errors.Is(err, ErrRemoteNotFound) {
		t.Fatalf("Pull error = %v, want ErrRemoteNotFound", err)
	}
	// The local database must be intact after an aborted pull.
	if _, err := os.Stat(env.dbPath); err != nil {
		t.Errorf("local database missing after failed pull: %v", err)
	}
}

func TestPullReplacesDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "stale local")
	localBefore := readFile(t, env.dbPath)
	remoteData := stageRemoteDatabase(t, env, "authoritative cloud")

	result, err := env.engine.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if !bytes.Equal(readFile(t, env.dbPath), remoteData) {
		t.Error("local database does not match the pulled remote content")
	}
	if result.BackupPath == "" {
		t.Fatal("pull over an existing database should report a safety backup")
	}
	if !bytes.Equal(readFile(t, result.BackupPath), localBefore) {
		t.Error("safety backup does not match the pre-pull database")
	}

	cfg, err := env.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LastSyncedAt == nil || cfg.SyncedHash == "" {
		t.Error("pull should record a fresh sync point")
	}
	if cfg.SyncedHash != result.Fingerprint {
		t.Errorf("stored fingerprint %q does not match result %q", cfg.SyncedHash, result.Fingerprint)
	}
}

func TestPullWithoutLocalDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	remoteData := stageRemoteDatabase(t, env, "first device sync")

	result, err := env.engine.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if result.BackupPath != "" {
		t.Errorf("no safety backup expected without a prior database, got %s", result.BackupPath)
	}
	if !bytes.Equal(readFile(t, env.dbPath), remoteData) {
		t.Error("local database does not match the pulled remote content")
	}

	backups, err := env.backups.List(TagPrePull)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("pre-pull backups = %d, want 0", len(backups))
	}
}

func TestPullThenEvaluateInSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "stale local")
	stageRemoteDatabase(t, env, "authoritative cloud")

	result, err := env.engine.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	// The remote's fingerprint metadata matches what we just stored.
	env.remote.fingerprint = result.Fingerprint

	state, err := env.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusInSync {
		t.Errorf("status after pull = %s, want %s", state.Status, types.StatusInSync)
	}
}

// TestPullReplaceFailureRestoresBackup injects a rename failure in the
// replace step and verifies the live database comes back byte-for-byte
// from the safety backup.
func TestPullReplaceFailureRestoresBackup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "precious local")
	localBefore := readFile(t, env.dbPath)
	stageRemoteDatabase(t, env, "cloud copy")

	cfgBefore, err := env.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	env.engine.rename = func(oldpath, newpath string) error {
		return errors.New("device full")
	}

	_, err = env.engine.Pull(ctx)
	if !errors.Is(err, ErrReplaceFailed) {
		t.Fatalf("Pull error = %v, want ErrReplaceFailed", err)
	}

	if !bytes.Equal(readFile(t, env.dbPath), localBefore) {
		t.Error("live database was not restored byte-for-byte from the safety backup")
	}
	if _, err := os.Stat(env.dbPath + ".download"); !os.IsNotExist(err) {
		t.Error("temporary download file should be cleaned up")
	}

	cfgAfter, err := env.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfgAfter.SyncedHash != cfgBefore.SyncedHash {
		t.Error("a failed pull must not change the recorded fingerprint")
	}
	if (cfgAfter.LastSyncedAt == nil) != (cfgBefore.LastSyncedAt == nil) {
		t.Error("a failed pull must not change the recorded sync time")
	}
}

func TestPullRestoreFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "precious local")
	stageRemoteDatabase(t, env, "cloud copy")

	// Fail the swap, then make the rollback fail too by deleting the
	// safety backup out from under the engine.
	env.engine.rename = func(oldpath, newpath string) error {
		backups, lerr := env.backups.List(TagPrePull)
		if lerr != nil || len(backups) == 0 {
			t.Fatalf("expected a pre-pull backup before the swap (err %v)", lerr)
		}
		if rerr := os.Remove(backups[0].Path); rerr != nil {
			t.Fatalf("failed to remove backup: %v", rerr)
		}
		return errors.New("device full")
	}

	_, err := env.engine.Pull(ctx)
	if !errors.Is(err, ErrRestoreFailed) {
		t.Fatalf("Pull error = %v, want ErrRestoreFailed", err)
	}
}
