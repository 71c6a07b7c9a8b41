package syncengine

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/esantos/moneta/internal/fingerprint"
	"github.com/esantos/moneta/internal/remote"
	"github.com/esantos/moneta/internal/syncstore"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
)

// fakeRemote is an in-memory remote.Client. Tests mutate its fields to
// stage remote state and failures.
type fakeRemote struct {
	mu          sync.Mutex
	exists      bool
	content     []byte
	fingerprint string
	modified    *time.Time
	statErr     error
	downloadErr error
	uploadErr   error
	statCalls   int
}

func (f *fakeRemote) Stat(ctx context.Context, target types.SyncTarget) (remote.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statCalls++
	if f.statErr != nil {
		return remote.Info{}, f.statErr
	}
	if !f.exists {
		return remote.Info{Exists: false}, nil
	}
	return remote.Info{
		Exists:       true,
		FileID:       "file-1",
		ModifiedTime: f.modified,
		Fingerprint:  f.fingerprint,
	}, nil
}

func (f *fakeRemote) Download(ctx context.Context, target types.SyncTarget, destPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return f.downloadErr
	}
	if !f.exists {
		return remote.ErrNotFound
	}
	return os.WriteFile(destPath, f.content, 0600)
}

func (f *fakeRemote) Upload(ctx context.Context, target types.SyncTarget, sourcePath, contentHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	f.exists = true
	f.content = data
	f.fingerprint = contentHash
	f.modified = &now
	return "file-1", nil
}

type testEnv struct {
	engine  *Engine
	remote  *fakeRemote
	store   *syncstore.Store
	backups *BackupManager
	dbPath  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := syncstore.Open(filepath.Join(dir, "sync.db"))
	if err != nil {
		t.Fatalf("failed to open sync store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dbPath := filepath.Join(dir, "moneta.db")
	fp := fingerprint.New(dbPath)
	fake := &fakeRemote{}

	backups := NewBackupManager(filepath.Join(dir, "backups"), utils.BackupRetention)
	// Deterministic, strictly increasing backup timestamps.
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backups.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	engine := New(store, fp, fake, backups, Options{})
	return &testEnv{engine: engine, remote: fake, store: store, backups: backups, dbPath: dbPath}
}

// writeDatabase creates or overwrites a real SQLite database at path
// whose content is determined by seed.
func writeDatabase(t *testing.T, path, seed string) {
	t.Helper()
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE entries (v TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO entries (v) VALUES (?)`, seed); err != nil {
		t.Fatalf("failed to insert seed row: %v", err)
	}
}

// appendRows mutates an existing database so its fingerprint changes.
func appendRows(t *testing.T, path, value string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`INSERT INTO entries (v) VALUES (?)`, value); err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}
}

func (env *testEnv) configure(t *testing.T) {
	t.Helper()
	err := env.store.Save(context.Background(), syncstore.Config{
		Configured: true,
		Target:     &types.SyncTarget{Kind: types.TargetFolder, ID: "folder-1", Name: "Moneta"},
	})
	if err != nil {
		t.Fatalf("failed to save sync config: %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return data
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "balance")

	if err := env.engine.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	state, err := env.engine.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusNotConfigured {
		t.Errorf("status after disconnect = %s, want %s", state.Status, types.StatusNotConfigured)
	}
	if _, err := os.Stat(env.dbPath); err != nil {
		t.Errorf("local database should survive disconnect: %v", err)
	}

	backups, err := env.backups.List(TagPreClear)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("pre-clear backups = %d, want 1", len(backups))
	}
}

func TestConnectRejectsInvalidTarget(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.Connect(context.Background(), syncstore.Config{
		Configured: true,
		Target:     &types.SyncTarget{Kind: "bucket", ID: "x"},
	})
	if err == nil {
		t.Fatal("expected error for invalid target kind")
	}
}

func TestRestoreBackup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)

	writeDatabase(t, env.dbPath, "original")
	original := readFile(t, env.dbPath)
	if _, err := env.engine.Push(ctx); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	backups, err := env.backups.List(TagPrePush)
	if err != nil || len(backups) == 0 {
		t.Fatalf("expected a pre-push backup, got %d (err %v)", len(backups), err)
	}

	appendRows(t, env.dbPath, "regrettable edit")

	if err := env.engine.RestoreBackup(ctx, backups[0].Path); err != nil {
		t.Fatalf("RestoreBackup failed: %v", err)
	}
	if got := readFile(t, env.dbPath); !bytes.Equal(got, original) {
		t.Error("restored database does not match the backup content")
	}

	cfg, err := env.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.SyncedHash != "" {
		t.Error("restore should invalidate the recorded fingerprint")
	}

	preRestore, err := env.backups.List(TagPreRestore)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(preRestore) != 1 {
		t.Errorf("pre-restore backups = %d, want 1", len(preRestore))
	}
}

func TestRestoreBackupMissingFile(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.RestoreBackup(context.Background(), filepath.Join(t.TempDir(), "nope.db"))
	if err == nil {
		t.Fatal("expected error for missing backup file")
	}
}

func TestResetLocal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.configure(t)
	writeDatabase(t, env.dbPath, "doomed")

	if err := env.engine.ResetLocal(ctx); err != nil {
		t.Fatalf("ResetLocal failed: %v", err)
	}

	if _, err := os.Stat(env.dbPath); !os.IsNotExist(err) {
		t.Error("local database should be deleted by reset")
	}
	cfg, err := env.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Configured {
		t.Error("reset should clear the sync configuration")
	}
	backups, err := env.backups.List(TagPreReset)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("pre-reset backups = %d, want 1", len(backups))
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not configured", ErrNotConfigured, utils.ErrCodeNotConfigured},
		{"no local data", ErrNoLocalData, utils.ErrCodeNoLocalData},
		{"remote not found", remote.ErrNotFound, utils.ErrCodeRemoteNotFound},
		{"transport", &remote.TransportError{Err: errors.New("boom")}, utils.ErrCodeRemoteTransport},
		{"replace failed", ErrReplaceFailed, utils.ErrCodeReplaceFailed},
		{"restore failed", ErrRestoreFailed, utils.ErrCodeRestoreFailed},
		{"wrapped restore beats replace", errors.Join(ErrRestoreFailed, ErrReplaceFailed), utils.ErrCodeRestoreFailed},
		{"unknown", errors.New("mystery"), utils.ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %s, want %s", got, tt.want)
			}
		})
	}
}
