package syncengine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/esantos/moneta/internal/syncstore"
	"github.com/esantos/moneta/internal/types"
)

func TestEvaluateNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	// A broken network must be irrelevant before configuration.
	env.remote.statErr = errors.New("network down")

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusNotConfigured {
		t.Errorf("status = %s, want %s", state.Status, types.StatusNotConfigured)
	}
	if !state.CanEdit {
		t.Error("editing must be allowed when sync is not configured")
	}
	if env.remote.statCalls != 0 {
		t.Errorf("remote was checked %d times before configuration, want 0", env.remote.statCalls)
	}
}

func TestEvaluateNoCloudBackup(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "fresh")

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusNoCloudBackup {
		t.Errorf("status = %s, want %s", state.Status, types.StatusNoCloudBackup)
	}
	if !state.CanEdit {
		t.Error("editing must be allowed when no cloud backup exists")
	}
}

func TestEvaluateNeverSynced(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "local copy")
	env.remote.exists = true
	env.remote.fingerprint = "remote-hash"

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusNeverSynced {
		t.Errorf("status = %s, want %s", state.Status, types.StatusNeverSynced)
	}
	if state.CanEdit {
		t.Error("editing must be blocked until a side is chosen")
	}
}

func TestEvaluateCheckFailed(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	env.remote.statErr = errors.New("connection reset")

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusCheckFailed {
		t.Errorf("status = %s, want %s", state.Status, types.StatusCheckFailed)
	}
	if !state.CanEdit {
		t.Error("an unreachable remote must not lock the user out")
	}
	if state.Warning == "" {
		t.Error("check failure should carry a warning")
	}
}

// pushAndSettle makes the local and remote copies identical and the sync
// point current, i.e. the in_sync baseline the divergence tests start from.
func pushAndSettle(t *testing.T, env *testEnv) {
	t.Helper()
	if _, err := env.engine.Push(context.Background()); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
}

func TestEvaluateInSync(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusInSync {
		t.Errorf("status = %s, want %s", state.Status, types.StatusInSync)
	}
	if !state.CanEdit {
		t.Error("editing must be allowed when in sync")
	}
	if state.HasLocalChanges || state.HasCloudChanges {
		t.Error("no divergence expected right after a push")
	}
}

func TestEvaluateLocalOnly(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)
	appendRows(t, env.dbPath, "new expense")

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusLocalOnly {
		t.Errorf("status = %s, want %s", state.Status, types.StatusLocalOnly)
	}
	if !state.CanEdit {
		t.Error("local-only changes must not block editing")
	}
}

func TestEvaluateCloudOnly(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)
	env.remote.fingerprint = "changed-elsewhere"

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusCloudOnly {
		t.Errorf("status = %s, want %s", state.Status, types.StatusCloudOnly)
	}
	if state.CanEdit {
		t.Error("editing on top of a stale copy must be blocked")
	}
}

// A writer may replace the file content without refreshing the
// fingerprint metadata. The stale fingerprint then still matches the
// sync point; only the modification timestamp reveals the change, and it
// must win.
func TestEvaluateStaleFingerprintTimestampWins(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)

	cfg, err := env.store.Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load sync config: %v", err)
	}
	env.remote.fingerprint = cfg.SyncedHash
	modified := cfg.LastSyncedAt.Add(2 * time.Minute)
	env.remote.modified = &modified

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusCloudOnly {
		t.Errorf("status = %s, want %s (timestamp past the buffer must flag a cloud change even when fingerprints match)", state.Status, types.StatusCloudOnly)
	}
	if !state.HasCloudChanges {
		t.Error("cloud change flag not set")
	}
}

func TestEvaluateConflict(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)
	appendRows(t, env.dbPath, "edited here")
	env.remote.fingerprint = "edited there"

	state, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if state.Status != types.StatusConflict {
		t.Errorf("status = %s, want %s", state.Status, types.StatusConflict)
	}
	if state.CanEdit {
		t.Error("editing must be blocked while a conflict is unresolved")
	}
	if !state.NeedsResolution() {
		t.Error("conflict state should report needing resolution")
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.configure(t)
	writeDatabase(t, env.dbPath, "settled")
	pushAndSettle(t, env)
	appendRows(t, env.dbPath, "unsent edit")

	first, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	second, err := env.engine.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("second Evaluate failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated evaluation diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// TestEvaluateClockSkewBoundary pins the timestamp fallback used when the
// remote carries no fingerprint metadata: a remote modification time must
// exceed the last sync time by strictly more than the skew buffer.
func TestEvaluateClockSkewBoundary(t *testing.T) {
	lastSynced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		delta time.Duration
		want  types.SyncStatus
	}{
		{"under the buffer", 59999 * time.Millisecond, types.StatusInSync},
		{"exactly the buffer", 60000 * time.Millisecond, types.StatusInSync},
		{"just past the buffer", 60001 * time.Millisecond, types.StatusCloudOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			writeDatabase(t, env.dbPath, "steady")
			hash, err := fingerprintOf(ctx, env)
			if err != nil {
				t.Fatalf("failed to fingerprint database: %v", err)
			}

			err = env.store.Save(ctx, syncstore.Config{
				Configured:   true,
				Target:       &types.SyncTarget{Kind: types.TargetFile, ID: "file-1", Name: "moneta.db"},
				LastSyncedAt: &lastSynced,
				SyncedHash:   hash,
			})
			if err != nil {
				t.Fatalf("failed to save sync config: %v", err)
			}

			modified := lastSynced.Add(tt.delta)
			env.remote.exists = true
			env.remote.fingerprint = "" // force the timestamp path
			env.remote.modified = &modified

			state, err := env.engine.Evaluate(ctx)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if state.Status != tt.want {
				t.Errorf("delta %v: status = %s, want %s", tt.delta, state.Status, tt.want)
			}
		})
	}
}

func fingerprintOf(ctx context.Context, env *testEnv) (string, error) {
	return env.engine.fp.CurrentHash(ctx)
}
