// Package syncstore persists the synchronization configuration: the
// remote target, the timestamp of the last confirmed sync, and the
// fingerprint of the database at that moment. One record, one SQLite
// file under the config directory.
package syncstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/esantos/moneta/internal/types"
	_ "modernc.org/sqlite"
)

// Store owns the sync configuration database. It is not safe for
// concurrent mutation; the sync engine serializes access.
type Store struct {
	db *sql.DB
}

// Config is the persisted singleton sync configuration.
type Config struct {
	Configured   bool              `json:"configured"`
	Target       *types.SyncTarget `json:"target,omitempty"`
	LastSyncedAt *time.Time        `json:"lastSyncedAt,omitempty"`
	SyncedHash   string            `json:"syncedDbHash,omitempty"`
}

// Validate enforces the configuration invariant: a configured record
// must carry exactly one well-formed target.
func (c Config) Validate() error {
	if !c.Configured {
		return nil
	}
	if c.Target == nil {
		return fmt.Errorf("configured sync has no target")
	}
	if c.Target.Kind != types.TargetFolder && c.Target.Kind != types.TargetFile {
		return fmt.Errorf("invalid target kind: %q", c.Target.Kind)
	}
	if c.Target.ID == "" {
		return fmt.Errorf("target %s has empty id", c.Target.Kind)
	}
	return nil
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &Store{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sync_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	configured INTEGER NOT NULL DEFAULT 0,
	target_kind TEXT,
	target_id TEXT,
	target_name TEXT,
	last_synced_at INTEGER,
	synced_hash TEXT
);
`

// Load reads the singleton configuration. A store that has never been
// written returns an empty, unconfigured Config.
func (s *Store) Load(ctx context.Context) (Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT configured, target_kind, target_id, target_name, last_synced_at, synced_hash
		FROM sync_config WHERE id = 1
	`)

	var (
		configured   int
		kind, id     sql.NullString
		name         sql.NullString
		lastSyncedMs sql.NullInt64
		hash         sql.NullString
	)
	err := row.Scan(&configured, &kind, &id, &name, &lastSyncedMs, &hash)
	if err == sql.ErrNoRows {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Configured: configured != 0,
		SyncedHash: hash.String,
	}
	if kind.Valid && id.Valid {
		cfg.Target = &types.SyncTarget{
			Kind: types.TargetKind(kind.String),
			ID:   id.String,
			Name: name.String,
		}
	}
	if lastSyncedMs.Valid {
		t := time.UnixMilli(lastSyncedMs.Int64).UTC()
		cfg.LastSyncedAt = &t
	}
	return cfg, nil
}

// Save writes the singleton configuration, replacing whatever is there.
func (s *Store) Save(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var (
		kind, id, name sql.NullString
		lastSyncedMs   sql.NullInt64
		hash           sql.NullString
	)
	if cfg.Target != nil {
		kind = sql.NullString{String: string(cfg.Target.Kind), Valid: true}
		id = sql.NullString{String: cfg.Target.ID, Valid: true}
		name = sql.NullString{String: cfg.Target.Name, Valid: true}
	}
	if cfg.LastSyncedAt != nil {
		lastSyncedMs = sql.NullInt64{Int64: cfg.LastSyncedAt.UnixMilli(), Valid: true}
	}
	if cfg.SyncedHash != "" {
		hash = sql.NullString{String: cfg.SyncedHash, Valid: true}
	}

	configured := 0
	if cfg.Configured {
		configured = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_config (id, configured, target_kind, target_id, target_name, last_synced_at, synced_hash)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			configured=excluded.configured,
			target_kind=excluded.target_kind,
			target_id=excluded.target_id,
			target_name=excluded.target_name,
			last_synced_at=excluded.last_synced_at,
			synced_hash=excluded.synced_hash
	`, configured, kind, id, name, lastSyncedMs, hash)
	return err
}

// Clear wipes the configuration, as on disconnect or full reset.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_config WHERE id = 1`)
	return err
}
