// Package fingerprint computes content hashes of the local database
// file for change detection against the last synchronized state.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"
)

// ErrNoLocalData reports that the database file does not exist. Callers
// treat this as "no local changes to protect", not as a failure.
var ErrNoLocalData = errors.New("local database file does not exist")

// Service hashes the database at dbPath. Before hashing it forces any
// pending write-ahead log contents into the main file, so two logically
// identical databases always produce the same fingerprint.
type Service struct {
	dbPath string
}

func New(dbPath string) *Service {
	return &Service{dbPath: dbPath}
}

// Path returns the database file location this service watches.
func (s *Service) Path() string {
	return s.dbPath
}

// Checkpoint flushes the write-ahead log into the main database file.
// The connection is scoped to this call and closed on every exit path
// so no lock outlives the checkpoint.
func (s *Service) Checkpoint(ctx context.Context) error {
	if _, err := os.Stat(s.dbPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNoLocalData
		}
		return err
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("open database for checkpoint: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// CurrentHash checkpoints and then hashes the database file, returning
// a hex-encoded SHA-256 digest. Returns ErrNoLocalData when the file is
// missing.
func (s *Service) CurrentHash(ctx context.Context) (string, error) {
	if err := s.Checkpoint(ctx); err != nil {
		return "", err
	}

	f, err := os.Open(s.dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoLocalData
		}
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash database file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HasLocalChanges reports whether the database content differs from the
// given last-synced fingerprint. An empty syncedHash means local state
// has never been verified against the remote; that counts as changed.
// A missing database file counts as unchanged (nothing to protect).
func (s *Service) HasLocalChanges(ctx context.Context, syncedHash string) (bool, error) {
	current, err := s.CurrentHash(ctx)
	if errors.Is(err, ErrNoLocalData) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if syncedHash == "" {
		return true, nil
	}
	return current != syncedHash, nil
}
