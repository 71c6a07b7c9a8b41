// Package remote abstracts the cloud store holding the database backup.
// The sync engine only needs existence/metadata checks and whole-file
// transfer; everything else about the backend stays behind this
// interface.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/esantos/moneta/internal/types"
)

// ErrNotFound reports that the target (or its containing folder) does
// not exist remotely. Distinguished so pull can tell "vanished between
// check and pull" apart from transport failures.
var ErrNotFound = errors.New("remote backup not found")

// TransportError wraps any network, auth, or service failure talking to
// the backend. The evaluator degrades these to a CheckFailed state
// instead of blocking the user.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "remote transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Info describes the remote copy of the database at check time. It is
// recomputed on every check and never persisted.
type Info struct {
	Exists       bool       `json:"exists"`
	ModifiedTime *time.Time `json:"modifiedTime,omitempty"`
	FileID       string     `json:"fileId,omitempty"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
}

// Client is the narrow surface the reconciliation engine consumes.
type Client interface {
	// Stat reports whether the target exists, and if so its
	// modification time, resolved file ID, and fingerprint metadata
	// (empty when the writer recorded none).
	Stat(ctx context.Context, target types.SyncTarget) (Info, error)

	// Download fetches the remote copy into destPath, truncating any
	// existing file there. Returns ErrNotFound if the target vanished.
	Download(ctx context.Context, target types.SyncTarget, destPath string) error

	// Upload sends sourcePath to the target, embedding fingerprint as
	// remote metadata so later checks can compare hashes. Returns the
	// file ID of the uploaded copy.
	Upload(ctx context.Context, target types.SyncTarget, sourcePath, fingerprint string) (string, error)
}
