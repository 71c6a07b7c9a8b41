package syncengine

import (
	"errors"

	"github.com/esantos/moneta/internal/fingerprint"
	"github.com/esantos/moneta/internal/remote"
	"github.com/esantos/moneta/internal/utils"
)

var (
	// ErrNotConfigured reports a push/pull attempted before sync setup.
	ErrNotConfigured = errors.New("cloud sync is not configured")

	// ErrNoLocalData reports a push attempted with no database file.
	ErrNoLocalData = fingerprint.ErrNoLocalData

	// ErrRemoteNotFound reports that the remote target vanished, e.g.
	// between a check and the pull acting on it.
	ErrRemoteNotFound = remote.ErrNotFound

	// ErrReplaceFailed reports that swapping the downloaded copy over
	// the live database failed. The live database was restored from the
	// safety backup.
	ErrReplaceFailed = errors.New("failed to replace live database")

	// ErrRestoreFailed reports that the rollback itself failed: the live
	// database could not be restored from the safety backup. Manual
	// intervention is required; callers must surface this loudly.
	ErrRestoreFailed = errors.New("failed to restore live database from safety backup")
)

// ErrorCode maps an engine error onto the stable CLI error code set.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRestoreFailed):
		return utils.ErrCodeRestoreFailed
	case errors.Is(err, ErrReplaceFailed):
		return utils.ErrCodeReplaceFailed
	case errors.Is(err, ErrNotConfigured):
		return utils.ErrCodeNotConfigured
	case errors.Is(err, ErrNoLocalData):
		return utils.ErrCodeNoLocalData
	case errors.Is(err, ErrRemoteNotFound):
		return utils.ErrCodeRemoteNotFound
	case remote.IsTransport(err):
		return utils.ErrCodeRemoteTransport
	default:
		return utils.ErrCodeInternalError
	}
}
