package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/esantos/moneta/internal/logging"
	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// DriveClient implements Client against Google Drive. In folder mode the
// backup is the conventionally-named database copy inside the target
// folder; in file mode it is the fixed file ID.
type DriveClient struct {
	service    *drive.Service
	maxRetries int
	retryDelay time.Duration
	logger     logging.Logger
}

// NewDriveClient wraps an authenticated Drive service with retry logic.
func NewDriveClient(service *drive.Service, maxRetries int, retryDelayMs int, logger logging.Logger) *DriveClient {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &DriveClient{
		service:    service,
		maxRetries: maxRetries,
		retryDelay: time.Duration(retryDelayMs) * time.Millisecond,
		logger:     logger,
	}
}

const statFields = "id,name,modifiedTime,appProperties,trashed"

func (c *DriveClient) Stat(ctx context.Context, target types.SyncTarget) (Info, error) {
	file, err := c.resolve(ctx, target)
	if errors.Is(err, ErrNotFound) {
		return Info{Exists: false}, nil
	}
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Exists:      true,
		FileID:      file.Id,
		Fingerprint: file.AppProperties[utils.FingerprintProperty],
	}
	if file.ModifiedTime != "" {
		if t, perr := time.Parse(time.RFC3339, file.ModifiedTime); perr == nil {
			utc := t.UTC()
			info.ModifiedTime = &utc
		}
	}
	return info, nil
}

func (c *DriveClient) Download(ctx context.Context, target types.SyncTarget, destPath string) error {
	file, err := c.resolve(ctx, target)
	if err != nil {
		return err
	}

	// Create (truncating) inside the retry body so a failed partial
	// attempt never leaves stale bytes for the next one.
	_, err = executeWithRetry(ctx, c, func() (struct{}, error) {
		out, oerr := os.Create(destPath)
		if oerr != nil {
			return struct{}{}, oerr
		}
		defer out.Close()

		httpResp, derr := c.service.Files.Get(file.Id).Context(ctx).Download()
		if derr != nil {
			return struct{}{}, derr
		}
		defer httpResp.Body.Close()

		if _, cerr := io.Copy(out, httpResp.Body); cerr != nil {
			return struct{}{}, cerr
		}
		return struct{}{}, out.Sync()
	})
	return err
}

func (c *DriveClient) Upload(ctx context.Context, target types.SyncTarget, sourcePath, fingerprint string) (string, error) {
	metadata := &drive.File{
		AppProperties: map[string]string{utils.FingerprintProperty: fingerprint},
	}

	existing, err := c.resolve(ctx, target)
	switch {
	case err == nil:
		// Update the existing remote copy in place.
		updated, uerr := executeWithRetry(ctx, c, func() (*drive.File, error) {
			src, oerr := os.Open(sourcePath)
			if oerr != nil {
				return nil, oerr
			}
			defer src.Close()
			return c.service.Files.Update(existing.Id, metadata).Media(src).Context(ctx).Do()
		})
		if uerr != nil {
			return "", uerr
		}
		return updated.Id, nil

	case errors.Is(err, ErrNotFound) && target.Kind == types.TargetFolder:
		// First upload into the folder: create the file.
		metadata.Name = utils.BackupFileName
		metadata.Parents = []string{target.ID}
		created, cerr := executeWithRetry(ctx, c, func() (*drive.File, error) {
			src, oerr := os.Open(sourcePath)
			if oerr != nil {
				return nil, oerr
			}
			defer src.Close()
			return c.service.Files.Create(metadata).Media(src).Context(ctx).Do()
		})
		if cerr != nil {
			return "", cerr
		}
		return created.Id, nil

	default:
		// File-based targets point at one fixed ID; if it is gone there
		// is nothing to update.
		return "", err
	}
}

// resolve locates the backup file for the target, returning ErrNotFound
// when it does not exist (or was trashed).
func (c *DriveClient) resolve(ctx context.Context, target types.SyncTarget) (*drive.File, error) {
	switch target.Kind {
	case types.TargetFile:
		file, err := executeWithRetry(ctx, c, func() (*drive.File, error) {
			return c.service.Files.Get(target.ID).Fields(statFields).Context(ctx).Do()
		})
		if err != nil {
			return nil, err
		}
		if file.Trashed {
			return nil, ErrNotFound
		}
		return file, nil

	case types.TargetFolder:
		query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
			target.ID, utils.BackupFileName)
		list, err := executeWithRetry(ctx, c, func() (*drive.FileList, error) {
			return c.service.Files.List().
				Q(query).
				Fields(googleapi.Field("files(" + statFields + ")")).
				PageSize(1).
				Context(ctx).
				Do()
		})
		if err != nil {
			return nil, err
		}
		if len(list.Files) == 0 {
			return nil, ErrNotFound
		}
		return list.Files[0], nil

	default:
		return nil, fmt.Errorf("unknown target kind: %q", target.Kind)
	}
}

// executeWithRetry executes a Drive call with exponential backoff on
// retryable errors and classifies terminal failures into the package
// error taxonomy.
func executeWithRetry[T any](ctx context.Context, c *DriveClient, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			c.logger.Debug("Drive call completed",
				logging.F("duration_ms", time.Since(start).Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, classifyDriveError(lastErr)
		}

		if attempt < c.maxRetries {
			delay := calculateBackoff(c.retryDelay, attempt, lastErr)
			c.logger.Warn("Drive call failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, &TransportError{Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	c.logger.Error("Drive call failed after max retries",
		logging.F("attempts", c.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)
	return result, classifyDriveError(lastErr)
}

func isRetryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// classifyDriveError maps Drive API failures onto the sync error
// taxonomy: 404 means the target is gone, everything else is transport.
func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		return ErrNotFound
	}
	return &TransportError{Err: err}
}

func calculateBackoff(baseDelay time.Duration, attempt int, err error) time.Duration {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if retryAfter := apiErr.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, perr := strconv.Atoi(retryAfter); perr == nil {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	maxDelay := float64(utils.MaxRetryDelayMs) * float64(time.Millisecond)
	if delay > maxDelay {
		delay = maxDelay
	}
	// Jitter keeps concurrent clients from retrying in lockstep.
	jitter := rand.Float64() * 0.25 * delay
	return time.Duration(delay + jitter)
}
