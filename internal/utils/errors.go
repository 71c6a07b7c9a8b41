package utils

import (
	"fmt"

	"github.com/esantos/moneta/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired = 10
	ExitAuthExpired  = 11
	ExitAuthInvalid  = 12
	// Sync errors (20-29)
	ExitNotConfigured  = 20
	ExitNoLocalData    = 21
	ExitRemoteNotFound = 22
	ExitReplaceFailed  = 23
	ExitConflict       = 24
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	// Unrecoverable (70+): manual intervention required
	ExitRestoreFailed = 70
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired    = "AUTH_REQUIRED"
	ErrCodeAuthExpired     = "AUTH_EXPIRED"
	ErrCodeAuthInvalid     = "AUTH_INVALID"
	ErrCodeNotConfigured   = "NOT_CONFIGURED"
	ErrCodeNoLocalData     = "NO_LOCAL_DATA"
	ErrCodeRemoteNotFound  = "REMOTE_NOT_FOUND"
	ErrCodeRemoteTransport = "REMOTE_TRANSPORT_ERROR"
	ErrCodeReplaceFailed   = "REPLACE_FAILED"
	ErrCodeRestoreFailed   = "RESTORE_FAILED"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeCheckFailed     = "CHECK_FAILED"
	ErrCodeNetworkError    = "NETWORK_ERROR"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeUnknown         = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:    ExitAuthRequired,
		ErrCodeAuthExpired:     ExitAuthExpired,
		ErrCodeAuthInvalid:     ExitAuthInvalid,
		ErrCodeNotConfigured:   ExitNotConfigured,
		ErrCodeNoLocalData:     ExitNoLocalData,
		ErrCodeRemoteNotFound:  ExitRemoteNotFound,
		ErrCodeRemoteTransport: ExitNetworkError,
		ErrCodeReplaceFailed:   ExitReplaceFailed,
		ErrCodeRestoreFailed:   ExitRestoreFailed,
		ErrCodeConflict:        ExitConflict,
		ErrCodeNetworkError:    ExitNetworkError,
		ErrCodeTimeout:         ExitTimeout,
		ErrCodeRateLimited:     ExitRateLimited,
		ErrCodeInvalidArgument: ExitInvalidArgument,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}
