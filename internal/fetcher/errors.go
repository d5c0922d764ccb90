package fetcher

import (
	"fmt"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseTimeout          FetchErrorCause = "timeout"
	ErrCauseHostNotFound     FetchErrorCause = "host not found"
	ErrCauseConnectionFailed FetchErrorCause = "connection failed"
	ErrCauseSocketError      FetchErrorCause = "socket error"
	ErrCauseInvalidURL       FetchErrorCause = "invalid url"
	ErrCauseCancelled        FetchErrorCause = "cancelled"
	ErrCauseNetworkFailure   FetchErrorCause = "network issues"
	ErrCauseReadBody         FetchErrorCause = "failed to read response body"
	ErrCauseFileMissing      FetchErrorCause = "no such file"
	ErrCauseFileUnreadable   FetchErrorCause = "unreadable file"
	ErrCauseCommandFailed    FetchErrorCause = "command failed"
	ErrCauseCommandSpawn     FetchErrorCause = "cannot run command"
	ErrCausePanic            FetchErrorCause = "transport panic"
)

// FetchError is observational. By the time it is returned, the request's
// status fields already describe the failure.
type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout,
		ErrCauseHostNotFound,
		ErrCauseConnectionFailed,
		ErrCauseSocketError,
		ErrCauseNetworkFailure,
		ErrCauseReadBody:
		return metadata.CauseNetworkFailure
	case ErrCauseFileMissing,
		ErrCauseFileUnreadable,
		ErrCauseCommandFailed,
		ErrCauseCommandSpawn:
		return metadata.CauseLocalIO
	case ErrCausePanic:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
