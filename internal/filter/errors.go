package filter

import (
	"fmt"
	"strings"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type FilterErrorCause string

const (
	ErrCauseTempFile   FilterErrorCause = "temp file"
	ErrCauseSpawn      FilterErrorCause = "spawn"
	ErrCauseExitStatus FilterErrorCause = "exit status"
)

// FilterError never aborts delivery. The request keeps its original data and
// the message is copied into FilterErrors.
type FilterError struct {
	Message string
	Cause   FilterErrorCause
}

func (e *FilterError) Error() string {
	return e.Message
}

func (e *FilterError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func mapFilterErrorToMetadataCause(err *FilterError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseExitStatus:
		return metadata.CauseContentInvalid
	case ErrCauseTempFile, ErrCauseSpawn:
		return metadata.CauseLocalIO
	default:
		return metadata.CauseUnknown
	}
}

func exitStatusError(cmd string, status int, stderr string) *FilterError {
	return &FilterError{
		Message: withStderr(fmt.Sprintf("%s exited with status %d", cmd, status), stderr),
		Cause:   ErrCauseExitStatus,
	}
}

// withStderr appends what the command printed on stderr, if anything.
func withStderr(message string, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return message
	}
	return message + ": " + stderr
}
