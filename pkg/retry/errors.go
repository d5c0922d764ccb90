package retry

import (
	"fmt"

	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type RetryErrorCause string

const (
	ErrRetriesDisabled   RetryErrorCause = "retries disabled"
	ErrExhaustedAttempts RetryErrorCause = "exhausted attempts"
)

// RetryError explains why a transient failure is delivered without another
// retry.
type RetryError struct {
	Message string
	Cause   RetryErrorCause
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry error: %s, %s", e.Cause, e.Message)
}

// Severity is always fatal: the failure is handed to the caller as-is.
func (e *RetryError) Severity() failure.Severity {
	return failure.SeverityFatal
}

// Is allows errors.Is to match RetryError types
func (e *RetryError) Is(target error) bool {
	_, ok := target.(*RetryError)
	return ok
}
