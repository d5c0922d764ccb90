package state

import (
	"fmt"

	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseOpen   StoreErrorCause = "open failed"
	ErrCauseRead   StoreErrorCause = "read failed"
	ErrCauseWrite  StoreErrorCause = "write failed"
	ErrCauseDecode StoreErrorCause = "decode failed"
	ErrCauseClosed StoreErrorCause = "store closed"
)

type StoreError struct {
	Message string
	Cause   StoreErrorCause
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state store error: %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("state store error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Severity is recoverable: a failed state write only costs a conditional
// request on the next update.
func (e *StoreError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
