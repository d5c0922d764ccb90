package metadata

import (
	"time"
)

// FetchEvent describes one completed fetch attempt.
type FetchEvent struct {
	Source      string
	Kind        string
	HTTPStatus  int
	ReturnCode  string
	Duration    time.Duration
	ContentType string
	Size        int
	RetryCount  int
}

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry or delivery decisions. Those
	   are driven by the request's return code alone.
	 - Packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.
	Non-goals:
	 - ErrorCause does not encode severity.
	 - ErrorCause does not imply retryability.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning:
  - The failure does not map cleanly to any known category.

# CauseNetworkFailure

Meaning:
  - Failure caused by network transport or remote availability.

Examples:
  - TCP timeouts
  - DNS resolution failures
  - Connection resets

# CauseContentInvalid

Meaning:
  - Content was fetched but a post-fetch step could not process it.

Examples:
  - Filter command exiting non-zero
  - Stylesheet transform failures

# CauseLocalIO

Meaning:
  - A local file or command could not be read or started.

Examples:
  - Missing or unreadable feed file
  - Command spawn failures
  - Temp file creation failures

# CauseStorageFailure

Meaning:
  - Failure while persisting or loading update state.

# CauseRetryExhausted

Meaning:
  - A transient failure was delivered as final because retries were
    disabled or the ceiling was reached.

# CauseInvariantViolation

Meaning:
  - A system-level invariant was violated.

Examples:
  - A panic recovered inside a worker or a completion callback
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CauseContentInvalid
	CauseLocalIO
	CauseStorageFailure
	CauseRetryExhausted
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseLocalIO:
		return "local_io"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseRetryExhausted:
		return "retry_exhausted"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// CancelStage names the handoff at which a cancellation was observed.
type CancelStage string

const (
	CancelAtQueue    CancelStage = "queue"
	CancelAtRetry    CancelStage = "retry"
	CancelAtDispatch CancelStage = "dispatch"
)

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrSource     AttributeKey = "source"
	AttrRequestID  AttributeKey = "request_id"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrFilter     AttributeKey = "filter"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrReturnCode AttributeKey = "return_code"
	AttrRetry      AttributeKey = "retry"
	AttrMessage    AttributeKey = "message"
)
