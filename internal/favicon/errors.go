package favicon

import (
	"fmt"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type DiscoveryErrorCause string

const (
	ErrCauseNotHTML     DiscoveryErrorCause = "not html"
	ErrCauseInvalidURL  DiscoveryErrorCause = "invalid url"
	ErrCauseNoCandidate DiscoveryErrorCause = "no candidate"
)

type DiscoveryError struct {
	Message   string
	Retryable bool
	Cause     DiscoveryErrorCause
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("favicon discovery error: %s: %s", e.Cause, e.Message)
}

func (e *DiscoveryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapDiscoveryErrorToMetadataCause is observational only.
func mapDiscoveryErrorToMetadataCause(err *DiscoveryError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML:
		return metadata.CauseContentInvalid
	case ErrCauseInvalidURL, ErrCauseNoCandidate:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
