package retry

import (
	"time"

	"github.com/rohmanhakim/feed-updater/pkg/timeutil"
)

// RetryParam holds the parameters for retry scheduling.
// These parameters are passed from outside (e.g., config) and should not
// be known by the retry policy internally.
type RetryParam struct {
	MaxRetries   int
	Jitter       time.Duration
	RandomSeed   int64
	BackoffParam timeutil.BackoffParam
}

// NewRetryParam creates a new RetryParam with the given settings.
func NewRetryParam(
	maxRetries int,
	jitter time.Duration,
	randomSeed int64,
	backoffParam timeutil.BackoffParam,
) RetryParam {
	return RetryParam{
		MaxRetries:   maxRetries,
		Jitter:       jitter,
		RandomSeed:   randomSeed,
		BackoffParam: backoffParam,
	}
}

// Attempt describes the state of one completed attempt that the policy is
// asked to judge.
type Attempt struct {
	// Transient is true when the attempt failed at the transport level in a
	// way that may succeed later.
	Transient bool
	// AllowRetries is the caller's opt-in for retries.
	AllowRetries bool
	// RetryCount is how many retries were already scheduled.
	RetryCount int
}
