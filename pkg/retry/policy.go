package retry

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/feed-updater/pkg/timeutil"
)

// Decision is the outcome of judging one attempt.
type Decision int

const (
	// Deliver hands the result to the caller; no retry is involved.
	Deliver Decision = iota
	// Retry reschedules the attempt after Policy.Delay.
	Retry
	// GiveUp delivers a transient failure because retrying is not allowed
	// or the ceiling was reached.
	GiveUp
)

func (d Decision) String() string {
	switch d {
	case Retry:
		return "retry"
	case GiveUp:
		return "give-up"
	default:
		return "deliver"
	}
}

// Policy decides whether a failed attempt is retried and how long to wait.
// It is safe for concurrent use.
type Policy struct {
	param RetryParam

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewPolicy(param RetryParam) *Policy {
	return &Policy{
		param: param,
		rng:   rand.New(rand.NewSource(param.RandomSeed)),
	}
}

func (p *Policy) MaxRetries() int {
	return p.param.MaxRetries
}

// Decide judges an attempt. Only transient failures are ever retried, and
// only while RetryCount is below the ceiling. The returned error is non-nil
// for GiveUp and describes why.
func (p *Policy) Decide(attempt Attempt) (Decision, error) {
	if !attempt.Transient {
		return Deliver, nil
	}
	if !attempt.AllowRetries {
		return GiveUp, &RetryError{
			Message: "caller did not allow retries",
			Cause:   ErrRetriesDisabled,
		}
	}
	if attempt.RetryCount >= p.param.MaxRetries {
		return GiveUp, &RetryError{
			Message: fmt.Sprintf("reached %d of %d retries", attempt.RetryCount, p.param.MaxRetries),
			Cause:   ErrExhaustedAttempts,
		}
	}
	return Retry, nil
}

// Delay returns the wait before the retry that follows retryCount previous
// retries: min(max, initial * multiplier^retryCount) plus jitter.
func (p *Policy) Delay(retryCount int) time.Duration {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	return timeutil.ExponentialBackoffDelay(
		retryCount+1,
		p.param.Jitter,
		p.rng,
		p.param.BackoffParam,
	)
}
