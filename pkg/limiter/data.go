package limiter

import "time"

// timing-related data used to space requests to one host
type hostTiming struct {
	lastFetchAt  time.Time
	backoffDelay time.Duration
	serverDelay  time.Duration
	backoffCount int
}
