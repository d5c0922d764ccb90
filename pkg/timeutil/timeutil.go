package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// MaxDuration returns the largest duration in the slice, or 0 when empty.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max).
// Non-positive max yields 0 and leaves rng untouched.
func ComputeJitter(max time.Duration, rng *rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes initial * multiplier^(backoffCount-1),
// capped at the param's max duration, plus optional jitter.
// A backoffCount below 1 is treated as the first backoff.
func ExponentialBackoffDelay(
	backoffCount int,
	jitter time.Duration,
	rng *rand.Rand,
	backoffParam BackoffParam,
) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}

	exponent := float64(backoffCount - 1)
	delay := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), exponent)
	maxDelay := float64(backoffParam.MaxDuration())
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay) + ComputeJitter(jitter, rng)
}
