package limiter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/feed-updater/pkg/timeutil"
)

// RateLimiter keeps network fetches polite when many subscriptions share one
// host.
// Responsibilities:
// - Bookkeep each hostname's last fetch timestamp
// - Honour server requested delays (Retry-After)
// - Back off a host that answers 429/503
// It never decides whether a request is retried; that belongs to the
// update scheduler.
type RateLimiter interface {
	SetBaseDelay(baseDelay time.Duration)
	SetServerDelay(host string, delay time.Duration)
	Backoff(host string)
	ResetBackoff(host string)
	MarkLastFetchAsNow(host string)
	ResolveDelay(host string) time.Duration
	Wait(ctx context.Context, host string) error
}

type ConcurrentRateLimiter struct {
	mu           sync.RWMutex
	rngMu        sync.Mutex
	baseDelay    time.Duration
	jitter       time.Duration
	backoffParam timeutil.BackoffParam
	hostTimings  map[string]hostTiming
	rng          *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		hostTimings:  make(map[string]hostTiming),
		backoffParam: timeutil.NewBackoffParam(time.Second, 2.0, time.Minute),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rand.New(rand.NewSource(randomSeed))
}

// SetServerDelay records a delay the server asked for, separate from the
// global base delay.
func (r *ConcurrentRateLimiter) SetServerDelay(host string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.hostTimings[host]
	timing.serverDelay = delay
	r.hostTimings[host] = timing
}

// Backoff increments the host's backoff counter and recomputes its delay.
func (r *ConcurrentRateLimiter) Backoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.hostTimings[host]
	timing.backoffCount++
	timing.backoffDelay = timeutil.ExponentialBackoffDelay(
		timing.backoffCount,
		0,
		nil,
		r.backoffParam,
	)
	r.hostTimings[host] = timing
}

// ResetBackoff clears backoff state after a successful response.
func (r *ConcurrentRateLimiter) ResetBackoff(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing, exists := r.hostTimings[host]
	if !exists {
		return
	}
	timing.backoffCount = 0
	timing.backoffDelay = 0
	timing.serverDelay = 0
	r.hostTimings[host] = timing
}

func (r *ConcurrentRateLimiter) MarkLastFetchAsNow(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.hostTimings[host]
	timing.lastFetchAt = time.Now()
	r.hostTimings[host] = timing
}

func (r *ConcurrentRateLimiter) computeJitter(max time.Duration) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	return timeutil.ComputeJitter(max, r.rng)
}

// ResolveDelay returns how long a fetch to host must still wait.
// FinalDelay = max(BaseDelay, ServerDelay, BackoffDelay) + Jitter, minus the
// time already elapsed since the host's last fetch.
func (r *ConcurrentRateLimiter) ResolveDelay(host string) time.Duration {
	r.mu.RLock()
	timing, exists := r.hostTimings[host]
	base := r.baseDelay
	jitter := r.jitter
	r.mu.RUnlock()

	if !exists || timing.lastFetchAt.IsZero() {
		return 0
	}

	finalDelay := timeutil.MaxDuration([]time.Duration{base, timing.serverDelay, timing.backoffDelay})
	finalDelay += r.computeJitter(jitter)

	elapsed := time.Since(timing.lastFetchAt)
	if elapsed < finalDelay {
		return finalDelay - elapsed
	}
	return 0
}

// Wait blocks until host may be fetched again or ctx is done, then marks
// the host as fetched.
func (r *ConcurrentRateLimiter) Wait(ctx context.Context, host string) error {
	if delay := r.ResolveDelay(host); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.MarkLastFetchAsNow(host)
	return nil
}
