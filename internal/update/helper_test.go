package update_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/config"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/internal/update"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fetcherMock is a testify mock for fetcher.Fetcher. Tests configure the
// outcome with Run, which receives the request to fill in.
type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) Fetch(ctx context.Context, req *request.Request) failure.ClassifiedError {
	m.Called(ctx, req)
	return nil
}

// funcFetcher adapts a function to fetcher.Fetcher
type funcFetcher func(ctx context.Context, req *request.Request)

func (f funcFetcher) Fetch(ctx context.Context, req *request.Request) failure.ClassifiedError {
	f(ctx, req)
	return nil
}

func succeed(body string) funcFetcher {
	return func(ctx context.Context, req *request.Request) {
		req.HTTPStatus = 200
		req.ReturnCode = request.ReturnSuccess
		req.Data = []byte(body)
	}
}

// manualTimer records a retry delay and fires only when asked.
type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.stopped = true
	return true
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) update.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.delay)
	}
	return out
}

// fireAll fires every timer that has not fired yet.
func (c *manualClock) fireAll() int {
	c.mu.Lock()
	pending := c.timers
	c.timers = nil
	c.mu.Unlock()

	for _, t := range pending {
		t.fn()
	}
	return len(pending)
}

// immediateAfterFunc fires every retry right away on its own goroutine.
func immediateAfterFunc(d time.Duration, f func()) update.Stopper {
	return time.AfterFunc(0, f)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.WithDefault().
		WithConcurrency(2).
		WithDispatchInterval(5 * time.Millisecond).
		WithRandomSeed(1)
}

func build(t *testing.T, cfg *config.Config) config.Config {
	t.Helper()
	built, err := cfg.Build()
	require.NoError(t, err)
	return built
}

// startScheduler starts s and stops it when the test ends.
func startScheduler(t *testing.T, s *update.Scheduler) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop() })
}

// collector records callbacks.
type collector struct {
	mu        sync.Mutex
	delivered []*request.Request
	done      chan *request.Request
}

func newCollector() *collector {
	return &collector{done: make(chan *request.Request, 256)}
}

func (c *collector) callback(req *request.Request) {
	c.mu.Lock()
	c.delivered = append(c.delivered, req)
	c.mu.Unlock()
	c.done <- req
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func (c *collector) wait(t *testing.T, n int) []*request.Request {
	t.Helper()
	got := make([]*request.Request, 0, n)
	for i := 0; i < n; i++ {
		select {
		case req := <-c.done:
			got = append(got, req)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d of %d callbacks", i, n)
		}
	}
	return got
}

func (c *collector) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case req := <-c.done:
		t.Fatalf("unexpected callback for %s", req.Source)
	case <-time.After(within):
	}
}
