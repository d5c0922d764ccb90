package update_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestScheduler_DeliversEveryRequestExactlyOnce(t *testing.T) {
	var active, maxActive atomic.Int32
	var fetches sync.Map

	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		count, _ := fetches.LoadOrStore(req.ID, new(atomic.Int32))
		count.(*atomic.Int32).Add(1)
		time.Sleep(time.Millisecond)
		req.HTTPStatus = 200
		req.Data = []byte(req.Source)
	})

	s := update.New(build(t, testConfig(t).WithConcurrency(4)), update.WithFetcher(fetch))
	startScheduler(t, s)

	c := newCollector()
	const total = 40
	for i := 0; i < total; i++ {
		priority := request.PriorityNormal
		if i%5 == 0 {
			priority = request.PriorityHigh
		}
		s.Submit(request.New(fmt.Sprintf("|feed-%d", i), "", priority, c.callback, true))
	}

	got := c.wait(t, total)
	c.expectNone(t, 30*time.Millisecond)

	seen := make(map[string]bool)
	for _, req := range got {
		assert.False(t, seen[req.ID], "request %s delivered twice", req.Source)
		seen[req.ID] = true
		assert.Equal(t, req.Source, string(req.Data))
		assert.Equal(t, 0, req.RetryCount)
	}
	fetches.Range(func(_, v any) bool {
		assert.Equal(t, int32(1), v.(*atomic.Int32).Load())
		return true
	})
	assert.LessOrEqual(t, maxActive.Load(), int32(4))
}

func TestScheduler_CancelledBeforeStartIsNeverFetched(t *testing.T) {
	fetcher := &fetcherMock{}
	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetcher))

	c := newCollector()
	cancelled := request.New("|cancelled", "", request.PriorityNormal, c.callback, true)
	kept := request.New("|kept", "", request.PriorityNormal, c.callback, true)
	s.Submit(cancelled)
	s.Submit(kept)
	s.Cancel(cancelled)

	fetcher.On("Fetch", mock.Anything, kept).Run(func(args mock.Arguments) {
		args.Get(1).(*request.Request).HTTPStatus = 200
	}).Once()

	startScheduler(t, s)

	got := c.wait(t, 1)
	c.expectNone(t, 30*time.Millisecond)
	assert.Same(t, kept, got[0])
	fetcher.AssertExpectations(t)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, cancelled)
}

func TestScheduler_CancelDuringFetchSuppressesCallback(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		close(entered)
		<-release
		req.HTTPStatus = 200
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch))
	startScheduler(t, s)

	c := newCollector()
	req := request.New("|slow", "", request.PriorityNormal, c.callback, true)
	s.Submit(req)

	<-entered
	s.Cancel(req)
	close(release)

	c.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, 0, c.count())
}

func TestScheduler_RetryCeiling(t *testing.T) {
	var fetches atomic.Int32
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		fetches.Add(1)
		req.ReturnCode = request.ReturnTimeout
	})

	s := update.New(
		build(t, testConfig(t)),
		update.WithFetcher(fetch),
		update.WithAfterFunc(immediateAfterFunc),
	)
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("http://example.com/feed", "", request.PriorityNormal, c.callback, true))

	got := c.wait(t, 1)
	c.expectNone(t, 30*time.Millisecond)

	assert.Equal(t, 3, got[0].RetryCount)
	assert.Equal(t, request.ReturnTimeout, got[0].ReturnCode)
	assert.Equal(t, int32(4), fetches.Load())
}

func TestScheduler_RetryDelaysTriplePerAttempt(t *testing.T) {
	clock := &manualClock{}
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		req.ReturnCode = request.ReturnConnectionFailed
	})

	s := update.New(
		build(t, testConfig(t).WithMaxRetries(4).WithRetryMaxDelay(2*time.Minute)),
		update.WithFetcher(fetch),
		update.WithAfterFunc(clock.AfterFunc),
	)
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("http://example.com/feed", "", request.PriorityNormal, c.callback, true))

	for retry := 1; retry <= 4; retry++ {
		require.Eventually(t, func() bool { return len(clock.delays()) == retry }, 2*time.Second, time.Millisecond)
		if retry < 4 {
			clock.mu.Lock()
			last := clock.timers[len(clock.timers)-1]
			clock.mu.Unlock()
			last.fn()
		}
	}

	assert.Equal(t, []time.Duration{
		10 * time.Second,
		30 * time.Second,
		90 * time.Second,
		2 * time.Minute,
	}, clock.delays())
	assert.Equal(t, 0, c.count())
}

func TestScheduler_RetriesDisabledDeliversFirstFailure(t *testing.T) {
	clock := &manualClock{}
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		req.ReturnCode = request.ReturnHostNotFound
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch), update.WithAfterFunc(clock.AfterFunc))
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("http://unknown.invalid/", "", request.PriorityNormal, c.callback, false))

	got := c.wait(t, 1)
	assert.Equal(t, 0, got[0].RetryCount)
	assert.Equal(t, request.ReturnHostNotFound, got[0].ReturnCode)
	assert.Empty(t, clock.delays())
}

func TestScheduler_GlobalRetrySwitch(t *testing.T) {
	clock := &manualClock{}
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		req.ReturnCode = request.ReturnTimeout
	})

	s := update.New(
		build(t, testConfig(t).WithAllowRetries(false)),
		update.WithFetcher(fetch),
		update.WithAfterFunc(clock.AfterFunc),
	)
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("http://example.com/", "", request.PriorityNormal, c.callback, true))

	c.wait(t, 1)
	assert.Empty(t, clock.delays())
}

func TestScheduler_NonTransientFailureIsNotRetried(t *testing.T) {
	clock := &manualClock{}
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		req.ReturnCode = request.ReturnSuccess
		req.HTTPStatus = 500
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch), update.WithAfterFunc(clock.AfterFunc))
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("http://example.com/", "", request.PriorityNormal, c.callback, true))

	got := c.wait(t, 1)
	assert.Equal(t, 500, got[0].HTTPStatus)
	assert.Empty(t, clock.delays())
}

func TestScheduler_CancelDuringRetryWait(t *testing.T) {
	clock := &manualClock{}
	var fetches atomic.Int32
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		fetches.Add(1)
		req.ReturnCode = request.ReturnTimeout
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch), update.WithAfterFunc(clock.AfterFunc))
	startScheduler(t, s)

	c := newCollector()
	req := request.New("http://example.com/", "", request.PriorityNormal, c.callback, true)
	req.Owner = "sub-1"
	s.Submit(req)

	require.Eventually(t, func() bool { return s.Stats().PendingRetries == 1 }, 2*time.Second, time.Millisecond)
	s.Cancel(req)
	clock.fireAll()

	require.Eventually(t, func() bool { return s.Stats().PendingRetries == 0 }, 2*time.Second, time.Millisecond)
	c.expectNone(t, 30*time.Millisecond)
	assert.Equal(t, int32(1), fetches.Load())
	assert.False(t, s.HasPending("sub-1"))
}

func TestScheduler_OfflineSuspendsWorkers(t *testing.T) {
	var fetches atomic.Int32
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		fetches.Add(1)
		req.HTTPStatus = 200
	})

	var transitions []bool
	var mu sync.Mutex
	s := update.New(
		build(t, testConfig(t).WithOnline(false)),
		update.WithFetcher(fetch),
		update.WithOnlineListener(func(online bool) {
			mu.Lock()
			transitions = append(transitions, online)
			mu.Unlock()
		}),
	)
	startScheduler(t, s)
	assert.False(t, s.IsOnline())

	c := newCollector()
	for i := 0; i < 3; i++ {
		s.Submit(request.New(fmt.Sprintf("|offline-%d", i), "", request.PriorityNormal, c.callback, true))
	}
	s.Submit(request.New("|urgent", "", request.PriorityHigh, c.callback, true))

	c.expectNone(t, 50*time.Millisecond)
	assert.Equal(t, int32(0), fetches.Load())

	s.SetOnline(true)
	s.SetOnline(true)

	c.wait(t, 4)
	assert.True(t, s.IsOnline())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, transitions)
}

func TestScheduler_OfflineHoldsRequestsTakenByIdleWorkers(t *testing.T) {
	var fetches atomic.Int32
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		fetches.Add(1)
		req.HTTPStatus = 200
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch))
	startScheduler(t, s)

	// Let every worker park on its queue before going offline.
	time.Sleep(20 * time.Millisecond)
	s.SetOnline(false)

	c := newCollector()
	s.Submit(request.New("|idle-normal", "", request.PriorityNormal, c.callback, true))
	s.Submit(request.New("|idle-high", "", request.PriorityHigh, c.callback, true))

	c.expectNone(t, 100*time.Millisecond)
	assert.Equal(t, int32(0), fetches.Load())

	s.SetOnline(true)

	c.wait(t, 2)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestScheduler_StopReleasesQueuedRequests(t *testing.T) {
	var fetches atomic.Int32
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		fetches.Add(1)
	})

	s := update.New(build(t, testConfig(t).WithOnline(false)), update.WithFetcher(fetch))
	require.NoError(t, s.Start(context.Background()))

	c := newCollector()
	for i, priority := range []request.Priority{request.PriorityNormal, request.PriorityNormal, request.PriorityHigh} {
		req := request.New(fmt.Sprintf("|queued-%d", i), "", priority, c.callback, true)
		req.Owner = "sub-queued"
		s.Submit(req)
	}
	require.True(t, s.HasPending("sub-queued"))

	require.NoError(t, s.Stop())

	stats := s.Stats()
	assert.Equal(t, 0, stats.HighQueued)
	assert.Equal(t, 0, stats.NormalQueued)
	assert.False(t, s.HasPending("sub-queued"))
	assert.Equal(t, 0, s.DispatchPending())
	assert.Equal(t, int32(0), fetches.Load())
	assert.Equal(t, 0, c.count())
}

func TestScheduler_HighPriorityServedWhileNormalWorkersBusy(t *testing.T) {
	release := make(chan struct{})
	var normalStarted sync.WaitGroup
	normalStarted.Add(1)

	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		if req.Priority == request.PriorityNormal {
			normalStarted.Done()
			<-release
		}
		req.HTTPStatus = 200
	})

	s := update.New(build(t, testConfig(t).WithConcurrency(2)), update.WithFetcher(fetch))
	startScheduler(t, s)
	defer close(release)

	c := newCollector()
	s.Submit(request.New("|background", "", request.PriorityNormal, c.callback, true))
	normalStarted.Wait()

	high := request.New("|user-initiated", "", request.PriorityHigh, c.callback, true)
	s.Submit(high)

	got := c.wait(t, 1)
	assert.Same(t, high, got[0])
}

func TestScheduler_FetchPanicBecomesTransportError(t *testing.T) {
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		if req.Source == "|boom" {
			panic("transport exploded")
		}
		req.HTTPStatus = 200
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch))
	startScheduler(t, s)

	c := newCollector()
	s.Submit(request.New("|boom", "", request.PriorityNormal, c.callback, true))
	got := c.wait(t, 1)
	assert.Equal(t, request.ReturnTransportError, got[0].ReturnCode)

	s.Submit(request.New("|fine", "", request.PriorityNormal, c.callback, true))
	got = c.wait(t, 1)
	assert.Equal(t, 200, got[0].HTTPStatus)
}

func TestScheduler_CallbackPanicDoesNotStopDispatcher(t *testing.T) {
	s := update.New(build(t, testConfig(t)), update.WithFetcher(succeed("ok")))
	startScheduler(t, s)

	s.Submit(request.New("|panics", "", request.PriorityNormal, func(*request.Request) {
		panic("caller bug")
	}, true))

	c := newCollector()
	s.Submit(request.New("|after", "", request.PriorityNormal, c.callback, true))
	got := c.wait(t, 1)
	assert.Equal(t, "ok", string(got[0].Data))
}

func TestScheduler_CallbacksNeverOverlap(t *testing.T) {
	s := update.New(build(t, testConfig(t).WithConcurrency(6)), update.WithFetcher(succeed("x")))
	startScheduler(t, s)

	var inside atomic.Int32
	var overlapped atomic.Bool
	c := newCollector()
	callback := func(req *request.Request) {
		if inside.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(100 * time.Microsecond)
		inside.Add(-1)
		c.callback(req)
	}

	for i := 0; i < 30; i++ {
		s.Submit(request.New(fmt.Sprintf("|%d", i), "", request.PriorityNormal, callback, true))
	}
	go s.DispatchPending()

	c.wait(t, 30)
	assert.False(t, overlapped.Load())
}

func TestScheduler_CancelByOwner(t *testing.T) {
	fetcher := &fetcherMock{}
	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetcher))

	c := newCollector()
	mine := []*request.Request{
		request.New("|a", "", request.PriorityNormal, c.callback, true),
		request.New("|b", "", request.PriorityHigh, c.callback, true),
	}
	for _, req := range mine {
		req.Owner = "subscription-42"
		s.Submit(req)
	}
	other := request.New("|c", "", request.PriorityNormal, c.callback, true)
	other.Owner = "subscription-7"
	s.Submit(other)

	assert.True(t, s.HasPending("subscription-42"))
	assert.Equal(t, 2, s.CancelByOwner("subscription-42"))
	assert.Equal(t, 0, s.CancelByOwner(""))

	fetcher.On("Fetch", mock.Anything, other).Run(func(args mock.Arguments) {
		args.Get(1).(*request.Request).HTTPStatus = 200
	}).Once()

	startScheduler(t, s)

	got := c.wait(t, 1)
	assert.Same(t, other, got[0])
	c.expectNone(t, 30*time.Millisecond)
	require.Eventually(t, func() bool {
		return !s.HasPending("subscription-42") && !s.HasPending("subscription-7")
	}, time.Second, time.Millisecond)
	fetcher.AssertExpectations(t)
}

func TestScheduler_StopDropsPendingRetries(t *testing.T) {
	clock := &manualClock{}
	fetch := funcFetcher(func(ctx context.Context, req *request.Request) {
		req.ReturnCode = request.ReturnSocketError
	})

	s := update.New(build(t, testConfig(t)), update.WithFetcher(fetch), update.WithAfterFunc(clock.AfterFunc))
	require.NoError(t, s.Start(context.Background()))

	c := newCollector()
	req := request.New("http://example.com/", "", request.PriorityNormal, c.callback, true)
	req.Owner = "sub"
	s.Submit(req)

	require.Eventually(t, func() bool { return s.Stats().PendingRetries == 1 }, 2*time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, 0, s.Stats().PendingRetries)
	assert.False(t, s.HasPending("sub"))
	clock.mu.Lock()
	assert.True(t, clock.timers[0].stopped)
	clock.mu.Unlock()
	assert.ErrorIs(t, s.Stop(), update.ErrNotStarted)
}

func TestScheduler_StartTwice(t *testing.T) {
	s := update.New(build(t, testConfig(t)), update.WithFetcher(succeed("")))
	startScheduler(t, s)

	assert.ErrorIs(t, s.Start(context.Background()), update.ErrAlreadyStarted)
}

func TestScheduler_DispatchPendingWithoutStart(t *testing.T) {
	s := update.New(build(t, testConfig(t)), update.WithFetcher(succeed("")))

	assert.Equal(t, 0, s.DispatchPending())
	stats := s.Stats()
	assert.Equal(t, 0, stats.ResultsQueued)
	assert.True(t, stats.Online)
}

func TestScheduler_StatsReflectQueues(t *testing.T) {
	s := update.New(build(t, testConfig(t)), update.WithFetcher(succeed("")))

	s.Submit(request.New("|a", "", request.PriorityHigh, nil, true))
	s.Submit(request.New("|b", "", request.PriorityNormal, nil, true))
	s.Submit(request.New("|c", "", request.PriorityNormal, nil, true))
	s.Submit(nil)

	stats := s.Stats()
	assert.Equal(t, 1, stats.HighQueued)
	assert.Equal(t, 2, stats.NormalQueued)
	assert.Equal(t, 0, stats.InFlight)
}
