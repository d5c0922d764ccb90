package update

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rohmanhakim/feed-updater/internal/config"
	"github.com/rohmanhakim/feed-updater/internal/fetcher"
	"github.com/rohmanhakim/feed-updater/internal/filter"
	"github.com/rohmanhakim/feed-updater/internal/gate"
	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/queue"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/limiter"
	"github.com/rohmanhakim/feed-updater/pkg/retry"
	"github.com/rohmanhakim/feed-updater/pkg/timeutil"
)

/*
 Scheduler is the sole control-plane authority of the update engine.

 Flow of a request:
	Submit -> priority queue -> worker (fetch, filter) -> results queue
	-> dispatcher -> retry timer -> priority queue ...
	                 \-> callback

 Guarantees:
 - A request is held by exactly one stage at a time, so at most one
   fetch per request is ever active.
 - Callbacks run only inside the dispatcher, one at a time, and at most
   once per request.
 - Cancellation is observed at every handoff; a cancelled request is
   released without a callback.
 - Only the dispatcher decides retry or delivery. Workers and the fetcher
   classify outcomes but never decide.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or delivery.
*/
type Scheduler struct {
	cfg          config.Config
	fetcher      fetcher.Fetcher
	metadataSink metadata.MetadataSink
	policy       *retry.Policy
	gate         *gate.Gate

	high    *queue.Queue[*request.Request]
	normal  *queue.Queue[*request.Request]
	results *queue.Queue[*request.Request]
	posted  *queue.Queue[func()]
	wake    chan struct{}

	afterFunc      AfterFunc
	onlineListener OnlineListener
	owners         *ownerRegistry
	timers         *timerSet
	inFlight       atomic.Int64

	// dispatchMu serializes drains so callbacks never overlap, even when
	// DispatchPending is called next to the dispatcher goroutine.
	dispatchMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type Option func(*Scheduler)

// WithFetcher replaces the default source fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(s *Scheduler) {
		s.fetcher = f
	}
}

func WithMetadataSink(sink metadata.MetadataSink) Option {
	return func(s *Scheduler) {
		s.metadataSink = sink
	}
}

// WithAfterFunc replaces the timer used for retries.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Scheduler) {
		s.afterFunc = fn
	}
}

func WithOnlineListener(fn OnlineListener) Option {
	return func(s *Scheduler) {
		s.onlineListener = fn
	}
}

// New builds a stopped scheduler. Without WithFetcher it fetches through a
// SourceFetcher backed by net/http, per-host politeness, and the shell
// filter executor.
func New(cfg config.Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		gate:      gate.New(cfg.Online()),
		high:      queue.New[*request.Request](),
		normal:    queue.New[*request.Request](),
		results:   queue.New[*request.Request](),
		posted:    queue.New[func()](),
		wake:      make(chan struct{}, 1),
		afterFunc: realAfterFunc,
		owners:    newOwnerRegistry(),
		timers:    newTimerSet(),
		policy: retry.NewPolicy(retry.NewRetryParam(
			cfg.MaxRetries(),
			cfg.RetryJitter(),
			cfg.RandomSeed(),
			timeutil.NewBackoffParam(cfg.RetryBaseDelay(), 3, cfg.RetryMaxDelay()),
		)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metadataSink == nil {
		s.metadataSink = &metadata.NoopSink{}
	}
	if s.fetcher == nil {
		s.fetcher = newDefaultFetcher(cfg, s.metadataSink)
	}
	return s
}

func newDefaultFetcher(cfg config.Config, sink metadata.MetadataSink) fetcher.Fetcher {
	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.HostDelay())
	rateLimiter.SetJitter(cfg.HostJitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	transport := fetcher.NewHTTPTransport(fetcher.HTTPTransportParam{
		UserAgent:   cfg.UserAgent(),
		Timeout:     cfg.Timeout(),
		RateLimiter: rateLimiter,
	})
	return fetcher.NewSourceFetcher(sink, transport, filter.NewExecutor(sink, ""))
}

// Start launches the worker pool and the dispatcher. The pool size is fixed
// for the lifetime of the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	workers := max(s.cfg.Concurrency(), config.MinConcurrency)
	for id := 0; id < workers; id++ {
		s.wg.Add(1)
		go s.runWorker(runCtx, id)
	}
	s.wg.Add(1)
	go s.runDispatcher(runCtx)

	s.metadataSink.RecordOnline(s.gate.IsOnline())
	logger.Info("update scheduler started", "workers", workers)
	return nil
}

// Stop cancels running fetches, waits for every worker and the dispatcher,
// and drops pending retry timers. Results that were not dispatched yet stay
// queued; DispatchPending flushes them.
func (s *Scheduler) Stop() error {
	s.lifecycleMu.Lock()
	if !s.started || s.cancel == nil {
		s.lifecycleMu.Unlock()
		return ErrNotStarted
	}
	cancel := s.cancel
	s.cancel = nil
	s.lifecycleMu.Unlock()

	cancel()
	s.wg.Wait()
	dropped := s.timers.stopAll()
	for _, req := range dropped {
		s.free(req)
	}
	// Finished results stay queued so a final DispatchPending can still
	// deliver them.
	queued := append(s.high.Drain(), s.normal.Drain()...)
	for _, req := range queued {
		s.free(req)
	}
	s.recordQueueDepth()

	logger.Info("update scheduler stopped",
		"dropped_retries", len(dropped),
		"dropped_queued", len(queued),
	)
	return nil
}

// Submit hands a request to the engine. The request must not be touched by
// the caller until its callback runs, except for Cancel.
func (s *Scheduler) Submit(req *request.Request) {
	if req == nil {
		return
	}
	s.owners.add(req)
	s.enqueue(req)
	logger.Debug("request submitted",
		logger.RequestID(req.ID),
		logger.Source(req.Source),
		logger.KeyPriority, req.Priority.String(),
	)
}

// Cancel abandons a request. It is released at its next handoff without a
// callback. A running fetch is not interrupted.
func (s *Scheduler) Cancel(req *request.Request) {
	if req == nil {
		return
	}
	req.Cancel()
}

// CancelByOwner cancels every live request submitted with owner and returns
// how many were found.
func (s *Scheduler) CancelByOwner(owner string) int {
	if owner == "" {
		return 0
	}
	return s.owners.cancel(owner)
}

// HasPending reports whether owner has a request that was not released yet.
func (s *Scheduler) HasPending(owner string) bool {
	return s.owners.count(owner) > 0
}

// SetOnline switches the offline gate. Going online releases every waiting
// worker at once. Setting the current state again is a no-op.
func (s *Scheduler) SetOnline(online bool) {
	if !s.gate.SetOnline(online) {
		return
	}
	s.metadataSink.RecordOnline(online)
	if s.onlineListener != nil {
		s.onlineListener(online)
	}
}

func (s *Scheduler) IsOnline() bool {
	return s.gate.IsOnline()
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		HighQueued:     s.high.Len(),
		NormalQueued:   s.normal.Len(),
		ResultsQueued:  s.results.Len(),
		InFlight:       int(s.inFlight.Load()),
		PendingRetries: s.timers.len(),
		Online:         s.gate.IsOnline(),
	}
}

func (s *Scheduler) enqueue(req *request.Request) {
	if req.Priority == request.PriorityHigh {
		s.high.Push(req)
	} else {
		s.normal.Push(req)
	}
	s.recordQueueDepth()
}

// free ends a request's life inside the engine.
func (s *Scheduler) free(req *request.Request) {
	s.owners.remove(req)
	req.Release()
}

func (s *Scheduler) recordQueueDepth() {
	s.metadataSink.RecordQueueDepth(s.high.Len(), s.normal.Len(), s.results.Len())
}
