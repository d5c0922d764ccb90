package update

import (
	"context"
	"fmt"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/retry"
)

// runDispatcher is the single execution context for callbacks. It drains
// the results queue on every tick and runs closures posted by retry timers
// as soon as they arrive.
func (s *Scheduler) runDispatcher(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DispatchInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.runPosted()
		case <-ticker.C:
			s.DispatchPending()
		}
	}
}

// post queues fn for the dispatcher. It never blocks.
func (s *Scheduler) post(fn func()) {
	s.posted.Push(fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runPosted() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.runPostedLocked()
}

func (s *Scheduler) runPostedLocked() {
	for {
		fn, ok := s.posted.TryPop()
		if !ok {
			return
		}
		fn()
	}
}

// DispatchPending runs posted closures, then drains every available result
// without blocking. It returns the number of callbacks invoked. The
// dispatcher calls it on each tick; tests and shutdown call it directly.
func (s *Scheduler) DispatchPending() int {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.runPostedLocked()

	delivered := 0
	for {
		req, ok := s.results.TryPop()
		if !ok {
			break
		}
		if s.handleResult(req) {
			delivered++
		}
	}
	s.recordQueueDepth()
	return delivered
}

// handleResult frees, retries or delivers one finished request. It reports
// whether a callback ran.
func (s *Scheduler) handleResult(req *request.Request) bool {
	if req.IsCancelled() {
		s.metadataSink.RecordCancel(req.Source, metadata.CancelAtDispatch)
		s.free(req)
		return false
	}

	decision, err := s.policy.Decide(retry.Attempt{
		Transient:    req.ReturnCode.IsTransient(),
		AllowRetries: req.AllowRetries && s.cfg.AllowRetries(),
		RetryCount:   req.RetryCount,
	})

	switch decision {
	case retry.Retry:
		s.scheduleRetry(req)
		return false
	case retry.GiveUp:
		s.metadataSink.RecordError(
			time.Now(),
			"update",
			"Scheduler.handleResult",
			metadata.CauseRetryExhausted,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrRequestID, req.ID),
				metadata.NewAttr(metadata.AttrSource, req.Source),
				metadata.NewAttr(metadata.AttrReturnCode, req.ReturnCode.String()),
			},
		)
	}

	delivered := s.deliver(req)
	s.free(req)
	return delivered
}

// deliver invokes the callback and survives a panicking one.
func (s *Scheduler) deliver(req *request.Request) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			delivered = true
			logger.Error("callback panicked",
				logger.RequestID(req.ID),
				logger.Source(req.Source),
				logger.KeyError, fmt.Sprint(r),
			)
			s.metadataSink.RecordError(
				time.Now(),
				"update",
				"Scheduler.deliver",
				metadata.CauseInvariantViolation,
				fmt.Sprintf("callback panicked: %v", r),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrRequestID, req.ID),
					metadata.NewAttr(metadata.AttrSource, req.Source),
				},
			)
		}
	}()

	if !req.Deliver() {
		return false
	}
	s.metadataSink.RecordDelivery(req.Source, req.ReturnCode.String(), req.HTTPStatus, req.RetryCount)
	return true
}
