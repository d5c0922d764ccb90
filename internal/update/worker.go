package update

import (
	"context"
	"fmt"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
)

// highPriorityWorker only ever serves the high-priority queue, so user
// initiated requests are not starved by a backlog of background updates.
const highPriorityWorker = 0

func (s *Scheduler) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	log := logger.With(logger.Worker(id))
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for {
		if err := s.gate.Wait(ctx); err != nil {
			return
		}

		req, err := s.next(ctx, id)
		if err != nil {
			return
		}

		// The engine may have gone offline while this worker sat in Pop.
		if err := s.gate.Wait(ctx); err != nil {
			s.enqueue(req)
			return
		}

		if req.IsCancelled() {
			s.metadataSink.RecordCancel(req.Source, metadata.CancelAtQueue)
			s.free(req)
			continue
		}

		s.process(ctx, id, req)
	}
}

// next returns the request a worker serves next. Worker 0 waits on the
// high-priority queue only; the others prefer it but wait on the normal one.
func (s *Scheduler) next(ctx context.Context, id int) (*request.Request, error) {
	if id == highPriorityWorker {
		return s.high.Pop(ctx)
	}
	if req, ok := s.high.TryPop(); ok {
		return req, nil
	}
	return s.normal.Pop(ctx)
}

func (s *Scheduler) process(ctx context.Context, id int, req *request.Request) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	logger.Debug("processing request",
		logger.Worker(id),
		logger.RequestID(req.ID),
		logger.Source(req.Source),
		logger.KeyRetry, req.RetryCount,
	)
	s.fetch(ctx, req)

	s.results.Push(req)
	s.recordQueueDepth()
}

// fetch runs the fetcher and turns a panic into a terminal transport error
// so the worker survives.
func (s *Scheduler) fetch(ctx context.Context, req *request.Request) {
	defer func() {
		if r := recover(); r != nil {
			req.Data = nil
			req.HTTPStatus = 0
			req.ReturnCode = request.ReturnTransportError
			s.metadataSink.RecordError(
				time.Now(),
				"update",
				"Scheduler.fetch",
				metadata.CauseInvariantViolation,
				fmt.Sprintf("fetch panicked: %v", r),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrRequestID, req.ID),
					metadata.NewAttr(metadata.AttrSource, req.Source),
				},
			)
		}
	}()
	s.fetcher.Fetch(ctx, req)
}
