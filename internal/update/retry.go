package update

import (
	"sync"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
)

// scheduleRetry clears the last attempt and arms a one-shot timer. The delay
// grows with the retries already made; RetryCount is bumped now so the
// request carries the number of scheduled retries from here on.
func (s *Scheduler) scheduleRetry(req *request.Request) {
	delay := s.policy.Delay(req.RetryCount)
	returnCode := req.ReturnCode.String()

	req.ResetResult()
	req.RetryCount++
	s.metadataSink.RecordRetry(req.Source, returnCode, req.RetryCount, delay)

	// The timer only posts; the request is inspected on the dispatcher.
	s.timers.add(req, s.afterFunc(delay, func() {
		s.post(func() {
			if !s.timers.remove(req) {
				return
			}
			s.fireRetry(req)
		})
	}))
}

func (s *Scheduler) fireRetry(req *request.Request) {
	if req.IsCancelled() {
		s.metadataSink.RecordCancel(req.Source, metadata.CancelAtRetry)
		s.free(req)
		return
	}
	s.enqueue(req)
}

// timerSet holds the armed retry timers so Stop can disarm them.
type timerSet struct {
	mu     sync.Mutex
	timers map[*request.Request]Stopper
}

func newTimerSet() *timerSet {
	return &timerSet{
		timers: make(map[*request.Request]Stopper),
	}
}

func (t *timerSet) add(req *request.Request, stopper Stopper) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timers[req] = stopper
}

// remove reports whether req was still armed. A false return means Stop
// already dropped it.
func (t *timerSet) remove(req *request.Request) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[req]
	delete(t.timers, req)
	return ok
}

// stopAll disarms every timer and returns the requests that were waiting.
func (t *timerSet) stopAll() []*request.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := make([]*request.Request, 0, len(t.timers))
	for req, stopper := range t.timers {
		stopper.Stop()
		delete(t.timers, req)
		dropped = append(dropped, req)
	}
	return dropped
}

func (t *timerSet) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
