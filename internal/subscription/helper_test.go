package subscription_test

import (
	"errors"
	"sync"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/internal/state"
	"github.com/rohmanhakim/feed-updater/internal/subscription"
)

// fakeSubmitter holds submitted requests until the test completes them.
type fakeSubmitter struct {
	mu      sync.Mutex
	pending []*request.Request
}

func (f *fakeSubmitter) Submit(req *request.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, req)
}

func (f *fakeSubmitter) CancelByOwner(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.pending[:0]
	cancelled := 0
	for _, req := range f.pending {
		if req.Owner == owner {
			req.Cancel()
			cancelled++
			continue
		}
		kept = append(kept, req)
	}
	f.pending = kept
	return cancelled
}

func (f *fakeSubmitter) HasPending(owner string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.pending {
		if req.Owner == owner {
			return true
		}
	}
	return false
}

// complete pops the oldest request, lets fill set its outcome and delivers
// it the way the dispatcher would.
func (f *fakeSubmitter) complete(fill func(*request.Request)) *request.Request {
	f.mu.Lock()
	req := f.pending[0]
	f.pending = f.pending[1:]
	f.mu.Unlock()

	req.ReturnCode = request.ReturnSuccess
	fill(req)
	req.Deliver()
	return req
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeSubmitter) last() *request.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[len(f.pending)-1]
}

type resultLog struct {
	mu      sync.Mutex
	results []subscription.Result
}

func (l *resultLog) handle(r subscription.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

func (l *resultLog) lastResult() subscription.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.results[len(l.results)-1]
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

// failingStore fails every write.
type failingStore struct {
	*state.MemoryStore
}

func (f failingStore) Put(key string, entry state.Entry) error {
	return errors.New("disk full")
}

func newFixture() (*fakeSubmitter, *state.MemoryStore, *resultLog, *fixedClock, *subscription.Updater) {
	submitter := &fakeSubmitter{}
	store := state.NewMemoryStore()
	log := &resultLog{}
	clock := &fixedClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	updater := subscription.NewUpdater(submitter, store, log.handle, subscription.WithClock(clock.Now))
	return submitter, store, log, clock, updater
}

func feedSub() subscription.Subscription {
	return subscription.Subscription{
		ID:             "sub-1",
		Source:         "http://Example.com:80/feed.xml",
		Filter:         "",
		Options:        request.Options{Username: "u"},
		UpdateInterval: time.Hour,
	}
}
