package request

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Callback receives the fully populated Request. It runs on the dispatch
// goroutine and must not block for long.
type Callback func(*Request)

/*
Request is one unit of update work: fetch, optional filter, then either a
retry or delivery to its callback.

Ownership:
  - A Request is held by exactly one of: a priority queue, a worker, a
    retry timer, the results queue, the dispatcher.
  - Only the holder touches the result fields. Cancel is the one operation
    allowed from anywhere, and it only flips the state tag.

Cancellation is cooperative. A cancelled Request stays where it is until
its next handoff (queue pop, retry fire, result drain), where it is
released without invoking the callback. Cancelling never interrupts a
running fetch.
*/
type Request struct {
	ID           string
	Source       string
	FilterCmd    string
	Priority     Priority
	Owner        string
	AllowRetries bool
	RetryCount   int
	UpdateState  UpdateState
	Options      Options

	Data         []byte
	ContentType  string
	HTTPStatus   int
	ReturnCode   ReturnCode
	FilterErrors string
	// MovedTo is set when a network source answered with a permanent
	// redirect chain.
	MovedTo string

	callback  Callback
	state     atomic.Int32
	delivered atomic.Bool
}

// New creates a pending Request with empty result buffers.
func New(
	source string,
	filterCmd string,
	priority Priority,
	callback Callback,
	allowRetries bool,
) *Request {
	return &Request{
		ID:           uuid.NewString(),
		Source:       source,
		FilterCmd:    filterCmd,
		Priority:     priority,
		AllowRetries: allowRetries,
		callback:     callback,
	}
}

// Cancel marks the request abandoned. Safe to call from any goroutine and
// more than once.
func (r *Request) Cancel() {
	r.state.Store(int32(StateCancelled))
}

func (r *Request) State() State {
	return State(r.state.Load())
}

func (r *Request) IsCancelled() bool {
	return r.State() == StateCancelled
}

// Deliver invokes the callback unless the request was cancelled or already
// delivered. It reports whether the callback ran.
func (r *Request) Deliver() bool {
	if r.IsCancelled() || r.callback == nil {
		return false
	}
	if !r.delivered.CompareAndSwap(false, true) {
		return false
	}
	r.callback(r)
	return true
}

// Size is the length of the fetched payload.
func (r *Request) Size() int {
	return len(r.Data)
}

// Kind classifies the request's source.
func (r *Request) Kind() SourceKind {
	return KindOf(r.Source)
}

// ResetResult discards everything a previous attempt produced so the
// request can be fetched again.
func (r *Request) ResetResult() {
	r.Data = nil
	r.ContentType = ""
	r.HTTPStatus = 0
	r.ReturnCode = ReturnSuccess
	r.FilterErrors = ""
	r.MovedTo = ""
}

// Release drops the callback once the request reached the end of its life,
// so the caller's closure is not kept alive by queues or timers. A released
// request is never delivered. The payload stays readable for callers that
// kept the pointer.
func (r *Request) Release() {
	r.callback = nil
}
