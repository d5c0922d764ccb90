package subscription

import (
	"time"

	"github.com/rohmanhakim/feed-updater/internal/request"
)

// Subscription is one caller-owned feed source.
type Subscription struct {
	ID     string
	Source string
	// Filter is an optional conversion command run on every payload.
	Filter  string
	Options request.Options
	// UpdateInterval is how often AutoUpdate refreshes the source. Zero
	// disables automatic updates.
	UpdateInterval time.Duration
}

// Flags tune a single update.
type Flags struct {
	Priority     request.Priority
	AllowRetries bool
}

// Result is what the caller learns about one finished update.
type Result struct {
	Subscription Subscription
	RequestID    string

	Data         []byte
	ContentType  string
	HTTPStatus   int
	ReturnCode   request.ReturnCode
	FilterErrors string
	RetryCount   int

	// ContentHash fingerprints Data. Empty when nothing was fetched.
	ContentHash string
	// Unchanged is true when the server answered 304 or the payload hash
	// matches the previous update.
	Unchanged    bool
	NotModified  bool
	Unauthorized bool
	Discontinued bool
	// MovedTo is the new location after a permanent redirect. Later
	// updates use it.
	MovedTo string
}

// Failed reports whether the update produced no usable payload.
func (r Result) Failed() bool {
	if r.ReturnCode != request.ReturnSuccess {
		return true
	}
	return r.HTTPStatus >= 400 || (len(r.Data) == 0 && !r.NotModified)
}

// Handler receives each Result on the dispatch goroutine.
type Handler func(Result)

// Submitter is the part of the update scheduler the updater depends on.
type Submitter interface {
	Submit(req *request.Request)
	CancelByOwner(owner string) int
	HasPending(owner string) bool
}
