package update

import (
	"time"
)

// Stats is a point-in-time snapshot of the engine. Values are read without
// a global lock and may be mutually inconsistent by one request.
type Stats struct {
	HighQueued     int
	NormalQueued   int
	ResultsQueued  int
	InFlight       int
	PendingRetries int
	Online         bool
}

// Stopper is the handle of a scheduled retry.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d. The default is time.AfterFunc; tests
// replace it to fire retries on demand.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// OnlineListener is told about real online/offline transitions.
type OnlineListener func(online bool)
