package state

import (
	"time"

	"github.com/rohmanhakim/feed-updater/internal/request"
)

// Entry is everything remembered about one source between updates.
type Entry struct {
	UpdateState request.UpdateState
	// LastPoll is when the last update completed, successful or not.
	LastPoll time.Time
	// ContentHash fingerprints the last delivered payload.
	ContentHash string
	// HTTPStatus of the last update.
	HTTPStatus int
	// Discontinued is set once the server answered 410 Gone.
	Discontinued bool
}

// Store defines the port for update-state persistence. Keys are canonical
// source keys; implementations own the encoding of entries.
type Store interface {
	// Get returns false on the second value when the key is unknown.
	Get(key string) (Entry, bool, error)
	Put(key string, entry Entry) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}
