package subscription

import (
	"net/http"
	"sync"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/internal/state"
	"github.com/rohmanhakim/feed-updater/pkg/hashutil"
	"github.com/rohmanhakim/feed-updater/pkg/urlutil"
)

/*
Updater turns subscriptions into update requests and folds the outcome
back into persisted update state.

  - At most one update per subscription is in flight. Update is a no-op
    while the previous one is pending.
  - Requests are owned by the subscription ID, so Cancel drops all of them.
  - State is written before the handler runs, so a handler that triggers
    another update already sees the new ETag and cookies.
*/
type Updater struct {
	submitter    Submitter
	store        state.Store
	metadataSink metadata.MetadataSink
	handler      Handler
	now          func() time.Time

	// submitMu makes the pending check and the submit one step.
	submitMu sync.Mutex

	// moved remembers permanent redirects per subscription ID.
	mu    sync.Mutex
	moved map[string]string
}

type Option func(*Updater)

// WithClock replaces time.Now for poll bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(u *Updater) {
		u.now = now
	}
}

func WithMetadataSink(sink metadata.MetadataSink) Option {
	return func(u *Updater) {
		u.metadataSink = sink
	}
}

func NewUpdater(submitter Submitter, store state.Store, handler Handler, opts ...Option) *Updater {
	u := &Updater{
		submitter: submitter,
		store:     store,
		handler:   handler,
		now:       time.Now,
		moved:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.metadataSink == nil {
		u.metadataSink = &metadata.NoopSink{}
	}
	if u.store == nil {
		u.store = state.NewMemoryStore()
	}
	return u
}

// Update submits a request for sub. It returns false when an update for
// the same subscription is still pending. It is safe to call from several
// goroutines; at most one of them submits.
func (u *Updater) Update(sub Subscription, flags Flags) bool {
	u.submitMu.Lock()
	defer u.submitMu.Unlock()

	if u.submitter.HasPending(sub.ID) {
		logger.Debug("update already in flight", logger.KeyOwner, sub.ID)
		return false
	}

	source := u.currentSource(sub)
	entry, _ := u.loadEntry(source)

	req := request.New(source, sub.Filter, flags.Priority, func(r *request.Request) {
		u.complete(sub, r)
	}, flags.AllowRetries)
	req.Owner = sub.ID
	req.Options = sub.Options
	req.UpdateState = entry.UpdateState

	u.submitter.Submit(req)
	return true
}

// AutoUpdate updates sub only when its interval has elapsed since the last
// poll. Discontinued sources and subscriptions without an interval are
// skipped.
func (u *Updater) AutoUpdate(sub Subscription, allowRetries bool) bool {
	if sub.UpdateInterval <= 0 {
		return false
	}
	entry, _ := u.loadEntry(u.currentSource(sub))
	if entry.Discontinued {
		return false
	}
	if !entry.LastPoll.IsZero() && entry.LastPoll.Add(sub.UpdateInterval).After(u.now()) {
		return false
	}
	return u.Update(sub, Flags{Priority: request.PriorityNormal, AllowRetries: allowRetries})
}

// Cancel drops every pending update of sub without calling the handler.
func (u *Updater) Cancel(sub Subscription) int {
	return u.submitter.CancelByOwner(sub.ID)
}

func (u *Updater) currentSource(sub Subscription) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if moved, ok := u.moved[sub.ID]; ok {
		return moved
	}
	return sub.Source
}

func (u *Updater) loadEntry(source string) (state.Entry, bool) {
	entry, found, err := u.store.Get(urlutil.SourceKey(source))
	if err != nil {
		u.recordStoreError("Updater.loadEntry", source, err)
		return state.Entry{}, false
	}
	return entry, found
}

func (u *Updater) complete(sub Subscription, req *request.Request) {
	key := urlutil.SourceKey(req.Source)
	entry, _ := u.loadEntry(req.Source)

	result := Result{
		Subscription: sub,
		RequestID:    req.ID,
		Data:         req.Data,
		ContentType:  req.ContentType,
		HTTPStatus:   req.HTTPStatus,
		ReturnCode:   req.ReturnCode,
		FilterErrors: req.FilterErrors,
		RetryCount:   req.RetryCount,
	}

	entry.LastPoll = u.now()
	entry.HTTPStatus = req.HTTPStatus

	if req.ReturnCode == request.ReturnSuccess {
		entry.UpdateState = req.UpdateState

		switch req.HTTPStatus {
		case http.StatusNotModified:
			result.NotModified = true
			result.Unchanged = true
		case http.StatusUnauthorized:
			result.Unauthorized = true
		case http.StatusGone:
			result.Discontinued = true
			entry.Discontinued = true
		}

		if len(req.Data) > 0 {
			result.ContentHash = hashutil.Fingerprint(req.Data)
			result.Unchanged = result.ContentHash == entry.ContentHash
			entry.ContentHash = result.ContentHash
		}
	}

	if err := u.store.Put(key, entry); err != nil {
		u.recordStoreError("Updater.complete", req.Source, err)
	}

	if req.MovedTo != "" && req.MovedTo != req.Source {
		result.MovedTo = req.MovedTo
		u.move(sub.ID, key, req.MovedTo, entry)
	}

	logger.Info("subscription updated",
		logger.KeyOwner, sub.ID,
		logger.Source(req.Source),
		logger.Status(req.HTTPStatus),
		logger.KeyReturnCode, req.ReturnCode.String(),
		"unchanged", result.Unchanged,
	)

	if u.handler != nil {
		u.handler(result)
	}
}

// move carries the entry over to the new location so the next update is
// conditional against it.
func (u *Updater) move(id string, oldKey string, target string, entry state.Entry) {
	u.mu.Lock()
	u.moved[id] = target
	u.mu.Unlock()

	newKey := urlutil.SourceKey(target)
	if err := u.store.Put(newKey, entry); err != nil {
		u.recordStoreError("Updater.move", target, err)
		return
	}
	if err := u.store.Delete(oldKey); err != nil {
		u.recordStoreError("Updater.move", oldKey, err)
	}
	logger.Info("subscription moved permanently", logger.KeyOwner, id, "moved_to", target)
}

func (u *Updater) recordStoreError(action string, source string, err error) {
	u.metadataSink.RecordError(
		time.Now(),
		"subscription",
		action,
		metadata.CauseStorageFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrSource, source),
		},
	)
}
