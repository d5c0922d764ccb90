package fetcher_test

import (
	"context"
	"sync"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/fetcher"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/stretchr/testify/mock"
)

// transportMock is a testify mock for fetcher.NetworkTransport
type transportMock struct {
	mock.Mock
}

func (m *transportMock) Fetch(ctx context.Context, req fetcher.NetworkRequest) (fetcher.NetworkResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fetcher.NetworkResponse), args.Error(1)
}

// recordingSink keeps fetch and error events for assertions
type recordingSink struct {
	metadata.NoopSink
	mu          sync.Mutex
	fetchEvents []metadata.FetchEvent
	errorCauses []metadata.ErrorCause
}

func (r *recordingSink) RecordFetch(event metadata.FetchEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchEvents = append(r.fetchEvents, event)
}

func (r *recordingSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCauses = append(r.errorCauses, cause)
}
