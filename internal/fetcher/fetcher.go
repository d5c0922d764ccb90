package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/filter"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

/*
Responsibilities

- Resolve a request's source to a command, a network URL or a local file
- Fill Data, HTTPStatus and ReturnCode from the outcome
- Run the post-fetch filter over successful payloads

Fetch Semantics

- Failures are status fields on the request, never panics
- HTTP statuses >= 400 carry no payload
- Every attempt is reported to the metadata sink

The fetcher never parses content; it only fills bytes and status.
*/

type Fetcher interface {
	// Fetch runs one attempt. The returned error is informational: the
	// request already carries the outcome.
	Fetch(ctx context.Context, req *request.Request) failure.ClassifiedError
}

type SourceFetcher struct {
	metadataSink metadata.MetadataSink
	transport    NetworkTransport
	filter       *filter.Executor
}

func NewSourceFetcher(
	metadataSink metadata.MetadataSink,
	transport NetworkTransport,
	filterExecutor *filter.Executor,
) *SourceFetcher {
	return &SourceFetcher{
		metadataSink: metadataSink,
		transport:    transport,
		filter:       filterExecutor,
	}
}

func (s *SourceFetcher) Fetch(ctx context.Context, req *request.Request) failure.ClassifiedError {
	callerMethod := "SourceFetcher.Fetch"
	startTime := time.Now()

	var err *FetchError
	kind := req.Kind()
	switch kind {
	case request.KindCommand:
		err = execCommand(ctx, req)
	case request.KindNetwork:
		err = s.fetchNetwork(ctx, req)
	default:
		err = loadFile(req)
	}

	if len(req.Data) > 0 && req.FilterCmd != "" && s.filter != nil {
		s.filter.Apply(ctx, req)
	}

	s.metadataSink.RecordFetch(metadata.FetchEvent{
		Source:      req.Source,
		Kind:        kind.String(),
		HTTPStatus:  req.HTTPStatus,
		ReturnCode:  req.ReturnCode.String(),
		Duration:    time.Since(startTime),
		ContentType: req.ContentType,
		Size:        req.Size(),
		RetryCount:  req.RetryCount,
	})

	if err != nil {
		s.recordFetchError(callerMethod, req, err)
		return err
	}
	return nil
}

func (s *SourceFetcher) fetchNetwork(ctx context.Context, req *request.Request) *FetchError {
	if s.transport == nil {
		req.ReturnCode = request.ReturnTransportError
		return &FetchError{
			Message:   "no network transport configured",
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	resp, err := s.transport.Fetch(ctx, NewNetworkRequest(req))
	if err != nil {
		fetchErr := classifyTransportError(err)
		req.ReturnCode = returnCodeFor(fetchErr)
		req.HTTPStatus = 0
		req.Data = nil
		return fetchErr
	}

	req.ReturnCode = request.ReturnSuccess
	req.HTTPStatus = resp.Status
	req.ContentType = resp.ContentType
	req.UpdateState = resp.UpdateState
	req.MovedTo = resp.MovedTo
	if resp.Status >= http.StatusBadRequest {
		req.Data = nil
		return nil
	}
	req.Data = resp.Body
	return nil
}

func (s *SourceFetcher) recordFetchError(callerMethod string, req *request.Request, err *FetchError) {
	s.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		mapFetchErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrRequestID, req.ID),
			metadata.NewAttr(metadata.AttrSource, req.Source),
			metadata.NewAttr(metadata.AttrReturnCode, req.ReturnCode.String()),
		},
	)
}

// returnCodeFor translates a transport failure into the request's
// return code.
func returnCodeFor(err *FetchError) request.ReturnCode {
	switch err.Cause {
	case ErrCauseTimeout:
		return request.ReturnTimeout
	case ErrCauseHostNotFound:
		return request.ReturnHostNotFound
	case ErrCauseConnectionFailed:
		return request.ReturnConnectionFailed
	case ErrCauseSocketError:
		return request.ReturnSocketError
	case ErrCauseInvalidURL:
		return request.ReturnInvalidURL
	case ErrCauseCancelled:
		return request.ReturnCancelled
	case ErrCausePanic:
		return request.ReturnTransportError
	default:
		return request.ReturnUnknown
	}
}

// asFetchError passes through a *FetchError produced by a transport and
// wraps anything else as an unknown, retryable failure.
func asFetchError(err error) (*FetchError, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr, true
	}
	return nil, false
}

func unknownError(err error) *FetchError {
	return &FetchError{
		Message:   fmt.Sprintf("request failed: %v", err),
		Retryable: true,
		Cause:     ErrCauseNetworkFailure,
	}
}
