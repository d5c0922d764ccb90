package fetcher

import (
	"github.com/rohmanhakim/feed-updater/internal/request"
)

// Network boundary

type NetworkRequest struct {
	URL         string
	UpdateState request.UpdateState
	Options     request.Options
}

func NewNetworkRequest(req *request.Request) NetworkRequest {
	return NetworkRequest{
		URL:         req.Source,
		UpdateState: req.UpdateState,
		Options:     req.Options,
	}
}

// NetworkResponse is a completed HTTP exchange. Status is the final status
// after redirects; Body is empty for statuses >= 400.
type NetworkResponse struct {
	Status      int
	Body        []byte
	ContentType string
	UpdateState request.UpdateState
	MovedTo     string
}
