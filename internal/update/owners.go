package update

import (
	"sync"

	"github.com/rohmanhakim/feed-updater/internal/request"
)

// ownerRegistry tracks live requests by owner so a caller can cancel
// everything it submitted. Requests leave the registry when freed.
type ownerRegistry struct {
	mu      sync.Mutex
	byOwner map[string]map[*request.Request]struct{}
}

func newOwnerRegistry() *ownerRegistry {
	return &ownerRegistry{
		byOwner: make(map[string]map[*request.Request]struct{}),
	}
}

func (o *ownerRegistry) add(req *request.Request) {
	if req.Owner == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.byOwner[req.Owner]
	if !ok {
		set = make(map[*request.Request]struct{})
		o.byOwner[req.Owner] = set
	}
	set[req] = struct{}{}
}

func (o *ownerRegistry) remove(req *request.Request) {
	if req.Owner == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.byOwner[req.Owner]
	if !ok {
		return
	}
	delete(set, req)
	if len(set) == 0 {
		delete(o.byOwner, req.Owner)
	}
}

// cancel marks every live request of owner cancelled and returns how many
// there were.
func (o *ownerRegistry) cancel(owner string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	set := o.byOwner[owner]
	for req := range set {
		req.Cancel()
	}
	return len(set)
}

func (o *ownerRegistry) count(owner string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.byOwner[owner])
}
