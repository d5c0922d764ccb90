package gate

import (
	"context"
	"sync"
)

// Gate suspends workers while the application is offline.
//
// Going online closes the current release channel, which wakes every waiter
// at once. Going offline installs a fresh channel. Waiters re-check the flag
// after waking, so a flap back to offline is honoured.
type Gate struct {
	mu      sync.Mutex
	online  bool
	release chan struct{}
}

func New(online bool) *Gate {
	g := &Gate{
		online:  online,
		release: make(chan struct{}),
	}
	if online {
		close(g.release)
	}
	return g
}

// SetOnline reports whether the call changed the state. Repeated calls with
// the same value are no-ops.
func (g *Gate) SetOnline(online bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.online == online {
		return false
	}
	g.online = online
	if online {
		close(g.release)
	} else {
		g.release = make(chan struct{})
	}
	return true
}

func (g *Gate) IsOnline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.online
}

// Wait returns nil as soon as the gate is online, or ctx.Err() if the
// context ends while offline.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.online {
			g.mu.Unlock()
			return nil
		}
		release := g.release
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
		}
	}
}
