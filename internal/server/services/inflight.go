package services

import (
	"context"
	"sync"
)

// InFlight counts, per user, the chain-backed entries that were committed
// locally but have not reached a terminal status yet.
type InFlight struct {
	mu    sync.Mutex
	users map[string]*userFlight
}

type userFlight struct {
	n    int
	idle chan struct{} // closed when n drops to zero
}

func NewInFlight() *InFlight {
	return &InFlight{users: make(map[string]*userFlight)}
}

func (f *InFlight) Add(userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		u, ok := f.users[id]
		if !ok {
			u = &userFlight{idle: make(chan struct{})}
			f.users[id] = u
		}
		u.n++
	}
}

func (f *InFlight) Done(userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		u, ok := f.users[id]
		if !ok {
			continue
		}
		u.n--
		if u.n <= 0 {
			close(u.idle)
			delete(f.users, id)
		}
	}
}

func (f *InFlight) Count(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u.n
	}
	return 0
}

// WaitIdle blocks until userID has nothing in flight or ctx ends.
func (f *InFlight) WaitIdle(ctx context.Context, userID string) error {
	for {
		f.mu.Lock()
		u, ok := f.users[userID]
		f.mu.Unlock()
		if !ok {
			return nil
		}
		select {
		case <-u.idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
