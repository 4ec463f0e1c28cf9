package lifecycle

import (
	"sync"
	"time"

	"volition/internal/desire"
)

// lockTable serializes work per desire. Each desire gets a one-slot channel
// used as a mutex; acquisition waits a bounded time and then fails with
// ErrDesireBusy instead of blocking a worker indefinitely.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) slot(id string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[id] = ch
	}
	return ch
}

// acquire takes the desire's lock, waiting at most wait.
func (t *lockTable) acquire(id string, wait time.Duration) error {
	ch := t.slot(id)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return desire.ErrDesireBusy
	}
}

// release frees the desire's lock. Must follow a successful acquire.
func (t *lockTable) release(id string) {
	<-t.slot(id)
}

// forget drops the lock entry for a deleted desire.
func (t *lockTable) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, id)
}
