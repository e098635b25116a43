package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("another operation is already in progress")

// Guard serializes operations that must not overlap. Synchronous work goes
// through Execute; work that finishes later on another goroutine acquires
// the guard up front and releases it from its completion callback.
type Guard struct {
	mu     sync.Mutex
	isBusy bool
}

func NewGuard() *Guard {
	return &Guard{}
}

// Acquire marks the guard busy, failing with ErrBusy if it already is.
func (g *Guard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isBusy {
		return ErrBusy
	}
	g.isBusy = true
	return nil
}

// Release clears the busy flag. Releasing an idle guard is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	g.isBusy = false
	g.mu.Unlock()
}

// Busy reports whether the guard is currently held.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isBusy
}

// Execute runs task while holding the guard.
func (g *Guard) Execute(task func() error) error {
	if err := g.Acquire(); err != nil {
		return err
	}
	defer g.Release()
	return task()
}
