// Package relay moves completion callbacks from background goroutines onto
// the UI loop. Workers hand the relay a closure; the UI drains C and runs
// each closure on its own goroutine, so everything a closure touches is
// UI-owned state. Invoke never blocks the caller, and delivery order matches
// invocation order.
package relay

import "sync"

// Relay is the cross-goroutine dispatch queue for the UI loop.
type Relay struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	out  chan func()
}

// New creates a relay and starts its pump goroutine.
func New() *Relay {
	r := &Relay{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan func()),
	}
	go r.pump()
	return r
}

// Invoke schedules fn to run on the UI loop. It queues and returns
// immediately. After Close the callback is dropped silently: the UI is gone,
// so there is nobody left to act on the result.
func (r *Relay) Invoke(fn func()) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.queue = append(r.queue, fn)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// C returns the channel the UI loop drains. Each received function must be
// executed on the UI goroutine. The channel is closed after Close once the
// pump has exited.
func (r *Relay) C() <-chan func() {
	return r.out
}

// Close stops delivery. Queued callbacks that were not yet handed to the UI
// are discarded. Safe to call more than once.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.done)
}

func (r *Relay) pump() {
	defer close(r.out)
	for {
		fn, ok := r.next()
		if !ok {
			return
		}
		select {
		case r.out <- fn:
		case <-r.done:
			return
		}
	}
}

// next blocks until a callback is available or the relay is closed.
func (r *Relay) next() (func(), bool) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, false
		}
		if len(r.queue) > 0 {
			fn := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return fn, true
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-r.done:
			return nil, false
		}
	}
}
