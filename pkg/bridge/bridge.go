// Package bridge runs units of work on a single background worker goroutine
// on behalf of the UI loop. The UI submits work and carries on; the worker
// executes submissions one at a time in FIFO order and hands each completion
// callback to the relay, which runs it back on the UI goroutine.
//
// The worker goroutine is the serialization point for everything the UI asks
// of the audio server: two submitted operations never overlap, so the
// submitting side needs no locking around them.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/spinpanel/spinpanel/pkg/relay"
)

// ErrBridgeClosed is returned by Submit after Stop has begun, and is the
// completion error for work that was queued but never started when Stop
// arrived.
var ErrBridgeClosed = errors.New("bridge closed")

// ErrNotStarted is returned by Submit before Start has been called.
var ErrNotStarted = errors.New("bridge not started")

// WorkFunc is a unit of work executed on the worker goroutine. The context
// is cancelled when the bridge stops; long-running work should honor it.
type WorkFunc func(ctx context.Context) (any, error)

// CompletionFunc receives the outcome of a unit of work on the UI goroutine.
type CompletionFunc func(result any, err error)

type workOrder struct {
	work     WorkFunc
	complete CompletionFunc
}

// Bridge owns the worker goroutine and its submission queue.
type Bridge struct {
	relay *relay.Relay
	log   *slog.Logger

	mu      sync.Mutex
	queue   []workOrder
	started bool
	stopped bool

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a bridge that delivers completions through r. A nil logger
// falls back to slog's default.
func New(r *relay.Relay, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		relay: r,
		log:   logger,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling Start again is a no-op.
func (b *Bridge) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.mu.Unlock()

	go b.run()
}

// Submit queues work for the worker goroutine and returns immediately.
// complete may be nil for fire-and-forget work; failures of such work are
// still logged. Every submission accepted here is completed exactly once:
// with the work's own outcome, or with ErrBridgeClosed if the bridge stopped
// before the work started.
func (b *Bridge) Submit(work WorkFunc, complete CompletionFunc) error {
	if work == nil {
		return errors.New("nil work")
	}

	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	if b.stopped {
		b.mu.Unlock()
		return ErrBridgeClosed
	}
	b.queue = append(b.queue, workOrder{work: work, complete: complete})
	b.mu.Unlock()

	b.wakeWorker()
	return nil
}

// Stop rejects further submissions, cancels the in-flight unit's context and
// waits for the worker to drain. Queued work that never started completes
// with ErrBridgeClosed. Stop returns ctx.Err if the worker does not finish
// in time; the worker keeps draining in the background in that case.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	alreadyStopping := b.stopped
	b.stopped = true
	b.mu.Unlock()

	if !alreadyStopping {
		b.cancel()
		b.wakeWorker()
	}

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) wakeWorker() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		order, execute, ok := b.next()
		if !ok {
			return
		}
		if !execute {
			b.deliver(order, nil, ErrBridgeClosed)
			continue
		}
		result, err := b.execute(order)
		b.deliver(order, result, err)
	}
}

// next pops the oldest order. execute is false once Stop has begun: the
// order must be completed with ErrBridgeClosed instead of running.
func (b *Bridge) next() (order workOrder, execute bool, ok bool) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			order = b.queue[0]
			b.queue = b.queue[1:]
			stopped := b.stopped
			b.mu.Unlock()
			return order, !stopped, true
		}
		stopped := b.stopped
		b.mu.Unlock()
		if stopped {
			return workOrder{}, false, false
		}
		<-b.wake
	}
}

// execute runs one unit of work, converting a panic into an error so a bad
// unit cannot take down the worker.
func (b *Bridge) execute(order workOrder) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Recovered from panic in background work", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("background work panicked: %v", r)
		}
	}()
	return order.work(b.ctx)
}

func (b *Bridge) deliver(order workOrder, result any, err error) {
	if order.complete == nil {
		if err != nil && !errors.Is(err, ErrBridgeClosed) {
			b.log.Warn("Fire-and-forget work failed", "error", err)
		}
		return
	}
	b.relay.Invoke(func() { order.complete(result, err) })
}
