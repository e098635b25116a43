package relay

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_DeliversInInvocationOrder(t *testing.T) {
	r := New()
	defer r.Close()

	const n = 100
	got := make([]int, 0, n)
	for i := 0; i < n; i++ {
		i := i
		r.Invoke(func() { got = append(got, i) })
	}

	for len(got) < n {
		fn, ok := <-r.C()
		require.True(t, ok, "relay closed before all callbacks were delivered")
		fn()
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i], "callback delivered out of order")
	}
}

func TestRelay_InvokeNeverBlocksWithoutConsumer(t *testing.T) {
	r := New()
	defer r.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Invoke(func() {})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Invoke blocked with no consumer draining the relay")
	}
}

func TestRelay_CloseDropsUndeliveredSilently(t *testing.T) {
	r := New()

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		r.Invoke(func() { ran.Add(1) })
	}
	r.Close()

	// The channel must close without requiring the remaining callbacks to run.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case fn, ok := <-r.C():
			if !ok {
				assert.LessOrEqual(t, ran.Load(), int32(50))
				return
			}
			fn()
		case <-timeout:
			t.Fatal("relay channel did not close after Close")
		}
	}
}

func TestRelay_InvokeAfterCloseIsNoOp(t *testing.T) {
	r := New()
	r.Close()

	var ran atomic.Int32
	r.Invoke(func() { ran.Add(1) })

	_, ok := <-r.C()
	require.False(t, ok)
	assert.Equal(t, int32(0), ran.Load(), "callback ran after relay was closed")
}

func TestRelay_DoubleCloseIsSafe(t *testing.T) {
	r := New()
	r.Close()
	assert.NotPanics(t, func() { r.Close() })
}

func TestRelay_ConcurrentInvokersPreservePerSourceOrder(t *testing.T) {
	r := New()
	defer r.Close()

	const (
		sources       = 8
		perSource     = 50
		totalExpected = sources * perSource
	)

	type item struct {
		source int
		seq    int
	}
	var (
		mu  sync.Mutex
		got []item
	)

	var wg sync.WaitGroup
	for s := 0; s < sources; s++ {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSource; i++ {
				i := i
				r.Invoke(func() {
					mu.Lock()
					got = append(got, item{source: s, seq: i})
					mu.Unlock()
				})
			}
		}()
	}

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		seen := 0
		for fn := range r.C() {
			fn()
			seen++
			if seen == totalExpected {
				return
			}
		}
	}()

	wg.Wait()
	select {
	case <-consumed:
	case <-time.After(5 * time.Second):
		t.Fatal("not all callbacks were delivered")
	}

	lastSeq := make(map[int]int)
	for s := 0; s < sources; s++ {
		lastSeq[s] = -1
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, totalExpected)
	for _, it := range got {
		assert.Greater(t, it.seq, lastSeq[it.source], "per-source ordering violated for source %d", it.source)
		lastSeq[it.source] = it.seq
	}
}
