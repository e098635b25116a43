package subscription

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SubscribeTracksKey(t *testing.T) {
	r := NewRegistry()

	attached := 0
	ok := r.Subscribe(ClientKey("c1"), func() func() {
		attached++
		return func() {}
	})

	require.True(t, ok)
	assert.Equal(t, 1, attached)
	assert.True(t, r.Has(ClientKey("c1")))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DuplicateSubscribeIsRefused(t *testing.T) {
	r := NewRegistry()

	attached := 0
	attach := func() func() {
		attached++
		return func() {}
	}

	require.True(t, r.Subscribe(GroupKey("g1"), attach))
	assert.False(t, r.Subscribe(GroupKey("g1"), attach), "second subscription for the same entity must be refused")
	assert.Equal(t, 1, attached, "attach must not run for a refused subscription")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SameIDDifferentKindAreDistinct(t *testing.T) {
	r := NewRegistry()

	attach := func() func() { return func() {} }
	require.True(t, r.Subscribe(ClientKey("x"), attach))
	require.True(t, r.Subscribe(GroupKey("x"), attach))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_UnsubscribeInvokesTokenOnce(t *testing.T) {
	r := NewRegistry()

	var unsubscribed atomic.Int32
	require.True(t, r.Subscribe(ClientKey("c1"), func() func() {
		return func() { unsubscribed.Add(1) }
	}))

	r.Unsubscribe(ClientKey("c1"))
	r.Unsubscribe(ClientKey("c1"))

	assert.Equal(t, int32(1), unsubscribed.Load())
	assert.False(t, r.Has(ClientKey("c1")))
}

func TestRegistry_TokenIsIdempotent(t *testing.T) {
	var count atomic.Int32
	token := newToken(func() { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token.Unsubscribe()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), count.Load(), "token must unsubscribe at most once")
}

func TestRegistry_TokenWithNilCancelIsSafe(t *testing.T) {
	token := newToken(nil)
	assert.NotPanics(t, func() { token.Unsubscribe() })
}

func TestRegistry_UnsubscribeAllSweepsEverything(t *testing.T) {
	r := NewRegistry()

	var unsubscribed atomic.Int32
	for _, key := range []Key{ServerKey("s"), ClientKey("c1"), ClientKey("c2"), GroupKey("g1")} {
		key := key
		require.True(t, r.Subscribe(key, func() func() {
			return func() { unsubscribed.Add(1) }
		}))
	}

	r.UnsubscribeAll()

	assert.Equal(t, int32(4), unsubscribed.Load())
	assert.Equal(t, 0, r.Len())

	// A second sweep has nothing left to do.
	r.UnsubscribeAll()
	assert.Equal(t, int32(4), unsubscribed.Load())
}

func TestRegistry_SubscribeAfterSweepAttachesAgain(t *testing.T) {
	r := NewRegistry()

	attached := 0
	attach := func() func() {
		attached++
		return func() {}
	}

	require.True(t, r.Subscribe(ClientKey("c1"), attach))
	r.UnsubscribeAll()
	require.True(t, r.Subscribe(ClientKey("c1"), attach), "entity may be resubscribed after a sweep")
	assert.Equal(t, 2, attached)
}

func TestRegistry_UnsubscribeAfterEntityDestroyedIsHarmless(t *testing.T) {
	r := NewRegistry()

	// The domain side hands out unsubscribe functions that tolerate running
	// after the entity is gone; the registry must tolerate repeated sweeps
	// and stale per-key unsubscribes on top of that.
	destroyed := false
	require.True(t, r.Subscribe(GroupKey("g1"), func() func() {
		return func() {
			if destroyed {
				return
			}
			destroyed = true
		}
	}))

	r.Unsubscribe(GroupKey("g1"))
	assert.NotPanics(t, func() {
		r.Unsubscribe(GroupKey("g1"))
		r.UnsubscribeAll()
	})
	assert.True(t, destroyed)
}

func TestRegistry_ConcurrentSubscribeSingleWinner(t *testing.T) {
	r := NewRegistry()

	var attachCount atomic.Int32
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Subscribe(ClientKey("c1"), func() func() {
				attachCount.Add(1)
				return func() {}
			}) {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load(), "exactly one concurrent subscriber may win")
	assert.Equal(t, int32(1), attachCount.Load())
	assert.Equal(t, 1, r.Len())
}
