package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_AcquireRelease(t *testing.T) {
	g := NewGuard()

	require.NoError(t, g.Acquire())
	assert.ErrorIs(t, g.Acquire(), ErrBusy)

	g.Release()
	assert.NoError(t, g.Acquire())
}

func TestGuard_ReleaseWhenIdleIsHarmless(t *testing.T) {
	g := NewGuard()
	g.Release()
	assert.NoError(t, g.Acquire())
}

func TestGuard_BusyTracksHeldState(t *testing.T) {
	g := NewGuard()

	assert.False(t, g.Busy())
	require.NoError(t, g.Acquire())
	assert.True(t, g.Busy())
	g.Release()
	assert.False(t, g.Busy())
}

func TestGuard_ExecuteSerializes(t *testing.T) {
	g := NewGuard()

	inner := g.Execute(func() error {
		return g.Execute(func() error { return nil })
	})
	assert.ErrorIs(t, inner, ErrBusy)
}

func TestGuard_ConcurrentAcquireSingleWinner(t *testing.T) {
	g := NewGuard()

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire() == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
