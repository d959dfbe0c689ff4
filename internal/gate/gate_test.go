package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	t.Run("BoundsConcurrency", func(t *testing.T) {
		g := New(2)

		require.NoError(t, g.Acquire(context.Background()))
		require.NoError(t, g.Acquire(context.Background()))
		assert.False(t, g.TryAcquire(), "third holder admitted past capacity 2")

		g.Release()
		assert.True(t, g.TryAcquire(), "slot not reusable after release")

		g.Release()
		g.Release()
	})

	t.Run("AcquireWakesOnRelease", func(t *testing.T) {
		g := New(1)
		require.NoError(t, g.Acquire(context.Background()))

		acquired := make(chan error, 1)
		go func() {
			acquired <- g.Acquire(context.Background())
		}()

		select {
		case <-acquired:
			t.Fatal("acquire succeeded while gate was full")
		case <-time.After(20 * time.Millisecond):
		}

		g.Release()

		select {
		case err := <-acquired:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("blocked acquire never woke after release")
		}
		g.Release()
	})

	t.Run("CancelledAcquireHoldsNothing", func(t *testing.T) {
		g := New(1)
		require.NoError(t, g.Acquire(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- g.Acquire(ctx)
		}()
		cancel()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("cancelled acquire never returned")
		}

		// The cancelled waiter must not have consumed the slot freed here.
		g.Release()
		assert.True(t, g.TryAcquire(), "slot lost to a cancelled waiter")
	})

	t.Run("ClampsNonPositiveCapacity", func(t *testing.T) {
		g := New(0)
		assert.Equal(t, int64(1), g.Capacity())

		require.NoError(t, g.Acquire(context.Background()))
		assert.False(t, g.TryAcquire())
		g.Release()
	})
}
