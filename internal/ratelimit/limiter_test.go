package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_ExhaustsWindow(t *testing.T) {
	l := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, l.TryAcquire(), "call %d should be admitted", i+1)
	}
	assert.False(t, l.TryAcquire(), "window is full")
	assert.Equal(t, 0, l.Available())
}

func TestAvailable_TracksFreeSlots(t *testing.T) {
	l := New(3, time.Minute)

	assert.Equal(t, 3, l.Available())
	require.True(t, l.TryAcquire())
	assert.Equal(t, 2, l.Available())
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	assert.Equal(t, 0, l.Available())
}

func TestTryAcquire_WindowSlides(t *testing.T) {
	l := New(2, 100*time.Millisecond)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())

	// After the window elapses, full capacity is available again.
	now = base.Add(101 * time.Millisecond)
	assert.Equal(t, 2, l.Available())
	assert.True(t, l.TryAcquire())
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
}

func TestAcquire_BlocksUntilSlotFrees(t *testing.T) {
	l := New(1, 50*time.Millisecond)
	require.True(t, l.TryAcquire())

	start := time.Now()
	ok := l.Acquire(context.Background(), time.Second)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquire_TimeoutExpires(t *testing.T) {
	l := New(1, time.Minute)
	require.True(t, l.TryAcquire())

	ok := l.Acquire(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l := New(1, time.Minute)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.False(t, l.Acquire(ctx, 0))
}
