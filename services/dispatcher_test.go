package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDispatcher(t *testing.T) (*Dispatcher, context.CancelFunc) {
	t.Helper()
	d := NewDispatcher(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
	return d, cancel
}

func TestDispatcherRunsInOrder(t *testing.T) {
	d, _ := startDispatcher(t)

	var order []int
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Do(context.Background(), func() { order = append(order, i) }))
	}
	var got []int
	require.NoError(t, d.Do(context.Background(), func() { got = append(got, order...) }))
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d, _ := startDispatcher(t)

	require.NoError(t, d.Do(context.Background(), func() { panic("boom") }))

	ran := false
	require.NoError(t, d.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestDispatcherPost(t *testing.T) {
	d, _ := startDispatcher(t)

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		d.Post(func() { n.Add(1) })
	}
	assert.Eventually(t, func() bool { return n.Load() == 10 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherStopped(t *testing.T) {
	d, cancel := startDispatcher(t)
	cancel()

	assert.Eventually(t, func() bool {
		return d.Do(context.Background(), func() {}) == ErrDispatcherStopped
	}, time.Second, 5*time.Millisecond)

	// Post after stop must not block or panic.
	d.Post(func() {})
}

func TestDispatcherDoHonoursContext(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	blocker := make(chan struct{})
	defer close(blocker)
	// Fill the backlog without a running loop.
	for i := 0; i < dispatcherBacklog; i++ {
		d.work <- func() {}
	}
	err := d.Do(ctx, func() { <-blocker })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
