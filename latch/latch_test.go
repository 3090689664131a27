package latch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountdownLatch_WaitReturnsImmediatelyAtZero(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, l.Wait(ctx))
}

func TestCountdownLatch_WaitBlocksUntilDecremented(t *testing.T) {
	l := New(2)
	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ok = l.Wait(ctx)
	}()

	l.Decrement()
	assert.Equal(t, 1, l.Count())
	l.Decrement()
	wg.Wait()
	assert.True(t, ok)
}

func TestCountdownLatch_IncrementReopensQuiescence(t *testing.T) {
	l := New(1)
	l.Increment()
	assert.Equal(t, 2, l.Count())
	l.Decrement()
	l.Decrement()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, l.Wait(ctx))
}

func TestCountdownLatch_WaitTimesOut(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, l.Wait(ctx))
}

func TestCountdownLatch_ConcurrentIncrementDecrement(t *testing.T) {
	l := New(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Increment()
			l.Decrement()
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.True(t, l.Wait(ctx))
}
