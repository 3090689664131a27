package proactor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThread_SubmitRunsInOrder(t *testing.T) {
	p := NewPool(1)
	defer p.StopAll()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		p.Thread(0).Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestThread_ScheduleAfterRespectsDelay(t *testing.T) {
	p := NewPool(1)
	defer p.StopAll()

	start := time.Now()
	done := make(chan time.Duration, 1)
	p.Thread(0).ScheduleAfter(30*time.Millisecond, func() {
		done <- time.Since(start)
	})
	elapsed := <-done
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestThread_CancelPreventsExecution(t *testing.T) {
	p := NewPool(1)
	defer p.StopAll()

	var ran atomic.Bool
	id, ok := p.Thread(0).ScheduleAfter(30*time.Millisecond, func() {
		ran.Store(true)
	})
	assert.True(t, ok)
	assert.True(t, p.Thread(0).Cancel(id))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestPool_RunOnEachTouchesEveryThread(t *testing.T) {
	p := NewPool(4)
	defer p.StopAll()

	var touched [4]atomic.Bool
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.RunOnEach(ctx, func(idx int) {
		touched[idx].Store(true)
	})
	assert.NoError(t, err)
	for i := range touched {
		assert.True(t, touched[i].Load(), "thread %d not touched", i)
	}
}

func TestPool_AwaitRunsOnTargetThread(t *testing.T) {
	p := NewPool(3)
	defer p.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var gotIdx int
	err := p.Await(ctx, 2, func() {
		gotIdx = p.Thread(2).Index()
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, gotIdx)
}

func TestPool_AwaitOutOfRange(t *testing.T) {
	p := NewPool(2)
	defer p.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := p.Await(ctx, 5, func() {})
	assert.Error(t, err)
}

func TestThread_SubmitAfterStopFails(t *testing.T) {
	p := NewPool(1)
	p.Thread(0).Stop()
	ok := p.Thread(0).Submit(func() {})
	assert.False(t, ok)
}
