// Package latch implements a countdown latch used to balance concurrent
// increment/decrement flows against a single quiescence point, the
// mechanism a migration flow's LSN-quiescence handshake relies on to
// observe "every in-flight contribution has settled" exactly once.
//
// Grounded on asyncloguploader.ShardCollection's readyShards atomic
// counter and threshold-wait pattern, generalized from a fixed single-shot
// threshold into a full increment/decrement counter with a blocking,
// context-bounded Wait.
package latch

import (
	"context"
	"sync"
)

// CountdownLatch is a counter that blocks waiters until it reaches zero.
// Unlike a classic one-shot countdown latch, Increment may raise the count
// again after it has been lowered, which is what lets several concurrent
// flows each hold open a "don't declare quiescence yet" vote at once.
type CountdownLatch struct {
	mu    sync.Mutex
	count int
	cond  *sync.Cond
}

// New returns a latch initialized to n.
func New(n int) *CountdownLatch {
	l := &CountdownLatch{count: n}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Increment raises the count by one.
func (l *CountdownLatch) Increment() {
	l.mu.Lock()
	l.count++
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Decrement lowers the count by one and wakes any waiters if it reaches
// zero (or below — callers are not required to pair every Decrement with
// a prior Increment against this same latch instance).
func (l *CountdownLatch) Decrement() {
	l.mu.Lock()
	l.count--
	reached := l.count <= 0
	l.mu.Unlock()
	if reached {
		l.cond.Broadcast()
	}
}

// Count returns the current count.
func (l *CountdownLatch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Wait blocks until the count reaches zero or ctx is done, returning true
// in the former case and false in the latter.
func (l *CountdownLatch) Wait(ctx context.Context) bool {
	stop := context.AfterFunc(ctx, l.cond.Broadcast)
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.count > 0 {
		if ctx.Err() != nil {
			return false
		}
		l.cond.Wait()
	}
	return true
}
