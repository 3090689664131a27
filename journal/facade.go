package journal

import (
	"context"
	"sync"

	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/proactor"
)

// Facade is the single process-wide handle onto every thread's journal
// slice. Producer and consumer code never touches a Slice directly except
// through a Facade method — this is what lets Close() reach every thread
// without any caller needing to know how many threads exist.
//
// Because Go has no supported per-goroutine thread-local storage, callers
// identify "the current thread" explicitly by passing the shard/thread
// index they are already executing on (the same index a proactor.Pool
// task closure receives). This is a direct, lock-free translation of the
// spec's "current thread's slice" lookup: any code running inside a task
// submitted to proactor thread N already knows N.
type Facade struct {
	mu     sync.Mutex
	pool   *proactor.Pool
	slices map[int]*Slice
	closed bool
}

// NewFacade creates a facade bound to pool. It holds no slices until
// StartInThread is called for each thread that owns one.
func NewFacade(pool *proactor.Pool) *Facade {
	return &Facade{pool: pool, slices: make(map[int]*Slice)}
}

// StartInThread allocates and initializes a slice for threadIdx, bounded
// by maxEntries and maxBytes, and registers it with the facade. Callers
// must invoke this from threadIdx's own proactor thread.
func (f *Facade) StartInThread(threadIdx, maxEntries, maxBytes int) *Slice {
	s := NewSlice(maxEntries, maxBytes)
	s.Init()
	f.mu.Lock()
	f.slices[threadIdx] = s
	f.mu.Unlock()
	return s
}

// Slice returns the slice owned by threadIdx, or nil if that thread has no
// slice (never started, or already closed).
func (f *Facade) Slice(threadIdx int) *Slice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slices[threadIdx]
}

// RecordEntry is a thin pass-through to threadIdx's slice: it assigns an
// LSN to e and commits or defers it per that slice's flush mode. It
// returns (0, false) if threadIdx has no slice, matching entry.NoLSN.
func (f *Facade) RecordEntry(threadIdx int, e entry.Entry) (uint64, bool) {
	s := f.Slice(threadIdx)
	if s == nil {
		return entry.NoLSN, false
	}
	return s.AddLogRecord(e), true
}

// Close resets every thread's ring and detaches its slice, dispatching the
// work through the proactor pool so each reset happens on its owning
// thread. It blocks until every thread has completed its reset or ctx is
// done. Close is idempotent; calling it again is a no-op.
func (f *Facade) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	return f.pool.RunOnEach(ctx, func(threadIdx int) {
		f.mu.Lock()
		s, ok := f.slices[threadIdx]
		if ok {
			delete(f.slices, threadIdx)
		}
		f.mu.Unlock()
		if ok {
			s.ResetRingBuffer()
		}
	})
}
