package migration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/execctx"
	"github.com/rohan-flutterint/dragonfly/journalreader"
	"github.com/rohan-flutterint/dragonfly/latch"
	"github.com/rohan-flutterint/dragonfly/proactor"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// FlowState is the lifecycle of a single source-shard drain flow.
type FlowState int32

const (
	FlowConnecting FlowState = iota
	FlowSyncing
	FlowFinished
	FlowFatal
)

func (s FlowState) String() string {
	switch s {
	case FlowConnecting:
		return "CONNECTING"
	case FlowSyncing:
		return "SYNCING"
	case FlowFinished:
		return "FINISHED"
	case FlowFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// pauseTick bounds how long the drain loop sleeps between pause checks.
const pauseTick = 10 * time.Millisecond

// Flow drains one source shard's journal stream into the local Executor.
// It participates in a migration-wide quiescence handshake through a
// shared CountdownLatch: the flow decrements the latch the moment it
// believes it has caught up (an OpLSN marker from the source), and
// re-increments it the moment more data proves that belief wrong, so the
// coordinator's Join never observes "all quiet" while a flow is still
// behind.
//
// A Flow exists from the moment its migration attempt is initialized —
// before any source has connected — so that cancelling an unconnected
// shard's flow still balances the shared latch. The socket is therefore
// bound later, by Start, rather than at construction.
type Flow struct {
	shardIdx    int
	executor    Executor
	quiescence  *latch.CountdownLatch
	pool        *proactor.Pool
	coordinator *Coordinator

	mu      sync.Mutex
	socket  Socket
	claimed bool

	ctx     *execctx.Context
	limiter *rate.Limiter

	state       atomic.Int32
	paused      atomic.Bool
	quiescent   atomic.Bool
	keyCount    atomic.Int64
	lastAttempt atomic.Int64
	done        chan struct{}
}

// NewFlow constructs a flow for shardIdx with no socket bound yet, sharing
// quiescence with every other flow of the same migration attempt. Call
// Start once a source has connected.
func NewFlow(shardIdx int, executor Executor, quiescence *latch.CountdownLatch, pool *proactor.Pool) *Flow {
	f := &Flow{
		shardIdx:   shardIdx,
		executor:   executor,
		quiescence: quiescence,
		pool:       pool,
		ctx:        execctx.New(),
		done:       make(chan struct{}),
	}
	f.state.Store(int32(FlowConnecting))
	f.lastAttempt.Store(-1)
	return f
}

// SetReplayLimit caps the flow's transaction replay rate at perSec; a
// non-positive value disables the cap. Must be called before Start.
func (f *Flow) SetReplayLimit(perSec int) {
	if perSec <= 0 {
		f.limiter = nil
		return
	}
	f.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
}

// Start binds socket to the flow and launches the drain loop on its own
// goroutine. It returns false, binding nothing, if the flow has already
// been claimed by a previous Start or cancelled before ever starting.
func (f *Flow) Start(socket Socket) bool {
	f.mu.Lock()
	if f.claimed {
		f.mu.Unlock()
		return false
	}
	f.claimed = true
	f.socket = socket
	f.mu.Unlock()

	f.state.Store(int32(FlowSyncing))
	go f.run()
	return true
}

func (f *Flow) boundSocket() Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.socket
}

// State returns the flow's current lifecycle state.
func (f *Flow) State() FlowState {
	return FlowState(f.state.Load())
}

// KeyCount returns the number of data transactions replayed so far.
func (f *Flow) KeyCount() int64 {
	return f.keyCount.Load()
}

// Pause toggles whether the drain loop keeps consuming from the socket.
// A paused flow does not read, so it cannot progress toward quiescence
// either — callers must resume before expecting Join to succeed.
func (f *Flow) Pause(paused bool) {
	f.paused.Store(paused)
}

// Done returns a channel closed once the drain loop has exited, whether
// by clean finish, fatal error, or cancellation.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

func (f *Flow) setState(s FlowState) {
	f.state.Store(int32(s))
}

func (f *Flow) markQuiescent() {
	if f.quiescent.CompareAndSwap(false, true) {
		f.quiescence.Decrement()
	}
}

func (f *Flow) unmarkQuiescent() {
	if f.quiescent.CompareAndSwap(true, false) {
		f.quiescence.Increment()
	}
}

// observeAttempt records the target LSN carried by the most recent OpLSN
// marker seen on this flow. Coordinator.Join compares this against the
// attempt it is waiting on before accepting quiescence as genuine.
func (f *Flow) observeAttempt(targetLSN uint64) {
	f.lastAttempt.Store(int64(targetLSN))
}

// LastAttempt returns the target LSN of the most recent OpLSN marker this
// flow has observed, or -1 if it has not observed one yet.
func (f *Flow) LastAttempt() int64 {
	return f.lastAttempt.Load()
}

// run is the drain loop. Exactly one of (clean OpFin, fatal error, context
// cancellation) ends it; defer f.markQuiescent() centralizes the latch
// balancing so every exit path of the loop decrements the shared latch at
// most once. A flow that is never started has no run loop; Cancel balances
// the latch for it instead.
func (f *Flow) run() {
	defer close(f.done)
	defer f.markQuiescent()

	r := journalreader.New(f.boundSocket())

	for f.ctx.IsRunning() {
		if f.paused.Load() {
			time.Sleep(pauseTick)
			continue
		}

		tx, ok := journalreader.NextTx(r, f.ctx)
		if !ok {
			if err := f.ctx.Err(); err != nil && !errors.Is(err, entry.ErrShortRead) {
				log.Warn().Int("shard", f.shardIdx).Err(err).Msg("migration: flow drain aborted")
				f.setState(FlowFatal)
			}
			return
		}

		switch tx.Opcode {
		case entry.OpLSN:
			f.observeAttempt(tx.Entries[0].TargetLSN)
			f.markQuiescent()
		case entry.OpFin:
			f.markQuiescent()
			f.setState(FlowFinished)
			return
		case entry.OpPing, entry.OpSelect, entry.OpNoop:
			// control traffic, no replay and no quiescence effect
		default:
			f.unmarkQuiescent()
			if f.executor.IsGlobalCommand(tx) {
				err := fmt.Errorf("migration: shard %d: global command rejected during migration", f.shardIdx)
				f.ctx.ReportError(err)
				f.reportToCoordinator(err)
				f.setState(FlowFatal)
				return
			}
			if f.limiter != nil {
				_ = f.limiter.WaitN(context.Background(), 1)
			}
			if err := f.executor.Execute(tx); err != nil {
				f.ctx.ReportError(err)
				if errors.Is(err, ErrOutOfMemory) {
					f.escalateOOM(err)
				} else {
					f.reportToCoordinator(err)
				}
				f.setState(FlowFatal)
				return
			}
			f.keyCount.Add(1)
		}
	}
	f.setState(FlowFatal)
}

// ReportOOM reports the destination's out-of-memory condition to the
// flow, terminating it fatally on its next loop iteration and forcing the
// owning coordinator into FlowFatal-absorbing C_FATAL.
func (f *Flow) ReportOOM() {
	f.ctx.ReportError(ErrOutOfMemory)
	f.escalateOOM(ErrOutOfMemory)
}

// reportToCoordinator surfaces a non-fatal error (an unsupported global
// command, a generic executor error) to the coordinator without forcing
// it into C_FATAL — only out-of-memory does that, via escalateOOM.
func (f *Flow) reportToCoordinator(err error) {
	if f.coordinator != nil {
		f.coordinator.reportError(err)
	}
}

// escalateOOM reports err on the coordinator and forces it into the
// absorbing C_FATAL state, which in turn cancels every sibling flow.
func (f *Flow) escalateOOM(err error) {
	if f.coordinator != nil {
		f.coordinator.forceFatal(err)
	}
}

// Cancel stops the flow. If a socket is bound, it is shut down on the
// proactor thread that owns it and the run loop's own deferred
// markQuiescent balances the latch when it exits. Otherwise — a flow for
// a source shard that never connected — Cancel marks it claimed, sets
// FlowFatal and decrements the latch itself, since no run loop exists to
// do it.
func (f *Flow) Cancel(ctx context.Context) {
	f.ctx.Cancel()

	f.mu.Lock()
	socket := f.socket
	alreadyClaimed := f.claimed
	f.claimed = true
	f.mu.Unlock()

	if socket != nil {
		_ = f.pool.Await(ctx, socket.ThreadIdx(), func() {
			_ = socket.Shutdown(ShutdownBoth)
		})
		f.setState(FlowFatal)
		return
	}

	if alreadyClaimed {
		return
	}
	f.markQuiescent()
	f.setState(FlowFatal)
}
