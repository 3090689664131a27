package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rohan-flutterint/dragonfly/latch"
	"github.com/rohan-flutterint/dragonfly/proactor"
	"github.com/rs/zerolog/log"
)

// CoordState is the lifecycle of one incoming migration as a whole,
// mirroring the source's C_CONNECTING/C_SYNC/C_FINISHED/C_FATAL states.
type CoordState int32

const (
	CoordConnecting CoordState = iota
	CoordSync
	CoordFinished
	CoordFatal
)

func (s CoordState) String() string {
	switch s {
	case CoordConnecting:
		return "CONNECTING"
	case CoordSync:
		return "SYNC"
	case CoordFinished:
		return "FINISHED"
	case CoordFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Coordinator owns the incoming side of one slot migration: one Flow per
// source shard, a shared quiescence latch across them, and the
// init/start-flow/pause/join/stop control surface a migration command
// handler drives.
type Coordinator struct {
	mu              sync.Mutex
	pool            *proactor.Pool
	executor        Executor
	finalizeTimeout time.Duration

	nShards    int
	quiescence *latch.CountdownLatch
	flows      map[int]*Flow
	paused     bool
	sessionID  string
	replayRate int

	state        CoordState
	lastErr      error
	cachedKeyCnt int64
}

// NewCoordinator returns a Coordinator that schedules flow work on pool,
// applies replayed transactions through executor, and bounds Join by
// finalizeTimeout.
func NewCoordinator(pool *proactor.Pool, executor Executor, finalizeTimeout time.Duration) *Coordinator {
	return &Coordinator{
		pool:            pool,
		executor:        executor,
		finalizeTimeout: finalizeTimeout,
		flows:           make(map[int]*Flow),
	}
}

// Init (re)initializes the coordinator for a migration of nShards source
// shards, discarding any previous flows without cancelling them — callers
// that need a clean handoff should Stop first. It pre-creates one Flow per
// shard index in FlowConnecting with no socket bound, so a shard whose
// source never connects can still be Cancelled and still contributes its
// vote to the shared latch.
func (c *Coordinator) Init(nShards int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nShards = nShards
	c.quiescence = latch.New(nShards)
	c.flows = make(map[int]*Flow)
	for shardIdx := 0; shardIdx < nShards; shardIdx++ {
		f := NewFlow(shardIdx, c.executor, c.quiescence, c.pool)
		f.coordinator = c
		c.flows[shardIdx] = f
	}
	c.paused = false
	c.sessionID = uuid.NewString()
	c.state = CoordSync
	c.lastErr = nil
	c.cachedKeyCnt = 0
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() CoordState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the first error reported for the current attempt (a
// rejected global command, a non-OOM executor failure, or the OOM error
// that forced C_FATAL), or nil if none has been reported. Later errors do
// not replace it.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// reportError records err as informational without forcing C_FATAL —
// used for errors the spec says must not escalate the migration (a
// rejected global command, a generic non-OOM executor failure).
func (c *Coordinator) reportError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
}

// forceFatal drives the coordinator into the absorbing C_FATAL state and
// cancels every active flow, mirroring the source's "OOM promotes to
// C_FATAL, which triggers stop() of all flows".
func (c *Coordinator) forceFatal(err error) {
	c.mu.Lock()
	if c.state == CoordFatal {
		c.mu.Unlock()
		return
	}
	c.state = CoordFatal
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.mu.Unlock()
	go c.Stop()
}

// SessionID identifies the current migration attempt in logs and metrics;
// it changes every time Init is called.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetReplayRate caps each flow started from this point on at perSec
// transactions per second; 0 disables the cap.
func (c *Coordinator) SetReplayRate(perSec int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replayRate = perSec
}

// StartFlow binds socket to the shard's pre-existing flow (created by
// Init) and starts its drain loop. It panics if shardIdx is out of range
// for the current Init — callers are expected to only start shards they
// declared up front.
func (c *Coordinator) StartFlow(shardIdx int, socket Socket) *Flow {
	c.mu.Lock()
	f, ok := c.flows[shardIdx]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("migration: StartFlow: shard %d not declared to Init", shardIdx))
	}
	f.SetReplayLimit(c.replayRate)
	paused := c.paused
	c.mu.Unlock()

	f.Pause(paused)
	f.Start(socket)
	return f
}

// Pause toggles every active flow's pause state.
func (c *Coordinator) Pause(paused bool) {
	c.mu.Lock()
	c.paused = paused
	flows := c.flowSnapshotLocked()
	c.mu.Unlock()
	for _, f := range flows {
		f.Pause(paused)
	}
}

func (c *Coordinator) flowSnapshotLocked() []*Flow {
	flows := make([]*Flow, 0, len(c.flows))
	for _, f := range c.flows {
		flows = append(flows, f)
	}
	return flows
}

// joinPollInterval bounds how long Join waits on the latch per iteration
// before re-checking whether the observed quiescence actually matches the
// attempt it was asked to join — a flow can decrement the latch for a
// stale attempt while a fresher one is already in flight behind it.
const joinPollInterval = 100 * time.Millisecond

// Join waits, bounded by the coordinator's finalize timeout, for every
// flow to report quiescence at the given attempt — the target LSN carried
// on the OpLSN marker each source sends just before it expects to finish.
// The latch reaching zero is necessary but not sufficient: a flow may have
// quiesced at an earlier attempt than the one the caller is joining, in
// which case Join keeps waiting rather than returning a stale success (see
// the spec's "Attempt freshness" requirement). It returns false if the
// overall timeout elapses, the coordinator is no longer C_SYNC, or any
// flow ends in FlowFatal (including C_FATAL forced by an OOM escalation).
// On success the coordinator transitions to C_FINISHED and caches the key
// count.
func (c *Coordinator) Join(attempt uint64) bool {
	c.mu.Lock()
	if c.state != CoordSync {
		c.mu.Unlock()
		return false
	}
	quiescence := c.quiescence
	flows := c.flowSnapshotLocked()
	c.mu.Unlock()

	deadline := time.Now().Add(c.finalizeTimeout)
	for {
		if c.State() != CoordSync {
			return false
		}

		window := joinPollInterval
		if remaining := time.Until(deadline); remaining < window {
			window = remaining
		}
		if window <= 0 {
			return false
		}

		ctx, cancel := context.WithTimeout(context.Background(), window)
		ok := quiescence.Wait(ctx)
		cancel()
		if !ok {
			if time.Now().After(deadline) {
				return false
			}
			continue
		}

		matched := true
		var total int64
		for _, f := range flows {
			if f.State() == FlowFatal {
				return false
			}
			if f.LastAttempt() != int64(attempt) {
				matched = false
			}
			total += f.KeyCount()
		}
		if !matched {
			if time.Now().After(deadline) {
				return false
			}
			continue
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state != CoordSync {
			return false
		}
		c.state = CoordFinished
		c.cachedKeyCnt = total
		return true
	}
}

// Stop cancels every active flow and drops them, so a subsequent Init is
// required before the coordinator accepts new flows again. Unless the
// coordinator is C_FATAL, it then waits on the shared latch, bounded by the
// finalize timeout, and logs if the latch does not reach zero in time. If
// the coordinator is already C_FATAL it still cancels flows but does not
// wait beyond what Flow.Cancel itself blocks on, matching the
// absorbing-state contract that stop() must never block indefinitely once
// fatal.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	flows := c.flowSnapshotLocked()
	c.flows = make(map[int]*Flow)
	fatal := c.state == CoordFatal
	if !fatal {
		c.state = CoordConnecting
	}
	quiescence := c.quiescence
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.finalizeTimeout)
	defer cancel()
	for _, f := range flows {
		f.Cancel(ctx)
	}
	if !fatal && quiescence != nil && !quiescence.Wait(ctx) {
		log.Warn().Int("pending", quiescence.Count()).Msg("migration: stop timed out waiting for flows")
	}
}

// GetKeyCount returns the cached key count once C_FINISHED (set by a
// successful Join); otherwise it recomputes the sum across active flows,
// matching the spec's "if FINISHED return cached, else recompute".
func (c *Coordinator) GetKeyCount() int64 {
	c.mu.Lock()
	if c.state == CoordFinished {
		cached := c.cachedKeyCnt
		c.mu.Unlock()
		return cached
	}
	flows := c.flowSnapshotLocked()
	c.mu.Unlock()

	var total int64
	for _, f := range flows {
		total += f.KeyCount()
	}
	return total
}
