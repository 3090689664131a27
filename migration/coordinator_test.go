package migration

import (
	"context"
	"testing"
	"time"

	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/proactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_JoinSucceedsAfterAllFlowsFin(t *testing.T) {
	pool := proactor.NewPool(2)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, 2*time.Second)
	c.Init(2)

	for shard := 0; shard < 2; shard++ {
		data := encodeEntries(
			entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("SET"), []byte("a"), []byte("1")}},
			entry.Entry{Opcode: entry.OpLSN, TargetLSN: 9},
			entry.Entry{Opcode: entry.OpFin},
		)
		sock := newBufSocket(data, shard)
		c.StartFlow(shard, sock)
	}

	assert.True(t, c.Join(9))
	assert.Equal(t, int64(2), c.GetKeyCount())
}

func TestCoordinator_JoinRejectsStaleAttemptThenAcceptsFreshOne(t *testing.T) {
	// Mirrors the spec's E2E scenario: a source streams LSN 5, more data,
	// then LSN 6 before closing. join(5) must never succeed once the flow
	// has moved on to attempt 6; join(6) must.
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, 2*time.Second)
	c.Init(1)

	data := encodeEntries(
		entry.Entry{Opcode: entry.OpLSN, TargetLSN: 5},
		entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("SET"), []byte("c"), []byte("3")}},
		entry.Entry{Opcode: entry.OpLSN, TargetLSN: 6},
		entry.Entry{Opcode: entry.OpFin},
	)
	sock := newBufSocket(data, 0)
	f := c.StartFlow(0, sock)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flow did not finish")
	}
	assert.Equal(t, int64(6), f.LastAttempt())

	assert.False(t, c.Join(5))
	assert.True(t, c.Join(6))
	assert.Equal(t, int64(1), c.GetKeyCount())
}

func TestCoordinator_JoinFailsOnFlowFatal(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	c := NewCoordinator(pool, failingExecutor{}, time.Second)
	c.Init(1)

	data := encodeEntries(entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("x")}})
	sock := newBufSocket(data, 0)
	c.StartFlow(0, sock)

	assert.False(t, c.Join(0))
}

func TestCoordinator_JoinTimesOutWhenFlowNeverQuiesces(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, 150*time.Millisecond)
	c.Init(2) // shard 1 never connects: its vote is never contributed

	sock := newBufSocket(encodeEntries(
		entry.Entry{Opcode: entry.OpLSN, TargetLSN: 1},
		entry.Entry{Opcode: entry.OpFin},
	), 0)
	c.StartFlow(0, sock)

	assert.False(t, c.Join(1))
}

func TestCoordinator_CancelBeforeStartLetsStopReturnPromptly(t *testing.T) {
	// Spec E2E scenario: Init 2 flows, cancel flow 0 before it ever
	// connects, then Stop. Stop must return within a bounded number of
	// iterations and the latch must reach zero.
	pool := proactor.NewPool(2)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, time.Second)
	c.Init(2)

	c.mu.Lock()
	f0 := c.flows[0]
	c.mu.Unlock()
	require.NotNil(t, f0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f0.Cancel(ctx)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly after cancelling an unstarted flow")
	}

	c.mu.Lock()
	q := c.quiescence
	c.mu.Unlock()
	assert.Equal(t, 0, q.Count())
}

func TestCoordinator_StopCancelsFlows(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, time.Second)
	c.Init(1)

	sock := newBufSocket(encodeEntries(
		entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1},
	), 0)
	f := c.StartFlow(0, sock)

	c.Stop()
	assert.False(t, sock.IsOpen())
	assert.False(t, c.Join(0))
	_ = f
}

func TestCoordinator_SessionIDChangesPerInit(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	c := NewCoordinator(pool, NewMapExecutor(), time.Second)
	c.Init(1)
	first := c.SessionID()
	c.Init(1)
	second := c.SessionID()
	assert.NotEqual(t, first, second)
	assert.NotEmpty(t, first)
}

func TestCoordinator_OOMForcesFatalAndCancelsFlows(t *testing.T) {
	pool := proactor.NewPool(2)
	defer pool.StopAll()
	c := NewCoordinator(pool, oomExecutor{}, time.Second)
	c.Init(2)

	sock0 := newBufSocket(encodeEntries(entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("x")}}), 0)
	sock1 := newBufSocket(encodeEntries(entry.Entry{Opcode: entry.OpLSN, TargetLSN: 1}), 1)
	f0 := c.StartFlow(0, sock0)
	f1 := c.StartFlow(1, sock1)

	select {
	case <-f0.Done():
	case <-time.After(time.Second):
		t.Fatal("flow 0 did not stop on OOM")
	}

	require.Eventually(t, func() bool {
		return c.State() == CoordFatal
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.LastError(), ErrOutOfMemory)

	require.Eventually(t, func() bool {
		return !sock1.IsOpen()
	}, time.Second, 5*time.Millisecond, "sibling flow's socket should be shut down once coordinator goes fatal")
}

func TestCoordinator_GlobalCommandRejectedWithoutForcingFatal(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	c := NewCoordinator(pool, globalRejectingExecutor{}, time.Second)
	c.Init(1)

	sock := newBufSocket(encodeEntries(entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("FLUSHALL")}}), 0)
	f := c.StartFlow(0, sock)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flow did not stop on rejected global command")
	}

	assert.Equal(t, FlowFatal, f.State())
	assert.NotEqual(t, CoordFatal, c.State())
	assert.Error(t, c.LastError())
}

func TestCoordinator_SetReplayRateAppliesToNewFlows(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, time.Second)
	c.Init(1)
	c.SetReplayRate(1000)

	data := encodeEntries(
		entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("SET"), []byte("a"), []byte("1")}},
		entry.Entry{Opcode: entry.OpFin},
	)
	sock := newBufSocket(data, 0)
	f := c.StartFlow(0, sock)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flow did not finish with replay rate set")
	}
	assert.Equal(t, FlowFinished, f.State())
}

func TestCoordinator_PauseStopsFlowProgress(t *testing.T) {
	pool := proactor.NewPool(1)
	defer pool.StopAll()
	exec := NewMapExecutor()
	c := NewCoordinator(pool, exec, time.Second)
	c.Init(1)

	data := encodeEntries(
		entry.Entry{Opcode: entry.OpCommand, ShardCnt: 1, Payload: [][]byte{[]byte("SET"), []byte("a"), []byte("1")}},
		entry.Entry{Opcode: entry.OpFin},
	)
	sock := newBufSocket(data, 0)
	c.Pause(true)
	f := c.StartFlow(0, sock)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, FlowSyncing, f.State())

	c.Pause(false)
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("flow did not resume and finish")
	}
	require.Equal(t, FlowFinished, f.State())
}
