// Package migration implements the incoming side of slot migration: a
// per-source-shard drain flow that replays a remote journal stream into
// the local data store, and a coordinator that manages one flow per
// source shard and exposes the join/pause/stop control surface a
// migration command handler drives.
package migration

import (
	"errors"
	"net"
	"sync/atomic"
)

// ShutdownDirection selects which half of a duplex connection to close,
// mirroring the socket contract's directional shutdown (stop reading
// without tearing down the write side, or vice versa).
type ShutdownDirection int

const (
	ShutdownRead ShutdownDirection = iota
	ShutdownWrite
	ShutdownBoth
)

// Socket is the narrow transport contract a migration flow depends on.
// It is deliberately smaller than net.Conn: a flow only ever reads frames
// and shuts the connection down, never writes directly (acknowledgements,
// if any, are the coordinator's concern).
type Socket interface {
	// Read satisfies io.Reader so a Socket can be wrapped directly by
	// journalreader.New.
	Read(p []byte) (int, error)
	// Shutdown closes the given direction(s) of the connection.
	Shutdown(dir ShutdownDirection) error
	// IsOpen reports whether the connection has not yet been shut down.
	IsOpen() bool
	// NativeHandle exposes the underlying transport for logging/metrics.
	NativeHandle() any
	// ThreadIdx is the proactor thread that owns this socket; a flow's
	// Cancel must hop onto this thread before touching the socket.
	ThreadIdx() int
}

// NetConnSocket adapts a net.Conn (as produced by a plain TCP listener) to
// the Socket contract, using *net.TCPConn's half-close methods when
// available so a read-side shutdown doesn't have to tear down writes.
type NetConnSocket struct {
	conn      net.Conn
	threadIdx int
	open      atomic.Bool
}

// NewNetConnSocket wraps conn, attributing it to threadIdx.
func NewNetConnSocket(conn net.Conn, threadIdx int) *NetConnSocket {
	s := &NetConnSocket{conn: conn, threadIdx: threadIdx}
	s.open.Store(true)
	return s
}

// Read implements Socket.
func (s *NetConnSocket) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

// Shutdown implements Socket.
func (s *NetConnSocket) Shutdown(dir ShutdownDirection) error {
	tcp, ok := s.conn.(*net.TCPConn)
	if !ok {
		s.open.Store(false)
		return s.conn.Close()
	}
	switch dir {
	case ShutdownRead:
		return tcp.CloseRead()
	case ShutdownWrite:
		return tcp.CloseWrite()
	default:
		s.open.Store(false)
		return tcp.Close()
	}
}

// IsOpen implements Socket.
func (s *NetConnSocket) IsOpen() bool {
	return s.open.Load()
}

// NativeHandle implements Socket.
func (s *NetConnSocket) NativeHandle() any {
	return s.conn
}

// ThreadIdx implements Socket.
func (s *NetConnSocket) ThreadIdx() int {
	return s.threadIdx
}

// ErrOutOfMemory is reported against a flow's execution context when the
// destination signals memory pressure severe enough to abort migration.
var ErrOutOfMemory = errors.New("migration: destination out of memory, aborting flow")
