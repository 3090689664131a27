// Package journal implements the per-thread journal slice and the
// process-wide facade over it: every write observed by a shard is
// assigned an LSN, framed, appended to a bounded ring, and fanned out to
// registered consumers in registration order.
//
// Grounded on asynclogger.Logger/asynclogger.Shard's buffer-plus-flush-gate
// design, with the ring storage itself factored out into the ringbuffer
// package.
package journal

import (
	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rohan-flutterint/dragonfly/ringbuffer"
)

// Consumer receives entries as they are committed to a slice. Implementations
// must not block the calling thread for long — fanout is synchronous.
type Consumer interface {
	OnEntry(e entry.Entry, raw []byte)
}

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc func(e entry.Entry, raw []byte)

// OnEntry calls f.
func (f ConsumerFunc) OnEntry(e entry.Entry, raw []byte) { f(e, raw) }

type consumerSlot struct {
	id uint64
	c  Consumer
}

type pendingEntry struct {
	e   entry.Entry
	raw []byte
}

// Slice is a single thread's journal: one ring buffer, one LSN counter,
// and the set of consumers subscribed to this thread's stream. A Slice is
// thread-confined — it is never touched concurrently, so it takes no lock
// of its own; callers are responsible for only ever invoking it from the
// shard thread that owns it (see Facade).
type Slice struct {
	maxEntries int
	maxBytes   int

	ring *ringbuffer.RingBuffer
	curLSN uint64

	flushEnabled bool
	backlog      []pendingEntry

	consumers      []consumerSlot
	consumerIdx    map[uint64]int
	nextConsumerID uint64

	initialized bool
}

// NewSlice constructs an uninitialized slice bounded by maxEntries and
// maxBytes (0 disables a bound). Call Init before use.
func NewSlice(maxEntries, maxBytes int) *Slice {
	return &Slice{maxEntries: maxEntries, maxBytes: maxBytes}
}

// Init allocates the ring and sets the LSN counter to its first valid
// value. Init is idempotent: calling it again on an already-initialized
// slice has no effect, in particular it never rewinds cur_lsn.
func (s *Slice) Init() {
	if s.initialized {
		return
	}
	s.ring = ringbuffer.New(s.maxEntries, s.maxBytes)
	s.curLSN = 1
	s.flushEnabled = true
	s.consumerIdx = make(map[uint64]int)
	s.initialized = true
}

// AddLogRecord assigns the next LSN to e, frames it, and — if flush mode
// is enabled — appends it to the ring and fans it out to every registered
// consumer in registration order. While flush mode is disabled the entry
// is instead held on an order-preserving backlog, released in full the
// next time flush mode is re-enabled. It returns the LSN assigned to e.
func (s *Slice) AddLogRecord(e entry.Entry) uint64 {
	e.LSN = s.curLSN
	s.curLSN++
	raw := entry.Encode(e)

	if !s.flushEnabled {
		s.backlog = append(s.backlog, pendingEntry{e: e, raw: raw})
		return e.LSN
	}

	s.ring.Append(raw, e.LSN)
	s.fanout(e, raw)
	return e.LSN
}

// RegisterOnChange subscribes c to every entry committed from this point
// on (no backfill of entries already in the ring) and returns an id usable
// with UnregisterOnChange.
func (s *Slice) RegisterOnChange(c Consumer) uint64 {
	s.nextConsumerID++
	id := s.nextConsumerID
	s.consumers = append(s.consumers, consumerSlot{id: id, c: c})
	s.consumerIdx[id] = len(s.consumers) - 1
	return id
}

// UnregisterOnChange removes a previously registered consumer. It is safe
// to call from within that consumer's own OnEntry callback during an
// in-flight fanout.
func (s *Slice) UnregisterOnChange(id uint64) {
	idx, ok := s.consumerIdx[id]
	if !ok {
		return
	}
	s.consumers = append(s.consumers[:idx], s.consumers[idx+1:]...)
	delete(s.consumerIdx, id)
	for i := idx; i < len(s.consumers); i++ {
		s.consumerIdx[s.consumers[i].id] = i
	}
}

// fanout delivers one entry to every currently registered consumer, in the
// order they were registered at the start of this call. It iterates a
// snapshot of the registration list so a consumer unregistering itself (or
// another consumer) mid-callback never corrupts or skips the live slice.
func (s *Slice) fanout(e entry.Entry, raw []byte) {
	if len(s.consumers) == 0 {
		return
	}
	snapshot := make([]consumerSlot, len(s.consumers))
	copy(snapshot, s.consumers)
	for _, slot := range snapshot {
		if _, stillRegistered := s.consumerIdx[slot.id]; !stillRegistered {
			continue
		}
		slot.c.OnEntry(e, raw)
	}
}

// SetFlushMode toggles whether newly added entries are committed
// immediately or deferred to the backlog. Re-enabling flush mode releases
// the entire backlog, oldest first, before returning.
func (s *Slice) SetFlushMode(enabled bool) {
	if enabled && !s.flushEnabled {
		s.flushEnabled = true
		backlog := s.backlog
		s.backlog = nil
		for _, p := range backlog {
			s.ring.Append(p.raw, p.e.LSN)
			s.fanout(p.e, p.raw)
		}
		return
	}
	s.flushEnabled = enabled
}

// FlushEnabled reports the current flush-mode state.
func (s *Slice) FlushEnabled() bool {
	return s.flushEnabled
}

// IsLsnInBuffer reports whether lsn currently falls within the ring's
// retained interval.
func (s *Slice) IsLsnInBuffer(lsn uint64) bool {
	return s.ring.Contains(lsn)
}

// GetEntry returns the decoded entry stored at lsn, or (Entry{}, false) if
// lsn has been evicted or was never appended.
func (s *Slice) GetEntry(lsn uint64) (entry.Entry, bool) {
	raw, ok := s.ring.Get(lsn)
	if !ok {
		return entry.Entry{}, false
	}
	e, err := entry.Decode(raw)
	if err != nil {
		return entry.Entry{}, false
	}
	return e, true
}

// CurrentLSN returns the LSN that will be assigned to the next appended
// entry.
func (s *Slice) CurrentLSN() uint64 {
	return s.curLSN
}

// ResetRingBuffer drops the ring's contents. It does not reset cur_lsn and
// does not touch the consumer registry — a consumer still registered
// after a reset simply observes a gap in the retained interval, not a
// restart of LSN numbering.
func (s *Slice) ResetRingBuffer() {
	if s.ring != nil {
		s.ring.Reset()
	}
}
