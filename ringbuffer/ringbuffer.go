// Package ringbuffer implements the bounded, LSN-indexed store of recent
// journal entries owned by a single journal slice. It is thread-confined:
// accessed only from the owning shard's thread, and takes no lock of its
// own.
package ringbuffer

// record is one stored frame, keyed by the LSN it was appended under.
type record struct {
	lsn  uint64
	data []byte
}

// RingBuffer stores the most recently appended entries, evicting the
// oldest entry whenever either bound is exceeded. A zero bound disables
// that particular limit.
type RingBuffer struct {
	maxEntries int
	maxBytes   int
	buf        []record
	bytes      int
}

// New creates a ring buffer bounded by maxEntries and maxBytes. A value of
// 0 for either disables that bound (the other still applies).
func New(maxEntries, maxBytes int) *RingBuffer {
	return &RingBuffer{maxEntries: maxEntries, maxBytes: maxBytes}
}

// Append inserts entryBytes under lsn, then evicts the oldest entries
// while either bound is exceeded. Callers must append in strictly
// increasing LSN order; the ring relies on this to maintain contiguity
// without tracking gaps explicitly.
func (r *RingBuffer) Append(entryBytes []byte, lsn uint64) {
	r.buf = append(r.buf, record{lsn: lsn, data: entryBytes})
	r.bytes += len(entryBytes)
	r.evict()
}

func (r *RingBuffer) evict() {
	for len(r.buf) > 0 && r.overBudget() {
		oldest := r.buf[0]
		r.buf = r.buf[1:]
		r.bytes -= len(oldest.data)
	}
}

func (r *RingBuffer) overBudget() bool {
	if r.maxEntries > 0 && len(r.buf) > r.maxEntries {
		return true
	}
	if r.maxBytes > 0 && r.bytes > r.maxBytes {
		return true
	}
	return false
}

// Contains reports whether lsn currently falls within the ring's
// contiguous [low, high] interval.
func (r *RingBuffer) Contains(lsn uint64) bool {
	if len(r.buf) == 0 {
		return false
	}
	return lsn >= r.buf[0].lsn && lsn <= r.buf[len(r.buf)-1].lsn
}

// Get returns the stored bytes for lsn, or (nil, false) if lsn has been
// evicted or was never appended.
func (r *RingBuffer) Get(lsn uint64) ([]byte, bool) {
	if !r.Contains(lsn) {
		return nil, false
	}
	idx := lsn - r.buf[0].lsn
	return r.buf[idx].data, true
}

// Reset drops all ring contents without affecting any external LSN
// counter; see journal.Slice.ResetRingBuffer.
func (r *RingBuffer) Reset() {
	r.buf = r.buf[:0]
	r.bytes = 0
}

// Size returns the number of entries currently stored.
func (r *RingBuffer) Size() int {
	return len(r.buf)
}

// Bytes returns the aggregate byte size of currently stored entries.
func (r *RingBuffer) Bytes() int {
	return r.bytes
}

// LowHigh returns the current contiguous LSN interval and whether the ring
// holds any entries at all.
func (r *RingBuffer) LowHigh() (low, high uint64, ok bool) {
	if len(r.buf) == 0 {
		return 0, 0, false
	}
	return r.buf[0].lsn, r.buf[len(r.buf)-1].lsn, true
}
