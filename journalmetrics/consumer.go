package journalmetrics

import (
	"strconv"

	"github.com/rohan-flutterint/dragonfly/entry"
)

// JournalObserver implements journal.Consumer, feeding append counters
// from a single thread's slice without that slice knowing metrics exist.
type JournalObserver struct {
	m      *Metrics
	thread string
}

// NewJournalObserver returns an observer attributing every entry it sees
// to threadIdx.
func NewJournalObserver(m *Metrics, threadIdx int) *JournalObserver {
	return &JournalObserver{m: m, thread: strconv.Itoa(threadIdx)}
}

// OnEntry implements journal.Consumer.
func (o *JournalObserver) OnEntry(e entry.Entry, raw []byte) {
	o.m.EntriesAppended.WithLabelValues(o.thread).Inc()
	o.m.BytesAppended.WithLabelValues(o.thread).Add(float64(len(raw)))
}
