// Package natsconsumer implements an optional journal consumer that tees
// every committed entry onto a NATS subject — a stand-in "replication
// tail" a downstream system can subscribe to without touching the
// journal's internal ring buffer or consumer registry directly.
package natsconsumer

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/rs/zerolog/log"
)

// Publisher is the narrow slice of *nats.Conn this package depends on,
// kept as an interface so Tee is testable without a running NATS server.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Tee implements journal.Consumer, publishing each entry's raw wire frame
// to a fixed NATS subject.
type Tee struct {
	pub     Publisher
	subject string
}

// NewTee returns a Tee that publishes to subject via pub.
func NewTee(pub Publisher, subject string) *Tee {
	return &Tee{pub: pub, subject: subject}
}

// Dial connects to a NATS server at url, identifying itself in server
// logs/monitoring as the journal tee.
func Dial(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("dragonfly-journal-tee"))
	if err != nil {
		return nil, fmt.Errorf("natsconsumer: connect %q: %w", url, err)
	}
	return nc, nil
}

// SubjectForThread derives the per-thread subject a tee publishes to,
// so each shard's stream stays distinguishable on the wire.
func SubjectForThread(prefix string, threadIdx int) string {
	return fmt.Sprintf("%s.%d", prefix, threadIdx)
}

// OnEntry implements journal.Consumer. A publish failure is logged, not
// propagated — the tee is an observability aid, never allowed to stall or
// fail the journal write path it is attached to.
func (t *Tee) OnEntry(e entry.Entry, raw []byte) {
	if err := t.pub.Publish(t.subject, raw); err != nil {
		log.Error().
			Err(err).
			Str("subject", t.subject).
			Uint64("lsn", e.LSN).
			Msg("natsconsumer: publish failed")
	}
}
