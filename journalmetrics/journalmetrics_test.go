package journalmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rohan-flutterint/dragonfly/entry"
	"github.com/stretchr/testify/assert"
)

func TestJournalObserver_CountsEntriesAndBytes(t *testing.T) {
	m := New()
	obs := NewJournalObserver(m, 2)

	raw := entry.Encode(entry.Entry{Opcode: entry.OpCommand})
	obs.OnEntry(entry.Entry{Opcode: entry.OpCommand}, raw)
	obs.OnEntry(entry.Entry{Opcode: entry.OpCommand}, raw)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EntriesAppended.WithLabelValues("2")))
	assert.Equal(t, float64(2*len(raw)), testutil.ToFloat64(m.BytesAppended.WithLabelValues("2")))
}

func TestMetrics_MigrationGaugeAndCounter(t *testing.T) {
	m := New()
	m.MigrationKeyCount.Set(42)
	m.MigrationJoins.WithLabelValues("success").Inc()

	assert.Equal(t, float64(42), testutil.ToFloat64(m.MigrationKeyCount))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MigrationJoins.WithLabelValues("success")))
}
