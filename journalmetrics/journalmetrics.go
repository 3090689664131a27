// Package journalmetrics exposes Prometheus instrumentation for the
// journal and migration subsystems. It is wired only into
// cmd/journalnode: the core packages stay metrics-free and are observed
// purely through journal.Consumer, the same callback interface any other
// consumer (e.g. natsconsumer.Tee) uses.
package journalmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every gauge/counter this binary exposes under /metrics.
type Metrics struct {
	EntriesAppended   *prometheus.CounterVec
	BytesAppended     *prometheus.CounterVec
	MigrationKeyCount prometheus.Gauge
	MigrationJoins    *prometheus.CounterVec
}

// New constructs an unregistered Metrics set.
func New() *Metrics {
	return &Metrics{
		EntriesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dragonfly",
			Subsystem: "journal",
			Name:      "entries_appended_total",
			Help:      "Entries committed to a journal slice, by thread.",
		}, []string{"thread"}),
		BytesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dragonfly",
			Subsystem: "journal",
			Name:      "bytes_appended_total",
			Help:      "Wire bytes committed to a journal slice, by thread.",
		}, []string{"thread"}),
		MigrationKeyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dragonfly",
			Subsystem: "migration",
			Name:      "key_count",
			Help:      "Transactions replayed so far by the active incoming migration.",
		}),
		MigrationJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dragonfly",
			Subsystem: "migration",
			Name:      "joins_total",
			Help:      "Migration coordinator Join outcomes, by result.",
		}, []string{"result"}),
	}
}

// MustRegister registers every collector in m against reg.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		m.EntriesAppended,
		m.BytesAppended,
		m.MigrationKeyCount,
		m.MigrationJoins,
	)
}
