package migration

import (
	"strings"
	"sync"

	"github.com/rohan-flutterint/dragonfly/journalreader"
)

// Executor applies a replayed transaction to the local data store.
// Execute is called once per journalreader.Transaction in the order the
// flow received them; a non-nil error is treated as fatal for the flow
// that produced it.
type Executor interface {
	Execute(tx journalreader.Transaction) error
	// IsGlobalCommand reports whether tx affects keyspace outside of any
	// single slot (e.g. FLUSHALL), which a flow may need to treat
	// specially since slot ownership checks don't apply to it.
	IsGlobalCommand(tx journalreader.Transaction) bool
}

// MapExecutor is a trivial in-memory Executor, useful for tests and the
// cmd/journalnode demo binary; it is explicitly not a real command
// engine — it only understands "last two payload elements are key and
// value" well enough to make replay observable.
type MapExecutor struct {
	mu      sync.Mutex
	data    map[string][]byte
	applied int
}

// NewMapExecutor returns an empty MapExecutor.
func NewMapExecutor() *MapExecutor {
	return &MapExecutor{data: make(map[string][]byte)}
}

// Execute implements Executor.
func (m *MapExecutor) Execute(tx journalreader.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range tx.Entries {
		if len(e.Payload) < 2 {
			continue
		}
		key := string(e.Payload[len(e.Payload)-2])
		val := e.Payload[len(e.Payload)-1]
		cp := make([]byte, len(val))
		copy(cp, val)
		m.data[key] = cp
	}
	m.applied++
	return nil
}

// IsGlobalCommand implements Executor, recognizing FLUSHALL by its
// command-name payload element.
func (m *MapExecutor) IsGlobalCommand(tx journalreader.Transaction) bool {
	for _, e := range tx.Entries {
		if len(e.Payload) == 0 {
			continue
		}
		if strings.EqualFold(string(e.Payload[0]), "FLUSHALL") {
			return true
		}
	}
	return false
}

// Get returns the current value for key, for test assertions.
func (m *MapExecutor) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Len returns the number of keys currently held.
func (m *MapExecutor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// Applied returns the number of transactions executed so far.
func (m *MapExecutor) Applied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}
