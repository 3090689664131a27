// Package config defines the process-wide tunables, loaded from the
// environment via caarlos0/env the same way the rest of the example
// corpus wires configuration.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the journal and migration subsystems read at
// startup. Field names map to SCREAMING_SNAKE_CASE environment variables
// via the env struct tag.
type Config struct {
	// NumShards is the number of proactor threads (and journal slices) to
	// start; each owns one shard.
	NumShards int `env:"NUM_SHARDS" envDefault:"4"`

	// RingBufferMaxEntries bounds each journal slice's ring by entry
	// count; 0 disables the bound.
	RingBufferMaxEntries int `env:"RING_BUFFER_MAX_ENTRIES" envDefault:"8192"`

	// RingBufferMaxBytes bounds each journal slice's ring by aggregate
	// byte size; 0 disables the bound.
	RingBufferMaxBytes int `env:"RING_BUFFER_MAX_BYTES" envDefault:"67108864"`

	// MigrationFinalizationTimeout bounds how long a migration
	// coordinator's Join waits for every flow to quiesce.
	MigrationFinalizationTimeout time.Duration `env:"MIGRATION_FINALIZATION_TIMEOUT" envDefault:"30s"`

	// FlushCoalesceWindow is the maximum time a slice may hold flush mode
	// disabled before the caller is expected to re-enable it; purely
	// advisory — enforced by callers, not by the Slice itself.
	FlushCoalesceWindow time.Duration `env:"FLUSH_COALESCE_WINDOW" envDefault:"200ms"`

	// NatsURL, when non-empty, enables the journal tee consumer against
	// this NATS server.
	NatsURL string `env:"NATS_URL" envDefault:""`
	// NatsSubjectPrefix forms the subject "<prefix>.<thread-idx>" each
	// thread's tee publishes to.
	NatsSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"dragonfly.journal"`

	// MetricsAddr is the listen address for the Prometheus /metrics and
	// /healthz HTTP endpoints in cmd/journalnode.
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// MigrationReplayRatePerSec caps how many transactions per second a
	// single incoming migration flow may replay; 0 disables the cap.
	// Protects the destination from a source that dumps its backlog
	// faster than local apply can keep up.
	MigrationReplayRatePerSec int `env:"MIGRATION_REPLAY_RATE_PER_SEC" envDefault:"0"`
}

// Load reads Config from the process environment, applying defaults for
// anything unset, then validates it.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks tunables for internally-consistent, non-destructive
// values.
func (c Config) Validate() error {
	if c.NumShards <= 0 {
		return fmt.Errorf("config: NUM_SHARDS must be positive, got %d", c.NumShards)
	}
	if c.RingBufferMaxEntries < 0 {
		return fmt.Errorf("config: RING_BUFFER_MAX_ENTRIES must be >= 0, got %d", c.RingBufferMaxEntries)
	}
	if c.RingBufferMaxBytes < 0 {
		return fmt.Errorf("config: RING_BUFFER_MAX_BYTES must be >= 0, got %d", c.RingBufferMaxBytes)
	}
	if c.RingBufferMaxEntries == 0 && c.RingBufferMaxBytes == 0 {
		return fmt.Errorf("config: at least one of RING_BUFFER_MAX_ENTRIES/RING_BUFFER_MAX_BYTES must be positive")
	}
	if c.MigrationFinalizationTimeout <= 0 {
		return fmt.Errorf("config: MIGRATION_FINALIZATION_TIMEOUT must be positive, got %s", c.MigrationFinalizationTimeout)
	}
	return nil
}
