package store

import (
	"strings"
	"time"
)

// Option configures either backend. Each option applies to the in-memory
// repository's settings, the Postgres connection config, or both — mirroring
// the teacher's dual applyJSON/applyPostgres Option shape so callers can
// share a single options list regardless of which NewXRepository they call.
type Option interface {
	applyMemory(*memoryConfig)
	applyPostgres(*PostgresConfig)
}

type optionAdapter struct {
	memory func(*memoryConfig)
	pg     func(*PostgresConfig)
}

func (o optionAdapter) applyMemory(cfg *memoryConfig) {
	if o.memory != nil && cfg != nil {
		o.memory(cfg)
	}
}

func (o optionAdapter) applyPostgres(cfg *PostgresConfig) {
	if o.pg != nil && cfg != nil {
		o.pg(cfg)
	}
}

func composeOption(memory func(*memoryConfig), pg func(*PostgresConfig)) Option {
	return optionAdapter{memory: memory, pg: pg}
}

func postgresOnlyOption(pg func(*PostgresConfig)) Option {
	return optionAdapter{pg: pg}
}

// WithClock overrides the clock used for generated timestamps (CreatedAt,
// UpdatedAt, ...). Intended for tests that need deterministic ordering.
func WithClock(clock func() time.Time) Option {
	return composeOption(
		func(cfg *memoryConfig) {
			if clock != nil {
				cfg.clock = clock
			}
		},
		func(cfg *PostgresConfig) {
			if clock != nil {
				cfg.Clock = clock
			}
		},
	)
}

// WithPostgresPoolLimits caps the number of open connections in the pool and
// optionally sets a floor for idle connections kept ready.
func WithPostgresPoolLimits(maxConns, minConns int32) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxConns > 0 {
			cfg.MaxConnections = maxConns
		}
		if minConns >= 0 {
			cfg.MinConnections = minConns
		}
	})
}

// WithPostgresAcquireTimeout configures how long the repository waits to
// obtain a connection from the pool before a call fails with a transient
// error.
func WithPostgresAcquireTimeout(timeout time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if timeout > 0 {
			cfg.AcquireTimeout = timeout
		}
	})
}

// WithPostgresApplicationName sets the application name reported to Postgres
// for new connections.
func WithPostgresApplicationName(name string) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cfg.ApplicationName = trimmed
		}
	})
}

// WithPostgresPoolDurations adjusts connection lifetime, idle time, and
// health-check cadence.
func WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval time.Duration) Option {
	return postgresOnlyOption(func(cfg *PostgresConfig) {
		if maxLifetime > 0 {
			cfg.MaxConnLifetime = maxLifetime
		}
		if maxIdle > 0 {
			cfg.MaxConnIdleTime = maxIdle
		}
		if healthInterval > 0 {
			cfg.HealthCheckInterval = healthInterval
		}
	})
}
