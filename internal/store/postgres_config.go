package store

import "time"

// PostgresConfig describes how the repository initializes its connection
// pool. Grounded on the teacher's internal/storage.PostgresConfig shape,
// trimmed to the concerns this domain actually has (no ingest controller,
// no object storage, no recording retention policy).
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
	ApplicationName     string
	Clock               func() time.Time
}

const (
	defaultMaxConnections      = 10
	defaultMinConnections      = 0
	defaultMaxConnLifetime     = time.Hour
	defaultMaxConnIdleTime     = 30 * time.Minute
	defaultHealthCheckInterval = time.Minute
	defaultAcquireTimeout      = 5 * time.Second
	defaultApplicationName     = "reactioncut"
)

func newPostgresConfig(dsn string, opts ...Option) PostgresConfig {
	cfg := PostgresConfig{
		DSN:                 dsn,
		MaxConnections:      defaultMaxConnections,
		MinConnections:      defaultMinConnections,
		MaxConnLifetime:     defaultMaxConnLifetime,
		MaxConnIdleTime:     defaultMaxConnIdleTime,
		HealthCheckInterval: defaultHealthCheckInterval,
		AcquireTimeout:      defaultAcquireTimeout,
		ApplicationName:     defaultApplicationName,
		Clock:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyPostgres(&cfg)
		}
	}
	return cfg
}
