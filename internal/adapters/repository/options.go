package repository

import "time"

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 10 * time.Second
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithShardCount sets how many location shards hold cells.
func WithShardCount(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}
