package service

import (
	"time"

	"github.com/okian/starboard/internal/domain/alliance"
	"github.com/okian/starboard/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock sets the time source used when a request carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.clock = now
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPublisher sets where committed change log entries are announced.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.feed = p
		}
	}
}

// WithConflictRetries bounds compare-and-set retries per mutation.
func WithConflictRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.conflictRetries = n
		}
	}
}

// WithShareDefaults sets the partner ratios used when an effect has no value.
func WithShareDefaults(allianceShare, missionShare float64) Option {
	return func(e *Engine) {
		e.shares = alliance.Defaults{Alliance: allianceShare, Mission: missionShare}
	}
}

// WithDedupeSize bounds the number of remembered request ids.
func WithDedupeSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.dedupeSize = size
		}
	}
}

// WithSweepInterval sets how often the background sweeper closes expired effects.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sweepInterval = d
		}
	}
}

// WithShuffle replaces the permutation used to pair teams for special missions.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(e *Engine) {
		if shuffle != nil {
			e.shuffle = shuffle
		}
	}
}
