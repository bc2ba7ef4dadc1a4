// Package dedupe remembers the outcome of requests by id so retried
// requests are answered instead of reapplied.
package dedupe

// Option applies a configuration option to a Cache.
type Option func(*settings)

type settings struct {
	maxSize int
}

// WithMaxSize bounds the number of remembered ids. Zero or negative means unbounded.
func WithMaxSize(size int) Option {
	return func(s *settings) {
		s.maxSize = size
	}
}
