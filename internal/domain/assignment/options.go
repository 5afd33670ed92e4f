package assignment

import "github.com/okian/movers/pkg/logger"

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts caps the ranked candidates tried by one auto-match.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}
