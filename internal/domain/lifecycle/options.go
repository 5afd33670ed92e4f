package lifecycle

import (
	"time"

	"github.com/okian/movers/internal/domain/scoring"
	"github.com/okian/movers/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithScorer sets the performance scorer.
func WithScorer(s scoring.Scorer) Option {
	return func(c *Controller) {
		if s != nil {
			c.scorer = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}
