package reconcile

import (
	"time"

	"github.com/okian/movers/internal/domain/dedupe"
	"github.com/okian/movers/internal/retry"
	"github.com/okian/movers/pkg/logger"
)

// Option applies a configuration option to the Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDeduper sets the pending-key tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(r *Reconciler) {
		if d != nil {
			r.pending = d
		}
	}
}

// WithRetry sets attempts and the backoff bounds for each repair.
func WithRetry(attempts int, base, capDur time.Duration) Option {
	return func(r *Reconciler) {
		r.policy = retry.Policy{Attempts: attempts, Base: base, Cap: capDur}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}
