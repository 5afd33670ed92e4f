package retry

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts   int           // total tries including the first; < 1 means 1
	Base       time.Duration // first delay
	Cap        time.Duration // upper bound for any delay; 0 = none
	Multiplier float64       // growth factor; < 1 means defaultMultiplier

	// Retryable decides whether err deserves another try. Nil retries every error.
	Retryable func(err error) bool
	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)

	rng *rand.Rand
}

// WithSeed returns a copy of p with a deterministic jitter source.
func (p Policy) WithSeed(seed uint64) Policy {
	p.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // test determinism
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx ends. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = defaultMultiplier
	}

	var (
		delay time.Duration
		err   error
	)
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}

		delay = Backoff(delay, p.Base, mult, p.Cap, p.rng)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w (last error: %w)", attempt, ctx.Err(), err)
		case <-t.C:
		}
	}
}
