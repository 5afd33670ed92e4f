// Package retry runs operations again after transient failures using
// capped, jittered exponential backoff.
package retry

import (
	rand "math/rand/v2"
	"time"
)

const (
	defaultBase       = 50 * time.Millisecond
	defaultMultiplier = 3.0
)

// Backoff returns the next delay using decorrelated jitter with a cap:
//
//	next = min(cap, base + rand[0, prev*mult-base))
//
// If prev <= 0 the first delay is base. A nil rng uses the package PRNG.
func Backoff(prev, base time.Duration, mult float64, capDur time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		base = defaultBase
	}
	if mult < 1.0 {
		mult = 1.0
	}
	if capDur > 0 && capDur < base {
		return capDur
	}
	if prev <= 0 {
		return base
	}

	span := time.Duration(float64(prev)*mult) - base
	if span <= 0 {
		span = base
	}
	var jitter int64
	if rng != nil {
		jitter = rng.Int64N(int64(span))
	} else {
		jitter = rand.Int64N(int64(span)) //nolint:gosec // non-crypto backoff jitter
	}
	next := base + time.Duration(jitter)
	if capDur > 0 && next > capDur {
		return capDur
	}
	return next
}
