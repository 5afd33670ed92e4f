package repository

import "time"

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

// JobStoreOption applies a configuration option to the MemoryJobStore.
type JobStoreOption func(*MemoryJobStore)

// WithClock sets the time source used for created/updated timestamps.
func WithClock(now Clock) JobStoreOption {
	return func(s *MemoryJobStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RegistryOption applies a configuration option to the TreapRegistry.
type RegistryOption func(*TreapRegistry)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) RegistryOption {
	return func(r *TreapRegistry) {
		if interval > 0 {
			r.metricsUpdateInterval = interval
		}
	}
}
