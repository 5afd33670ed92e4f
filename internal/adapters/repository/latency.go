package repository

import (
	"time"

	"github.com/okian/movers/pkg/metrics"
)

// Backend names used as metric labels.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendRedis    = "redis"
)

// ObserveLatency records how long op took on backend. Use with defer.
func ObserveLatency(backend, op string, start time.Time) {
	metrics.RecordStoreLatency(backend, op, float64(time.Since(start).Microseconds())/1000)
}
