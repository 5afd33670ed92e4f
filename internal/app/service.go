// Package service wires the stores, the assignment coordinator, the
// lifecycle controller and the availability reconciler into the operations
// the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/okian/movers/internal/adapters/mq/queue"
	"github.com/okian/movers/internal/adapters/mq/worker"
	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/config"
	"github.com/okian/movers/internal/domain/assignment"
	"github.com/okian/movers/internal/domain/dedupe"
	"github.com/okian/movers/internal/domain/lifecycle"
	"github.com/okian/movers/internal/domain/reconcile"
	"github.com/okian/movers/internal/domain/scoring"
	"github.com/okian/movers/internal/retry"
	"github.com/okian/movers/pkg/logger"
	"github.com/okian/movers/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start or after Stop.
var ErrNotStarted = errors.New("service not started")

// Reconciler backoff bounds. Attempts come from config. The task timeout
// caps one repair including all of its retries.
const (
	reconcileBaseDelay   = 50 * time.Millisecond
	reconcileMaxDelay    = 5 * time.Second
	reconcileTaskTimeout = time.Minute
)

// components is everything Start builds. Operations take a snapshot under
// the read lock and run without holding it.
type components struct {
	jobs        repository.JobStore
	registry    repository.WorkerRegistry
	queue       *queue.InMemoryQueue
	reconciler  *reconcile.Reconciler
	pool        *worker.Pool
	coordinator *assignment.Coordinator
	lifecycle   *lifecycle.Controller
	closers     []io.Closer
}

// Service implements the API dependencies for the assignment system.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Backends supplied by the caller; nil means open from cfg.
	jobStore repository.JobStore
	registry repository.WorkerRegistry

	c       *components
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults come from config.New.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithWorkerCount sets the number of reconcile workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.cfg.ReconcileWorkers = count
		}
	}
}

// WithQueueSize sets the capacity of the reconcile queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.ReconcileQueueSize = size
		}
	}
}

// WithDedupeSize bounds the set of workers with a pending repair.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cfg.ReconcileDedupeSize = size
		}
	}
}

// WithJobStore uses store instead of opening the configured backend.
// The service does not close it.
func WithJobStore(store repository.JobStore) Option {
	return func(s *Service) { s.jobStore = store }
}

// WithWorkerRegistry uses reg instead of opening the configured backend.
// The service does not close it.
func WithWorkerRegistry(reg repository.WorkerRegistry) Option {
	return func(s *Service) { s.registry = reg }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service. Options that tweak config fields apply on
// top of the config given by WithConfig, so pass WithConfig first.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the backends and starts the reconcile workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting assignment service...",
		logger.String("job_store", s.cfg.JobStore),
		logger.String("worker_registry", s.cfg.WorkerRegistry),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c, err := s.build(ctx, runCtx)
	if err != nil {
		cancel()
		return err
	}
	c.pool.Start(runCtx)

	s.c = c
	s.cancel = cancel
	s.started = true
	s.logger.Info(ctx, "assignment service started",
		logger.Int("reconcileWorkers", c.pool.Size()),
		logger.Int("queueSize", s.cfg.ReconcileQueueSize),
		logger.Int("dedupeSize", s.cfg.ReconcileDedupeSize),
		logger.Int("autoMatchMaxAttempts", s.cfg.AutoMatchMaxAttempts),
	)
	return nil
}

func (s *Service) build(ctx, runCtx context.Context) (*components, error) {
	c := &components{}

	jobs, err := s.openJobStore(ctx, c)
	if err != nil {
		return nil, err
	}
	registry, err := s.openRegistry(ctx, runCtx, c)
	if err != nil {
		closeAll(c.closers)
		return nil, err
	}

	policy := retry.Policy{
		Attempts: s.cfg.StoreRetryAttempts,
		Base:     time.Duration(s.cfg.StoreRetryBaseMS) * time.Millisecond,
		Cap:      time.Duration(s.cfg.StoreRetryMaxMS) * time.Millisecond,
	}
	c.jobs = repository.NewRetryingJobStore(jobs, policy)
	c.registry = repository.NewRetryingRegistry(registry, policy)

	c.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.ReconcileQueueSize))
	// The reconciler runs its own retry loop, so it writes the undecorated registry.
	c.reconciler = reconcile.New(registry, c.queue,
		reconcile.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.ReconcileDedupeSize))),
		reconcile.WithRetry(s.cfg.ReconcileMaxAttempts, reconcileBaseDelay, reconcileMaxDelay),
		reconcile.WithLogger(s.logger.Named("reconciler")),
	)
	c.pool = worker.NewPool(s.cfg.ReconcileWorkers, c.queue, c.reconciler,
		worker.WithLogger(s.logger.Named("worker")),
		worker.WithTaskTimeout(reconcileTaskTimeout),
	)

	c.coordinator = assignment.New(c.jobs, c.registry, c.reconciler,
		assignment.WithMaxAttempts(s.cfg.AutoMatchMaxAttempts),
		assignment.WithLogger(s.logger.Named("coordinator")),
	)
	c.lifecycle = lifecycle.New(c.jobs, c.registry, c.reconciler,
		lifecycle.WithScorer(scoring.NewMeanScorer(scoring.WithPrecision(s.cfg.ScorePrecision))),
		lifecycle.WithLogger(s.logger.Named("lifecycle")),
	)
	return c, nil
}

// Stop drains the reconcile queue, then closes the backends the service
// opened.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping assignment service...")

	if err := s.c.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "reconcile workers did not drain", logger.Error(err))
	}
	s.cancel()
	closeAll(s.c.closers)

	s.c = nil
	s.started = false
	s.logger.Info(ctx, "assignment service stopped")
}

func (s *Service) running() (*components, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.c, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":              s.started,
		"jobStore":             s.cfg.JobStore,
		"workerRegistry":       s.cfg.WorkerRegistry,
		"reconcileWorkers":     s.cfg.ReconcileWorkers,
		"queueSize":            s.cfg.ReconcileQueueSize,
		"dedupeSize":           s.cfg.ReconcileDedupeSize,
		"autoMatchMaxAttempts": s.cfg.AutoMatchMaxAttempts,
	}
	if !s.started {
		return stats
	}

	queueLen := s.c.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["pendingRepairs"] = s.c.reconciler.Pending()
	stats["reconcileWorkers"] = s.c.pool.Size()
	metrics.UpdateQueueSize(queueLen)

	if n, err := s.c.jobs.Count(ctx); err == nil {
		stats["totalJobs"] = n
		metrics.UpdateJobsTotal(n)
	} else {
		stats["totalJobsError"] = err.Error()
	}
	if n, err := s.c.registry.Count(ctx); err == nil {
		stats["totalWorkers"] = n
		metrics.UpdateWorkersTotal(n)
	} else {
		stats["totalWorkersError"] = err.Error()
	}
	return stats
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}

func unknownBackend(kind, name string) error {
	return fmt.Errorf("%w: %s %q", repository.ErrUnknownBackend, kind, name)
}
