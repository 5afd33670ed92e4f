package repository

import (
	"context"
	"errors"
	"time"

	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/retry"
	"github.com/okian/movers/pkg/metrics"
)

// Reads and idempotent writes are retried on ErrStoreUnavailable.
// ConditionalAssign, SetStatus, CreateJob and CreateRating are not: after an
// ambiguous failure a second attempt could report a false conflict or
// duplicate.

func retryPolicy(p retry.Policy, op string) retry.Policy {
	p.Retryable = func(err error) bool { return errors.Is(err, model.ErrStoreUnavailable) }
	p.OnRetry = func(int, time.Duration, error) { metrics.RecordStoreRetry(op) }
	return p
}

func do[T any](ctx context.Context, p retry.Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, retryPolicy(p, op), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// RetryingJobStore decorates a JobStore with boundary retries.
type RetryingJobStore struct {
	inner  JobStore
	policy retry.Policy
}

var _ JobStore = (*RetryingJobStore)(nil)

// NewRetryingJobStore wraps inner.
func NewRetryingJobStore(inner JobStore, p retry.Policy) *RetryingJobStore {
	return &RetryingJobStore{inner: inner, policy: p}
}

// Unwrap returns the decorated store.
func (s *RetryingJobStore) Unwrap() JobStore { return s.inner }

func (s *RetryingJobStore) GetJob(ctx context.Context, id string) (model.Job, error) {
	return do(ctx, s.policy, "get_job", func(ctx context.Context) (model.Job, error) {
		return s.inner.GetJob(ctx, id)
	})
}

func (s *RetryingJobStore) CreateJob(ctx context.Context, job model.Job) error {
	return s.inner.CreateJob(ctx, job)
}

func (s *RetryingJobStore) ConditionalAssign(ctx context.Context, jobID, workerID string, expected model.Status) (bool, error) {
	return s.inner.ConditionalAssign(ctx, jobID, workerID, expected)
}

func (s *RetryingJobStore) SetStatus(ctx context.Context, jobID string, next, expected model.Status) (bool, error) {
	return s.inner.SetStatus(ctx, jobID, next, expected)
}

func (s *RetryingJobStore) ListJobs(ctx context.Context, status model.Status) ([]model.Job, error) {
	return do(ctx, s.policy, "list_jobs", func(ctx context.Context) ([]model.Job, error) {
		return s.inner.ListJobs(ctx, status)
	})
}

func (s *RetryingJobStore) Count(ctx context.Context) (int, error) {
	return do(ctx, s.policy, "count_jobs", s.inner.Count)
}

func (s *RetryingJobStore) CreateRating(ctx context.Context, r model.Rating) error {
	return s.inner.CreateRating(ctx, r)
}

func (s *RetryingJobStore) ListRatings(ctx context.Context, workerID string) ([]model.Rating, error) {
	return do(ctx, s.policy, "list_ratings", func(ctx context.Context) ([]model.Rating, error) {
		return s.inner.ListRatings(ctx, workerID)
	})
}

// RetryingRegistry decorates a WorkerRegistry with boundary retries. Every
// registry write is idempotent, so all operations retry.
type RetryingRegistry struct {
	inner  WorkerRegistry
	policy retry.Policy
}

var _ WorkerRegistry = (*RetryingRegistry)(nil)

// NewRetryingRegistry wraps inner.
func NewRetryingRegistry(inner WorkerRegistry, p retry.Policy) *RetryingRegistry {
	return &RetryingRegistry{inner: inner, policy: p}
}

// Unwrap returns the decorated registry.
func (r *RetryingRegistry) Unwrap() WorkerRegistry { return r.inner }

func (r *RetryingRegistry) ListAvailable(ctx context.Context, skills []string) ([]model.Worker, error) {
	return do(ctx, r.policy, "list_available", func(ctx context.Context) ([]model.Worker, error) {
		return r.inner.ListAvailable(ctx, skills)
	})
}

func (r *RetryingRegistry) SetAvailability(ctx context.Context, id string, available bool) error {
	_, err := do(ctx, r.policy, "set_availability", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.SetAvailability(ctx, id, available)
	})
	return err
}

func (r *RetryingRegistry) GetPerformanceScore(ctx context.Context, id string) (float64, error) {
	return do(ctx, r.policy, "get_performance_score", func(ctx context.Context) (float64, error) {
		return r.inner.GetPerformanceScore(ctx, id)
	})
}

func (r *RetryingRegistry) SetPerformanceScore(ctx context.Context, id string, score float64) error {
	_, err := do(ctx, r.policy, "set_performance_score", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.inner.SetPerformanceScore(ctx, id, score)
	})
	return err
}

func (r *RetryingRegistry) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	return do(ctx, r.policy, "get_worker", func(ctx context.Context) (model.Worker, error) {
		return r.inner.GetWorker(ctx, id)
	})
}

func (r *RetryingRegistry) UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error) {
	return do(ctx, r.policy, "upsert_worker", func(ctx context.Context) (model.Worker, error) {
		return r.inner.UpsertWorker(ctx, w)
	})
}

func (r *RetryingRegistry) Count(ctx context.Context) (int, error) {
	return do(ctx, r.policy, "count_workers", r.inner.Count)
}
