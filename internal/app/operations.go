package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/ranking"
	"github.com/okian/movers/internal/domain/types"
	"github.com/okian/movers/pkg/logger"
)

// DefaultSuggestions is the suggestion count when the caller gives none.
const DefaultSuggestions = 5

// CreateJob posts a new open job. An empty id gets a random UUID.
func (s *Service) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	c, err := s.running()
	if err != nil {
		return model.Job{}, err
	}

	job = job.Clone()
	if strings.TrimSpace(job.ID) == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.StatusOpen
	}
	if err := job.Validate(); err != nil {
		return model.Job{}, err
	}
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	if err := c.jobs.CreateJob(ctx, job); err != nil {
		return model.Job{}, err
	}
	s.logger.Debug(ctx, "job created",
		logger.String("job_id", job.ID),
		logger.String("size", string(job.Size)),
	)
	return job, nil
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, id string) (model.Job, error) {
	c, err := s.running()
	if err != nil {
		return model.Job{}, err
	}
	return c.jobs.GetJob(ctx, id)
}

// ListJobs returns jobs in status, or every job when status is empty.
func (s *Service) ListJobs(ctx context.Context, status model.Status) ([]model.Job, error) {
	c, err := s.running()
	if err != nil {
		return nil, err
	}
	return c.jobs.ListJobs(ctx, status)
}

// AutoMatch claims jobID for the best ranked available worker.
func (s *Service) AutoMatch(ctx context.Context, jobID string) (types.ClaimResult, error) {
	c, err := s.running()
	if err != nil {
		return types.ClaimResult{}, err
	}
	return c.coordinator.RequestAutoMatch(ctx, jobID)
}

// SelfClaim claims jobID for workerID.
func (s *Service) SelfClaim(ctx context.Context, jobID, workerID string) (types.ClaimResult, error) {
	c, err := s.running()
	if err != nil {
		return types.ClaimResult{}, err
	}
	return c.coordinator.RequestSelfClaim(ctx, jobID, workerID)
}

// AdvanceStatus moves an assigned job forward.
func (s *Service) AdvanceStatus(ctx context.Context, jobID string, next model.Status) (model.Job, error) {
	c, err := s.running()
	if err != nil {
		return model.Job{}, err
	}
	return c.lifecycle.AdvanceStatus(ctx, jobID, next)
}

// Relist opens a new job copying a cancelled one.
func (s *Service) Relist(ctx context.Context, jobID string) (model.Job, error) {
	c, err := s.running()
	if err != nil {
		return model.Job{}, err
	}
	return c.lifecycle.Relist(ctx, jobID)
}

// SubmitRating stores a rating and refreshes the worker's score.
func (s *Service) SubmitRating(ctx context.Context, r model.Rating) (model.Rating, error) {
	c, err := s.running()
	if err != nil {
		return model.Rating{}, err
	}
	return c.lifecycle.SubmitRating(ctx, r)
}

// Suggestions returns the top ranked available workers for jobID. limit is
// clamped to 1..max_suggestions; zero means DefaultSuggestions.
func (s *Service) Suggestions(ctx context.Context, jobID string, limit int) ([]types.Entry, error) {
	c, err := s.running()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSuggestions
	}
	limit = min(limit, s.cfg.MaxSuggestions)

	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	candidates, err := c.registry.ListAvailable(ctx, job.RequiredSkills)
	if err != nil {
		return nil, err
	}
	return ranking.Top(&job, candidates, limit), nil
}

// UpsertWorker registers a worker or updates its profile. The stored
// performance score of an existing worker is kept.
func (s *Service) UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error) {
	c, err := s.running()
	if err != nil {
		return model.Worker{}, err
	}
	if err := w.Validate(); err != nil {
		return model.Worker{}, err
	}
	return c.registry.UpsertWorker(ctx, w)
}

// GetWorker returns a worker by id.
func (s *Service) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	c, err := s.running()
	if err != nil {
		return model.Worker{}, err
	}
	return c.registry.GetWorker(ctx, id)
}

// SetAvailability toggles a worker's availability and returns the worker.
// The write supersedes any repair still queued for the worker.
func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (model.Worker, error) {
	c, err := s.running()
	if err != nil {
		return model.Worker{}, err
	}
	err = c.reconciler.Settle(ctx, id, func(ctx context.Context) error {
		return c.registry.SetAvailability(ctx, id, available)
	})
	if err != nil {
		return model.Worker{}, err
	}
	return c.registry.GetWorker(ctx, id)
}
