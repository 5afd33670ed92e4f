// Package repository defines the job store and worker registry contracts
// and their in-memory implementations. Networked backends live in the
// postgres, natskv and redisreg subpackages.
package repository

import (
	"context"

	"github.com/okian/movers/internal/domain/model"
)

// JobStore holds jobs and their ratings.
//
// The conditional primitives ConditionalAssign and SetStatus are
// linearizable per job id. A failed condition returns (false, nil); every
// other failure is an error. Backend connectivity failures wrap
// model.ErrStoreUnavailable.
type JobStore interface {
	// GetJob returns model.ErrNotFound if the job is unknown.
	GetJob(ctx context.Context, id string) (model.Job, error)
	// CreateJob returns model.ErrAlreadyExists on a duplicate id.
	CreateJob(ctx context.Context, job model.Job) error
	// ConditionalAssign sets status=assigned and the assignee iff the job's
	// current status equals expected.
	ConditionalAssign(ctx context.Context, jobID, workerID string, expected model.Status) (bool, error)
	// SetStatus moves the job to next iff its current status equals expected.
	// Moving to cancelled clears the assignee.
	SetStatus(ctx context.Context, jobID string, next, expected model.Status) (bool, error)
	// ListJobs returns jobs ordered by creation time then id. An empty status
	// lists every job.
	ListJobs(ctx context.Context, status model.Status) ([]model.Job, error)
	// Count returns the number of jobs.
	Count(ctx context.Context) (int, error)

	RatingStore
}

// RatingStore holds immutable ratings.
type RatingStore interface {
	// CreateRating returns model.ErrConflict if (job, worker) was already rated.
	CreateRating(ctx context.Context, r model.Rating) error
	// ListRatings returns every rating of the worker ordered by job id.
	ListRatings(ctx context.Context, workerID string) ([]model.Rating, error)
}

// WorkerRegistry holds worker availability and performance scores.
type WorkerRegistry interface {
	// ListAvailable returns available workers carrying every listed skill.
	ListAvailable(ctx context.Context, skills []string) ([]model.Worker, error)
	// SetAvailability returns model.ErrNotFound for an unknown worker.
	SetAvailability(ctx context.Context, id string, available bool) error
	GetPerformanceScore(ctx context.Context, id string) (float64, error)
	SetPerformanceScore(ctx context.Context, id string, score float64) error
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	// UpsertWorker registers or updates a worker. An existing performance
	// score is kept; the stored worker is returned.
	UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error)
	Count(ctx context.Context) (int, error)
}
