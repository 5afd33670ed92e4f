// Package assignment grants exclusive claims of open jobs to workers.
//
// The coordinator never reads-then-writes job state: every grant is a single
// conditional assign against the job store, so concurrent claims on one job
// produce at most one assignee whatever the store backend.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/ranking"
	"github.com/okian/movers/internal/domain/types"
	"github.com/okian/movers/pkg/logger"
	"github.com/okian/movers/pkg/metrics"
)

// DefaultMaxAttempts caps the ranked candidates tried by one auto-match.
const DefaultMaxAttempts = 5

// Jobs is the part of the job store the coordinator uses.
type Jobs interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	ConditionalAssign(ctx context.Context, jobID, workerID string, expected model.Status) (bool, error)
}

// Workers is the part of the worker registry the coordinator uses.
type Workers interface {
	ListAvailable(ctx context.Context, skills []string) ([]model.Worker, error)
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	SetAvailability(ctx context.Context, id string, available bool) error
}

// Repairer queues availability repairs. Settle wraps a direct flag write so
// that repairs queued before it are not applied over it.
type Repairer interface {
	Submit(ctx context.Context, t model.ReconcileTask) bool
	Settle(ctx context.Context, workerID string, write func(context.Context) error) error
}

// Coordinator runs auto-match and self-claim requests.
type Coordinator struct {
	jobs        Jobs
	workers     Workers
	repair      Repairer
	maxAttempts int
	log         logger.Logger
}

// New builds a coordinator.
func New(jobs Jobs, workers Workers, repair Repairer, opts ...Option) *Coordinator {
	c := &Coordinator{
		jobs:        jobs,
		workers:     workers,
		repair:      repair,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("coordinator")
	}
	return c
}

// RequestAutoMatch claims jobID for the best ranked available worker.
//
// Granted and NoEligibleWorker come back with a nil error. Conflict and
// NotFound come back with an error wrapping model.ErrConflict or
// model.ErrNotFound alongside the matching result.
func (c *Coordinator) RequestAutoMatch(ctx context.Context, jobID string) (res types.ClaimResult, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.ModeAutoMatch, start, res, err) }()

	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return c.failed(jobID, err)
	}
	if job.Status != model.StatusOpen {
		return conflict(jobID, 0, job.Status)
	}

	candidates, err := c.workers.ListAvailable(ctx, job.RequiredSkills)
	if err != nil {
		return types.ClaimResult{JobID: jobID}, fmt.Errorf("list candidates for job %s: %w", jobID, err)
	}
	ranked := ranking.Rank(&job, candidates)
	limit := min(len(ranked), c.maxAttempts)

	attempts := 0
	for i, workerID := range ranked[:limit] {
		if i > 0 {
			job, err = c.jobs.GetJob(ctx, jobID)
			if err != nil {
				return c.failed(jobID, err)
			}
			if job.Status != model.StatusOpen {
				return conflict(jobID, attempts, job.Status)
			}
		}
		attempts++

		// The snapshot may be stale; skip workers that went busy since.
		w, err := c.workers.GetWorker(ctx, workerID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			continue
		case err != nil:
			return types.ClaimResult{JobID: jobID}, fmt.Errorf("check candidate %s: %w", workerID, err)
		case !w.Available:
			continue
		}

		ok, err := c.jobs.ConditionalAssign(ctx, jobID, workerID, model.StatusOpen)
		if err != nil {
			return c.failed(jobID, err)
		}
		if ok {
			c.markBusy(ctx, jobID, workerID, metrics.ModeAutoMatch)
			return types.ClaimResult{Outcome: types.OutcomeGranted, JobID: jobID, WorkerID: workerID, Attempts: attempts}, nil
		}
	}

	return types.ClaimResult{Outcome: types.OutcomeNoEligibleWorker, JobID: jobID, Attempts: attempts}, nil
}

// RequestSelfClaim issues exactly one conditional claim of jobID for
// workerID. A rejected claim is a conflict; it is never retried or handed to
// another worker.
func (c *Coordinator) RequestSelfClaim(ctx context.Context, jobID, workerID string) (res types.ClaimResult, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.ModeSelfClaim, start, res, err) }()

	if _, err := c.jobs.GetJob(ctx, jobID); err != nil {
		return c.failed(jobID, err)
	}
	w, err := c.workers.GetWorker(ctx, workerID)
	if err != nil {
		return c.failed(jobID, err)
	}
	if !w.Available {
		return types.ClaimResult{Outcome: types.OutcomeConflict, JobID: jobID, Attempts: 1},
			fmt.Errorf("self-claim job %s: worker %s is not available: %w", jobID, workerID, model.ErrConflict)
	}

	ok, err := c.jobs.ConditionalAssign(ctx, jobID, workerID, model.StatusOpen)
	if err != nil {
		return c.failed(jobID, err)
	}
	if !ok {
		return types.ClaimResult{Outcome: types.OutcomeConflict, JobID: jobID, Attempts: 1},
			fmt.Errorf("self-claim job %s: claim rejected: %w", jobID, model.ErrConflict)
	}

	c.markBusy(ctx, jobID, workerID, metrics.ModeSelfClaim)
	return types.ClaimResult{Outcome: types.OutcomeGranted, JobID: jobID, WorkerID: workerID, Attempts: 1}, nil
}

// markBusy flips the granted worker to unavailable. The claim stands when
// this fails; the flag is handed to the reconciler instead.
func (c *Coordinator) markBusy(ctx context.Context, jobID, workerID, mode string) {
	ctx = context.WithoutCancel(ctx)
	err := c.setAvailability(ctx, workerID, false)
	if err == nil {
		return
	}

	metrics.RecordAvailabilityInconsistency("claim")
	metrics.RecordErrorByComponent("coordinator", "availability_update")
	c.log.Error(ctx, "claim granted but worker availability not updated",
		logger.String("job_id", jobID),
		logger.String("worker_id", workerID),
		logger.String("mode", mode),
		logger.Error(err),
	)
	if c.repair != nil {
		c.repair.Submit(ctx, model.ReconcileTask{WorkerID: workerID, Available: false, JobID: jobID, Stage: "claim"})
	}
}

func (c *Coordinator) setAvailability(ctx context.Context, workerID string, available bool) error {
	write := func(ctx context.Context) error {
		return c.workers.SetAvailability(ctx, workerID, available)
	}
	if c.repair == nil {
		return write(ctx)
	}
	return c.repair.Settle(ctx, workerID, write)
}

func (c *Coordinator) failed(jobID string, err error) (types.ClaimResult, error) {
	if errors.Is(err, model.ErrNotFound) {
		return types.ClaimResult{Outcome: types.OutcomeNotFound, JobID: jobID}, err
	}
	return types.ClaimResult{JobID: jobID}, err
}

func conflict(jobID string, attempts int, status model.Status) (types.ClaimResult, error) {
	return types.ClaimResult{Outcome: types.OutcomeConflict, JobID: jobID, Attempts: attempts},
		fmt.Errorf("job %s is %s: %w", jobID, status, model.ErrConflict)
}

func (c *Coordinator) observe(mode string, start time.Time, res types.ClaimResult, err error) {
	outcome := string(res.Outcome)
	if outcome == "" {
		outcome = "error"
		metrics.RecordErrorByComponent("coordinator", mode)
		c.log.Warn(context.Background(), "claim request failed",
			logger.String("mode", mode),
			logger.String("job_id", res.JobID),
			logger.Error(err),
		)
	}
	metrics.RecordClaim(mode, outcome)
	metrics.RecordClaimLatency(mode, float64(time.Since(start).Microseconds())/1000)
	if mode == metrics.ModeAutoMatch && res.Attempts > 0 {
		metrics.RecordAutoMatchAttempts(res.Attempts)
	}
}
