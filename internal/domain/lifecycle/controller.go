// Package lifecycle moves assigned jobs through their remaining states and
// turns customer ratings into worker performance scores.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/scoring"
	"github.com/okian/movers/pkg/logger"
	"github.com/okian/movers/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// Transition and rating result labels.
const (
	resultOK        = "ok"
	resultInvalid   = "invalid"
	resultConflict  = "conflict"
	resultError     = "error"
	ratingAccepted  = "accepted"
	ratingDuplicate = "duplicate"
	ratingRejected  = "rejected"
)

// transitions lists the moves AdvanceStatus accepts. open -> assigned is
// owned by the assignment coordinator.
var transitions = map[model.Status][]model.Status{
	model.StatusAssigned:   {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
}

// relistNamespace seeds relisted job ids so a job can be relisted once.
var relistNamespace = uuid.MustParse("6f0c7a52-3c1e-4d0b-9a57-0d2f1b8e4c11")

// Allowed reports whether AdvanceStatus accepts from -> to.
func Allowed(from, to model.Status) bool {
	return slices.Contains(transitions[from], to)
}

// RelistID returns the id a relist of jobID creates.
func RelistID(jobID string) string {
	return uuid.NewSHA1(relistNamespace, []byte(jobID)).String()
}

// Jobs is the part of the job store the controller uses.
type Jobs interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	CreateJob(ctx context.Context, job model.Job) error
	SetStatus(ctx context.Context, jobID string, next, expected model.Status) (bool, error)
	CreateRating(ctx context.Context, r model.Rating) error
	ListRatings(ctx context.Context, workerID string) ([]model.Rating, error)
}

// Workers is the part of the worker registry the controller uses.
type Workers interface {
	SetAvailability(ctx context.Context, id string, available bool) error
	SetPerformanceScore(ctx context.Context, id string, score float64) error
}

// Repairer queues availability repairs and fences direct flag writes
// against them.
type Repairer interface {
	Submit(ctx context.Context, t model.ReconcileTask) bool
	Settle(ctx context.Context, workerID string, write func(context.Context) error) error
}

// Controller owns post-assignment transitions, relisting and ratings.
type Controller struct {
	jobs    Jobs
	workers Workers
	repair  Repairer
	scorer  scoring.Scorer
	log     logger.Logger
	now     func() time.Time

	// scoreLocks serialises score recomputation per worker so the last
	// write is always computed from every stored rating.
	scoreLocks *xsync.Map[string, *sync.Mutex]
}

// New builds a controller.
func New(jobs Jobs, workers Workers, repair Repairer, opts ...Option) *Controller {
	c := &Controller{
		jobs:    jobs,
		workers: workers,
		repair:  repair,
		now:     time.Now,

		scoreLocks: xsync.NewMap[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scorer == nil {
		c.scorer = scoring.NewMeanScorer()
	}
	if c.log == nil {
		c.log = logger.Get().Named("lifecycle")
	}
	return c
}

// AdvanceStatus moves jobID to next with a conditional write against the
// status it read. Completing or cancelling frees the assigned worker.
func (c *Controller) AdvanceStatus(ctx context.Context, jobID string, next model.Status) (model.Job, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	from := job.Status
	if !Allowed(from, next) {
		metrics.RecordTransition(string(from), string(next), resultInvalid)
		return model.Job{}, fmt.Errorf("job %s: %s -> %s: %w", jobID, from, next, model.ErrInvalidTransition)
	}

	ok, err := c.jobs.SetStatus(ctx, jobID, next, from)
	if err != nil {
		metrics.RecordTransition(string(from), string(next), resultError)
		return model.Job{}, err
	}
	if !ok {
		metrics.RecordTransition(string(from), string(next), resultConflict)
		return model.Job{}, fmt.Errorf("job %s changed while moving %s -> %s: %w", jobID, from, next, model.ErrConflict)
	}
	metrics.RecordTransition(string(from), string(next), resultOK)

	worker := job.AssignedWorkerID
	job.Status = next
	job.UpdatedAt = c.now().UTC()
	if next == model.StatusCancelled {
		job.AssignedWorkerID = ""
	}

	switch next {
	case model.StatusCompleted:
		c.release(ctx, jobID, worker, "complete")
	case model.StatusCancelled:
		c.release(ctx, jobID, worker, "cancel")
	}

	c.log.Info(ctx, "job status advanced",
		logger.String("job_id", jobID),
		logger.String("from", string(from)),
		logger.String("to", string(next)),
		logger.String("worker_id", worker),
	)
	return job, nil
}

// Relist opens a new job copying a cancelled one. The cancelled job stays
// terminal. A job can be relisted once; later calls conflict.
func (c *Controller) Relist(ctx context.Context, jobID string) (model.Job, error) {
	old, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, err
	}
	if old.Status != model.StatusCancelled {
		return model.Job{}, fmt.Errorf("relist job %s in status %s: %w", jobID, old.Status, model.ErrInvalidTransition)
	}

	now := c.now().UTC()
	job := model.Job{
		ID:             RelistID(old.ID),
		Size:           old.Size,
		Price:          old.Price,
		Status:         model.StatusOpen,
		RequiredSkills: old.RequiredSkills,
		Attributes:     old.Attributes,
		RelistedFrom:   old.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return model.Job{}, fmt.Errorf("job %s already relisted as %s: %w", jobID, job.ID, model.ErrConflict)
		}
		return model.Job{}, err
	}

	c.log.Info(ctx, "job relisted",
		logger.String("job_id", job.ID),
		logger.String("relisted_from", jobID),
	)
	return job, nil
}

// SubmitRating stores a rating for the assignee of a completed job and
// recomputes the worker's performance score from all their ratings.
//
// The rating is immutable once stored. A failed score write is logged and
// leaves the previous score in place; the next accepted rating for the
// worker recomputes it from scratch.
func (c *Controller) SubmitRating(ctx context.Context, r model.Rating) (model.Rating, error) {
	job, err := c.jobs.GetJob(ctx, r.JobID)
	if err != nil {
		return model.Rating{}, err
	}
	switch {
	case job.Status != model.StatusCompleted:
		metrics.RecordRating(ratingRejected)
		return model.Rating{}, fmt.Errorf("rate job %s in status %s: %w", r.JobID, job.Status, model.ErrInvalidState)
	case job.AssignedWorkerID != r.WorkerID:
		metrics.RecordRating(ratingRejected)
		return model.Rating{}, fmt.Errorf("worker %s is not the assignee of job %s: %w", r.WorkerID, r.JobID, model.ErrInvalidState)
	}
	if err := r.Validate(); err != nil {
		metrics.RecordRating(ratingRejected)
		return model.Rating{}, err
	}

	r.CreatedAt = c.now().UTC()
	if err := c.jobs.CreateRating(ctx, r); err != nil {
		if errors.Is(err, model.ErrConflict) {
			metrics.RecordRating(ratingDuplicate)
			return model.Rating{}, fmt.Errorf("job %s already rated for worker %s: %w", r.JobID, r.WorkerID, err)
		}
		return model.Rating{}, err
	}
	metrics.RecordRating(ratingAccepted)

	if err := c.updateScore(ctx, r.WorkerID); err != nil {
		metrics.RecordErrorByComponent("lifecycle", "score_update")
		c.log.Error(ctx, "rating stored but performance score not updated",
			logger.String("job_id", r.JobID),
			logger.String("worker_id", r.WorkerID),
			logger.Error(err),
		)
	}
	return r, nil
}

func (c *Controller) updateScore(ctx context.Context, workerID string) error {
	mu, _ := c.scoreLocks.LoadOrStore(workerID, &sync.Mutex{})
	mu.Lock()
	defer mu.Unlock()

	ratings, err := c.jobs.ListRatings(ctx, workerID)
	if err != nil {
		return fmt.Errorf("list ratings: %w", err)
	}
	scores := make([]int, len(ratings))
	for i, r := range ratings {
		scores[i] = r.Score
	}

	res, err := c.scorer.Score(ctx, scoring.Input{WorkerID: workerID, Scores: scores})
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if err := c.workers.SetPerformanceScore(ctx, workerID, res.Score); err != nil {
		return fmt.Errorf("set performance score: %w", err)
	}

	metrics.RecordScoreUpdate()
	c.log.Debug(ctx, "performance score updated",
		logger.String("worker_id", workerID),
		logger.Float64("score", res.Score),
		logger.Int("ratings", res.Count),
	)
	return nil
}

// release makes the worker available again after the job left their hands.
// The transition stands when this fails; the flag goes to the reconciler.
func (c *Controller) release(ctx context.Context, jobID, workerID, stage string) {
	if workerID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	write := func(ctx context.Context) error {
		return c.workers.SetAvailability(ctx, workerID, true)
	}
	var err error
	if c.repair != nil {
		err = c.repair.Settle(ctx, workerID, write)
	} else {
		err = write(ctx)
	}
	if err == nil {
		return
	}

	metrics.RecordAvailabilityInconsistency(stage)
	metrics.RecordErrorByComponent("lifecycle", "availability_update")
	c.log.Error(ctx, "job transition committed but worker availability not restored",
		logger.String("job_id", jobID),
		logger.String("worker_id", workerID),
		logger.String("stage", stage),
		logger.Error(err),
	)
	if c.repair != nil {
		c.repair.Submit(ctx, model.ReconcileTask{WorkerID: workerID, Available: true, JobID: jobID, Stage: stage})
	}
}
