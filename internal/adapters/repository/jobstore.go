package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/movers/internal/domain/model"
	"github.com/puzpuzpuz/xsync/v4"
)

// slot guards one job. Conditional writes lock only the slot of the job
// they touch, so claims on different jobs never contend.
type slot struct {
	mu  sync.Mutex
	job model.Job
}

// MemoryJobStore is an in-memory JobStore.
type MemoryJobStore struct {
	jobs    *xsync.Map[string, *slot]
	ratings *xsync.Map[ratingKey, model.Rating]
	now     Clock
}

type ratingKey struct {
	jobID    string
	workerID string
}

var _ JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore constructs an empty store.
func NewMemoryJobStore(opts ...JobStoreOption) *MemoryJobStore {
	s := &MemoryJobStore{
		jobs:    xsync.NewMap[string, *slot](),
		ratings: xsync.NewMap[ratingKey, model.Rating](),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetJob implements JobStore.
func (s *MemoryJobStore) GetJob(_ context.Context, id string) (model.Job, error) {
	defer ObserveLatency(BackendMemory, "get_job", time.Now())

	sl, ok := s.jobs.Load(id)
	if !ok {
		return model.Job{}, NotFound("job", id)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.job.Clone(), nil
}

// CreateJob implements JobStore.
func (s *MemoryJobStore) CreateJob(_ context.Context, job model.Job) error {
	defer ObserveLatency(BackendMemory, "create_job", time.Now())

	job = job.Clone()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	if _, loaded := s.jobs.LoadOrStore(job.ID, &slot{job: job}); loaded {
		return model.ErrAlreadyExists
	}
	return nil
}

// ConditionalAssign implements JobStore.
func (s *MemoryJobStore) ConditionalAssign(_ context.Context, jobID, workerID string, expected model.Status) (bool, error) {
	defer ObserveLatency(BackendMemory, "conditional_assign", time.Now())

	sl, ok := s.jobs.Load(jobID)
	if !ok {
		return false, NotFound("job", jobID)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.job.Status != expected || sl.job.AssignedWorkerID != "" {
		return false, nil
	}
	sl.job.Status = model.StatusAssigned
	sl.job.AssignedWorkerID = workerID
	sl.job.UpdatedAt = s.now().UTC()
	return true, nil
}

// SetStatus implements JobStore.
func (s *MemoryJobStore) SetStatus(_ context.Context, jobID string, next, expected model.Status) (bool, error) {
	defer ObserveLatency(BackendMemory, "set_status", time.Now())

	sl, ok := s.jobs.Load(jobID)
	if !ok {
		return false, NotFound("job", jobID)
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.job.Status != expected {
		return false, nil
	}
	sl.job.Status = next
	if next == model.StatusCancelled {
		sl.job.AssignedWorkerID = ""
	}
	sl.job.UpdatedAt = s.now().UTC()
	return true, nil
}

// ListJobs implements JobStore.
func (s *MemoryJobStore) ListJobs(_ context.Context, status model.Status) ([]model.Job, error) {
	defer ObserveLatency(BackendMemory, "list_jobs", time.Now())

	out := make([]model.Job, 0, s.jobs.Size())
	s.jobs.Range(func(_ string, sl *slot) bool {
		sl.mu.Lock()
		if status == "" || sl.job.Status == status {
			out = append(out, sl.job.Clone())
		}
		sl.mu.Unlock()
		return true
	})
	slices.SortFunc(out, func(a, b model.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Count implements JobStore.
func (s *MemoryJobStore) Count(context.Context) (int, error) {
	return s.jobs.Size(), nil
}

// CreateRating implements RatingStore.
func (s *MemoryJobStore) CreateRating(_ context.Context, r model.Rating) error {
	defer ObserveLatency(BackendMemory, "create_rating", time.Now())

	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	if _, loaded := s.ratings.LoadOrStore(ratingKey{jobID: r.JobID, workerID: r.WorkerID}, r); loaded {
		return model.ErrConflict
	}
	return nil
}

// ListRatings implements RatingStore.
func (s *MemoryJobStore) ListRatings(_ context.Context, workerID string) ([]model.Rating, error) {
	defer ObserveLatency(BackendMemory, "list_ratings", time.Now())

	var out []model.Rating
	s.ratings.Range(func(k ratingKey, r model.Rating) bool {
		if k.workerID == workerID {
			out = append(out, r)
		}
		return true
	})
	slices.SortFunc(out, func(a, b model.Rating) int { return cmp.Compare(a.JobID, b.JobID) })
	return out, nil
}
