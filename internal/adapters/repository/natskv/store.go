// Package natskv is a JobStore backed by a NATS JetStream key-value bucket.
//
// Every job is one key. Conditional writes read the entry, check the
// condition, and write back with the read revision; a revision mismatch
// means another writer got there first and the condition is re-evaluated.
package natskv

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/pkg/logger"
)

const (
	backend = repository.BackendNATS

	jobPrefix    = "job."
	ratingPrefix = "rating."

	// maxCASRounds bounds re-reads after revision mismatches. Running out
	// means other writers kept winning, which is a failed condition.
	maxCASRounds = 32
)

// Store implements repository.JobStore.
type Store struct {
	nc  *nats.Conn // nil when the caller owns the connection
	kv  jetstream.KeyValue
	log logger.Logger
	now func() time.Time
}

var _ repository.JobStore = (*Store)(nil)

// Open connects to url and opens (or creates) bucket.
func Open(ctx context.Context, url, bucket string, log logger.Logger) (*Store, error) {
	nc, err := nats.Connect(url,
		nats.Name("movers"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, repository.Unavailable("nats connect", err)
	}
	s, err := New(ctx, nc, bucket, log)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.nc = nc
	return s, nil
}

// New opens (or creates) bucket on an existing connection. Close leaves nc open.
func New(ctx context.Context, nc *nats.Conn, bucket string, log logger.Logger) (*Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, repository.Unavailable("jetstream", err)
	}
	kv, err := ensureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "movers jobs and ratings",
		History:     1,
	}, 3)
	if err != nil {
		return nil, repository.Unavailable("kv bucket "+bucket, err)
	}
	return &Store{kv: kv, log: log, now: time.Now}, nil
}

// Close drains the connection if the store opened it.
func (s *Store) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

// GetJob implements repository.JobStore.
func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	defer repository.ObserveLatency(backend, "get_job", time.Now())

	job, _, err := s.load(ctx, id)
	return job, err
}

// CreateJob implements repository.JobStore.
func (s *Store) CreateJob(ctx context.Context, job model.Job) error {
	defer repository.ObserveLatency(backend, "create_job", time.Now())

	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}
	job.UpdatedAt = job.CreatedAt
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	if _, err := s.kv.Create(ctx, jobKey(job.ID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("job %s: %w", job.ID, model.ErrAlreadyExists)
		}
		return repository.Unavailable("create job", err)
	}
	return nil
}

// ConditionalAssign implements repository.JobStore.
func (s *Store) ConditionalAssign(ctx context.Context, jobID, workerID string, expected model.Status) (bool, error) {
	defer repository.ObserveLatency(backend, "conditional_assign", time.Now())

	return s.compareAndSwap(ctx, jobID, func(job *model.Job) bool {
		if job.Status != expected || job.AssignedWorkerID != "" {
			return false
		}
		job.Status = model.StatusAssigned
		job.AssignedWorkerID = workerID
		return true
	})
}

// SetStatus implements repository.JobStore.
func (s *Store) SetStatus(ctx context.Context, jobID string, next, expected model.Status) (bool, error) {
	defer repository.ObserveLatency(backend, "set_status", time.Now())

	return s.compareAndSwap(ctx, jobID, func(job *model.Job) bool {
		if job.Status != expected {
			return false
		}
		job.Status = next
		if next == model.StatusCancelled {
			job.AssignedWorkerID = ""
		}
		return true
	})
}

// ListJobs implements repository.JobStore.
func (s *Store) ListJobs(ctx context.Context, status model.Status) ([]model.Job, error) {
	defer repository.ObserveLatency(backend, "list_jobs", time.Now())

	keys, err := s.keys(ctx, jobPrefix+">")
	if err != nil {
		return nil, err
	}
	out := make([]model.Job, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if isMissing(err) {
			continue
		}
		if err != nil {
			return nil, repository.Unavailable("list jobs", err)
		}
		var job model.Job
		if err := json.Unmarshal(entry.Value(), &job); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if status == "" || job.Status == status {
			out = append(out, job)
		}
	}
	slices.SortFunc(out, func(a, b model.Job) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Count implements repository.JobStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	keys, err := s.keys(ctx, jobPrefix+">")
	return len(keys), err
}

// CreateRating implements repository.RatingStore. Uniqueness comes from
// the create-only write on the (worker, job) key.
func (s *Store) CreateRating(ctx context.Context, r model.Rating) error {
	defer repository.ObserveLatency(backend, "create_rating", time.Now())

	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode rating: %w", err)
	}
	if _, err := s.kv.Create(ctx, ratingKey(r.WorkerID, r.JobID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("rating for job %s by %s: %w", r.JobID, r.WorkerID, model.ErrConflict)
		}
		return repository.Unavailable("create rating", err)
	}
	return nil
}

// ListRatings implements repository.RatingStore.
func (s *Store) ListRatings(ctx context.Context, workerID string) ([]model.Rating, error) {
	defer repository.ObserveLatency(backend, "list_ratings", time.Now())

	keys, err := s.keys(ctx, ratingPrefix+token(workerID)+".>")
	if err != nil {
		return nil, err
	}
	out := make([]model.Rating, 0, len(keys))
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if isMissing(err) {
			continue
		}
		if err != nil {
			return nil, repository.Unavailable("list ratings", err)
		}
		var r model.Rating
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Rating) int { return cmp.Compare(a.JobID, b.JobID) })
	return out, nil
}

// compareAndSwap applies mutate to the current job and writes it back with
// the read revision. mutate returns false when its condition does not hold.
func (s *Store) compareAndSwap(ctx context.Context, jobID string, mutate func(*model.Job) bool) (bool, error) {
	for round := 0; round < maxCASRounds; round++ {
		job, rev, err := s.load(ctx, jobID)
		if err != nil {
			return false, err
		}
		if !mutate(&job) {
			return false, nil
		}
		job.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(job)
		if err != nil {
			return false, fmt.Errorf("encode job %s: %w", jobID, err)
		}

		_, err = s.kv.Update(ctx, jobKey(jobID), data, rev)
		if err == nil {
			return true, nil
		}
		if !isRevisionMismatch(err) {
			return false, repository.Unavailable("update job", err)
		}
		s.log.Debug(ctx, "revision mismatch, re-reading job",
			logger.String("job_id", jobID), logger.Int("round", round+1))
	}
	return false, nil
}

func (s *Store) load(ctx context.Context, id string) (model.Job, uint64, error) {
	entry, err := s.kv.Get(ctx, jobKey(id))
	if isMissing(err) {
		return model.Job{}, 0, repository.NotFound("job", id)
	}
	if err != nil {
		return model.Job{}, 0, repository.Unavailable("get job", err)
	}
	var job model.Job
	if err := json.Unmarshal(entry.Value(), &job); err != nil {
		return model.Job{}, 0, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, entry.Revision(), nil
}

func (s *Store) keys(ctx context.Context, filter string) ([]string, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, filter)
	if err != nil {
		return nil, repository.Unavailable("list keys", err)
	}
	var keys []string
	for k := range lister.Keys() {
		keys = append(keys, k)
	}
	return keys, nil
}

// token makes an arbitrary id safe for use as one key segment.
func token(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func jobKey(id string) string { return jobPrefix + token(id) }

func ratingKey(workerID, jobID string) string {
	return ratingPrefix + token(workerID) + "." + token(jobID)
}

func isMissing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
