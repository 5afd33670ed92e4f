// Package postgres is a JobStore backed by PostgreSQL. Claims and status
// moves are single conditional UPDATE statements; the row's status column
// is the only lock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/pkg/logger"
)

const (
	backend        = repository.BackendPostgres
	uniqueViolated = "23505"
)

const jobColumns = `id, size, price, status, assigned_worker_id, required_skills,
	relisted_from, attributes, created_at, updated_at`

const conditionalAssignSQL = `
UPDATE jobs
SET
    status             = 'assigned',
    assigned_worker_id = $2,
    updated_at         = NOW()
WHERE id = $1
  AND status = $3
  AND assigned_worker_id IS NULL`

// Cancelling clears the assignee in the same statement so the
// assignee/status check constraint holds on every row version.
const setStatusSQL = `
UPDATE jobs
SET
    status             = $2,
    assigned_worker_id = CASE WHEN $2 = 'cancelled' THEN NULL ELSE assigned_worker_id END,
    updated_at         = NOW()
WHERE id = $1
  AND status = $3`

// Store implements repository.JobStore.
type Store struct {
	pool *pgxpool.Pool
	log  logger.Logger
}

var _ repository.JobStore = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, repository.Unavailable("postgres open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, repository.Unavailable("postgres ping", err)
	}
	if err := Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return New(pool, log), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool, log logger.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// GetJob implements repository.JobStore.
func (s *Store) GetJob(ctx context.Context, id string) (model.Job, error) {
	defer repository.ObserveLatency(backend, "get_job", time.Now())

	row := s.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Job{}, repository.NotFound("job", id)
	}
	if err != nil {
		return model.Job{}, repository.Unavailable("get job", err)
	}
	return job, nil
}

// CreateJob implements repository.JobStore.
func (s *Store) CreateJob(ctx context.Context, job model.Job) error {
	defer repository.ObserveLatency(backend, "create_job", time.Now())

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	skills := job.RequiredSkills
	if skills == nil {
		skills = []string{}
	}
	attrs := job.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		job.ID, string(job.Size), job.Price, string(job.Status), nullable(job.AssignedWorkerID),
		skills, nullable(job.RelistedFrom), attrs, job.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("job %s: %w", job.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return repository.Unavailable("create job", err)
	}
	return nil
}

// ConditionalAssign implements repository.JobStore.
func (s *Store) ConditionalAssign(ctx context.Context, jobID, workerID string, expected model.Status) (bool, error) {
	defer repository.ObserveLatency(backend, "conditional_assign", time.Now())

	tag, err := s.pool.Exec(ctx, conditionalAssignSQL, jobID, workerID, string(expected))
	if err != nil {
		return false, repository.Unavailable("conditional assign", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, jobID)
}

// SetStatus implements repository.JobStore.
func (s *Store) SetStatus(ctx context.Context, jobID string, next, expected model.Status) (bool, error) {
	defer repository.ObserveLatency(backend, "set_status", time.Now())

	tag, err := s.pool.Exec(ctx, setStatusSQL, jobID, string(next), string(expected))
	if err != nil {
		return false, repository.Unavailable("set status", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, s.mustExist(ctx, jobID)
}

// ListJobs implements repository.JobStore.
func (s *Store) ListJobs(ctx context.Context, status model.Status) ([]model.Job, error) {
	defer repository.ObserveLatency(backend, "list_jobs", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE $1 = '' OR status = $1
		ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, repository.Unavailable("list jobs", err)
	}
	defer rows.Close()

	out := make([]model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, repository.Unavailable("scan job", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, repository.Unavailable("list jobs", err)
	}
	return out, nil
}

// Count implements repository.JobStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs").Scan(&n); err != nil {
		return 0, repository.Unavailable("count jobs", err)
	}
	return n, nil
}

// CreateRating implements repository.RatingStore.
func (s *Store) CreateRating(ctx context.Context, r model.Rating) error {
	defer repository.ObserveLatency(backend, "create_rating", time.Now())

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ratings (job_id, worker_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.JobID, r.WorkerID, r.Score, r.Comment, r.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("rating for job %s by %s: %w", r.JobID, r.WorkerID, model.ErrConflict)
	}
	if err != nil {
		return repository.Unavailable("create rating", err)
	}
	return nil
}

// ListRatings implements repository.RatingStore.
func (s *Store) ListRatings(ctx context.Context, workerID string) ([]model.Rating, error) {
	defer repository.ObserveLatency(backend, "list_ratings", time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT job_id, worker_id, score, comment, created_at
		FROM ratings WHERE worker_id = $1 ORDER BY job_id`, workerID)
	if err != nil {
		return nil, repository.Unavailable("list ratings", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Rating, error) {
		var r model.Rating
		err := row.Scan(&r.JobID, &r.WorkerID, &r.Score, &r.Comment, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, repository.Unavailable("list ratings", err)
	}
	return out, nil
}

// mustExist turns a zero-row conditional update into NotFound or a failed
// condition.
func (s *Store) mustExist(ctx context.Context, jobID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)", jobID).Scan(&exists)
	if err != nil {
		return repository.Unavailable("check job", err)
	}
	if !exists {
		return repository.NotFound("job", jobID)
	}
	return nil
}

// scanJob populates a Job from a row selected with jobColumns.
func scanJob(row pgx.Row) (model.Job, error) {
	var (
		job               model.Job
		size, status      string
		assignee, relistd *string
	)
	err := row.Scan(
		&job.ID,
		&size,
		&job.Price,
		&status,
		&assignee,
		&job.RequiredSkills,
		&relistd,
		&job.Attributes,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return model.Job{}, err
	}
	job.Size = model.Size(size)
	job.Status = model.Status(status)
	if assignee != nil {
		job.AssignedWorkerID = *assignee
	}
	if relistd != nil {
		job.RelistedFrom = *relistd
	}
	if len(job.RequiredSkills) == 0 {
		job.RequiredSkills = nil
	}
	if len(job.Attributes) == 0 {
		job.Attributes = nil
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolated
}

// Pool exposes the underlying pool for migrations and maintenance.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Truncate removes every job and rating.
func (s *Store) Truncate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE jobs, ratings"); err != nil {
		return repository.Unavailable("truncate", err)
	}
	return nil
}
