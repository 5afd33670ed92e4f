// Package reconcile repairs worker availability flags that a committed job
// transition failed to update.
//
// Pending repairs are keyed by worker id. Submitting again for a worker with
// a repair already queued only replaces the desired flag; the queued task
// applies whichever flag is latest when it runs.
//
// Direct flag writes go through Settle. Settle and every repair attempt
// hold the same per-worker lock, and a successful direct write bumps the
// worker's generation, so a repair submitted before it is dropped rather
// than applied over the newer flag.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/movers/internal/domain/dedupe"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/retry"
	"github.com/okian/movers/pkg/logger"
	"github.com/okian/movers/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// Result labels for the reconcile metric.
const (
	ResultRepaired = "repaired"
	ResultFailed   = "failed"
	ResultDropped  = "dropped"
	ResultMerged   = "merged"
	ResultStale    = "stale"
)

var errStale = errors.New("superseded by a direct write")

// Availability is the registry write the reconciler retries.
type Availability interface {
	SetAvailability(ctx context.Context, workerID string, available bool) error
}

// Enqueuer accepts tasks without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, t model.ReconcileTask) bool
}

// Reconciler queues and applies availability repairs.
type Reconciler struct {
	registry Availability
	queue    Enqueuer
	pending  dedupe.Deduper
	desired  *xsync.Map[string, model.ReconcileTask]
	writes   *xsync.Map[string, *writeState]
	policy   retry.Policy
	log      logger.Logger
	now      func() time.Time
}

// New builds a reconciler. The queue's consumers must call Handle.
func New(registry Availability, q Enqueuer, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry: registry,
		queue:    q,
		desired:  xsync.NewMap[string, model.ReconcileTask](),
		writes:   xsync.NewMap[string, *writeState](),
		policy: retry.Policy{
			Attempts: 8,
			Base:     50 * time.Millisecond,
			Cap:      5 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pending == nil {
		r.pending = dedupe.NewInMemoryDeduper()
	}
	if r.log == nil {
		r.log = logger.Get().Named("reconciler")
	}
	r.policy.Retryable = func(err error) bool {
		return !errors.Is(err, model.ErrNotFound) && !errors.Is(err, errStale)
	}
	r.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RecordStoreRetry("reconcile_availability")
	}
	return r
}

// Submit records the desired flag for t.WorkerID and queues a repair unless
// one is already pending. It returns false when the queue rejected the
// task; the inconsistency then stays unrepaired.
func (r *Reconciler) Submit(ctx context.Context, t model.ReconcileTask) bool {
	if t.QueuedAt.IsZero() {
		t.QueuedAt = r.now()
	}
	t.Generation = r.generation(t.WorkerID)
	r.desired.Store(t.WorkerID, t)

	if r.pending.SeenAndRecord(ctx, t.Key()) {
		metrics.RecordReconcileResult(ResultMerged)
		return true
	}
	if r.queue.Enqueue(ctx, t) {
		return true
	}

	r.pending.Unrecord(ctx, t.Key())
	r.desired.Compute(t.WorkerID, func(old model.ReconcileTask, loaded bool) (model.ReconcileTask, xsync.ComputeOp) {
		if loaded && old.QueuedAt.Equal(t.QueuedAt) && old.JobID == t.JobID {
			return old, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
	metrics.RecordReconcileResult(ResultDropped)
	r.log.Error(ctx, "reconcile queue rejected task; availability left inconsistent",
		logger.String("worker_id", t.WorkerID),
		logger.String("job_id", t.JobID),
		logger.String("stage", t.Stage),
		logger.Bool("available", t.Available),
	)
	return false
}

// Settle runs write, a direct availability write by the caller, under the
// worker's write lock. When write succeeds the worker's desired repair is
// discarded and its generation bumped, so any repair already queued for the
// worker is dropped when it runs. The write error is returned unchanged.
func (r *Reconciler) Settle(ctx context.Context, workerID string, write func(context.Context) error) error {
	ws := r.state(workerID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := write(ctx); err != nil {
		return err
	}
	ws.gen++
	r.desired.Delete(workerID)
	return nil
}

// Handle applies the latest desired flag for t.WorkerID, retrying with
// jittered backoff.
func (r *Reconciler) Handle(ctx context.Context, t model.ReconcileTask) error {
	// Release the key first so a submit racing with this run queues again
	// instead of being merged into a task that already read its flag.
	r.pending.Unrecord(ctx, t.Key())
	if latest, ok := r.desired.LoadAndDelete(t.WorkerID); ok {
		t = latest
	}

	attempts := 0
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		attempts++
		return r.apply(ctx, t)
	})
	if errors.Is(err, errStale) {
		metrics.RecordReconcileResult(ResultStale)
		r.log.Debug(ctx, "repair superseded by a direct availability write",
			logger.String("worker_id", t.WorkerID),
			logger.String("job_id", t.JobID),
			logger.String("stage", t.Stage),
		)
		return nil
	}
	if err != nil {
		metrics.RecordReconcileResult(ResultFailed)
		return fmt.Errorf("reconcile worker %s after %d attempts: %w", t.WorkerID, attempts, err)
	}

	metrics.RecordReconcileResult(ResultRepaired)
	r.log.Info(ctx, "worker availability reconciled",
		logger.String("worker_id", t.WorkerID),
		logger.String("job_id", t.JobID),
		logger.String("stage", t.Stage),
		logger.Bool("available", t.Available),
		logger.Int("attempts", attempts),
		logger.Duration("lag", r.now().Sub(t.QueuedAt)),
	)
	return nil
}

func (r *Reconciler) apply(ctx context.Context, t model.ReconcileTask) error {
	ws := r.state(t.WorkerID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.gen != t.Generation {
		return errStale
	}
	return r.registry.SetAvailability(ctx, t.WorkerID, t.Available)
}

// writeState serialises availability writes for one worker.
type writeState struct {
	mu  sync.Mutex
	gen uint64
}

func (r *Reconciler) state(workerID string) *writeState {
	ws, _ := r.writes.LoadOrStore(workerID, &writeState{})
	return ws
}

func (r *Reconciler) generation(workerID string) uint64 {
	ws := r.state(workerID)
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.gen
}

// Pending returns the number of workers with a queued repair.
func (r *Reconciler) Pending() int64 {
	return r.pending.Size()
}
