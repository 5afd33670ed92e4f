package repository

import (
	"context"
	"math"
	rand "math/rand/v2"
	"sync"
	"time"

	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/pkg/metrics"
)

// Treap-indexed, in-memory WorkerRegistry.
//
// Only available workers are kept in the index. Ordering: score DESC, then
// worker id ASC, so an in-order walk yields candidates already ranked.

// scoreScale controls fixed-point scaling from float64.
const scoreScale = 1_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*scoreScale >= math.MaxInt64:
		return scoreFP(math.MaxInt64)
	case x*scoreScale <= math.MinInt64:
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(x * scoreScale))
}

// treap node
type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
}

// less returns true if (aScore, aID) ranks before (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore // higher score ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64()} //nolint:gosec // heap priority, not security
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	return n
}

// walk visits nodes in rank order until visit returns false.
func walk(n *node, visit func(*node) bool) bool {
	if n == nil {
		return true
	}
	return walk(n.left, visit) && visit(n) && walk(n.right, visit)
}

// TreapRegistry is an in-memory WorkerRegistry.
type TreapRegistry struct {
	mu                    sync.RWMutex
	root                  *node
	byID                  map[string]model.Worker
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ WorkerRegistry = (*TreapRegistry)(nil)

// NewTreapRegistry constructs a registry and starts its metrics updater,
// which runs until ctx ends or Close is called.
func NewTreapRegistry(ctx context.Context, opts ...RegistryOption) *TreapRegistry {
	r := &TreapRegistry{
		byID:                  make(map[string]model.Worker),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startMetricsUpdater(ctx)
	return r
}

// Close stops the background metrics updater.
func (r *TreapRegistry) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	return nil
}

// ListAvailable implements WorkerRegistry. Results come back ranked.
func (r *TreapRegistry) ListAvailable(_ context.Context, skills []string) ([]model.Worker, error) {
	defer ObserveLatency(BackendMemory, "list_available", time.Now())

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Worker, 0)
	walk(r.root, func(n *node) bool {
		w := r.byID[n.id]
		if w.HasSkills(skills) {
			out = append(out, w.Clone())
		}
		return true
	})
	return out, nil
}

// SetAvailability implements WorkerRegistry.
func (r *TreapRegistry) SetAvailability(_ context.Context, id string, available bool) error {
	defer ObserveLatency(BackendMemory, "set_availability", time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[id]
	if !ok {
		return NotFound("worker", id)
	}
	if w.Available == available {
		return nil
	}
	fp := toFixedPoint(w.PerformanceScore)
	if available {
		r.root = insert(r.root, id, fp)
	} else {
		r.root = deleteNode(r.root, id, fp)
	}
	w.Available = available
	r.byID[id] = w
	return nil
}

// GetPerformanceScore implements WorkerRegistry.
func (r *TreapRegistry) GetPerformanceScore(_ context.Context, id string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok {
		return 0, NotFound("worker", id)
	}
	return w.PerformanceScore, nil
}

// SetPerformanceScore implements WorkerRegistry.
func (r *TreapRegistry) SetPerformanceScore(_ context.Context, id string, score float64) error {
	defer ObserveLatency(BackendMemory, "set_performance_score", time.Now())

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.byID[id]
	if !ok {
		return NotFound("worker", id)
	}
	r.reindex(w, score)
	w.PerformanceScore = score
	r.byID[id] = w
	return nil
}

// GetWorker implements WorkerRegistry.
func (r *TreapRegistry) GetWorker(_ context.Context, id string) (model.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.byID[id]
	if !ok {
		return model.Worker{}, NotFound("worker", id)
	}
	return w.Clone(), nil
}

// UpsertWorker implements WorkerRegistry. A new worker starts with the score
// it was registered with.
func (r *TreapRegistry) UpsertWorker(_ context.Context, w model.Worker) (model.Worker, error) {
	defer ObserveLatency(BackendMemory, "upsert_worker", time.Now())

	w = w.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byID[w.ID]; ok {
		w.PerformanceScore = old.PerformanceScore
		if old.Available {
			r.root = deleteNode(r.root, old.ID, toFixedPoint(old.PerformanceScore))
		}
	}
	if w.Available {
		r.root = insert(r.root, w.ID, toFixedPoint(w.PerformanceScore))
	}
	r.byID[w.ID] = w
	return w.Clone(), nil
}

// Count implements WorkerRegistry.
func (r *TreapRegistry) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// reindex moves an available worker to its new score position. Caller holds r.mu.
func (r *TreapRegistry) reindex(w model.Worker, score float64) {
	if !w.Available {
		return
	}
	r.root = deleteNode(r.root, w.ID, toFixedPoint(w.PerformanceScore))
	r.root = insert(r.root, w.ID, toFixedPoint(score))
}

func (r *TreapRegistry) startMetricsUpdater(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopChan:
				return
			case <-ticker.C:
				n, _ := r.Count(ctx)
				metrics.UpdateWorkersTotal(n)
			}
		}
	}()
}
