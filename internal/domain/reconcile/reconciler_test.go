package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/movers/internal/adapters/mq/queue"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/reconcile"
	"github.com/okian/movers/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyRegistry fails the first failures calls, then records writes.
type flakyRegistry struct {
	mu       sync.Mutex
	failures int
	calls    int
	state    map[string]bool
	err      error
}

func (f *flakyRegistry) SetAvailability(_ context.Context, id string, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return model.ErrStoreUnavailable
	}
	if f.state == nil {
		f.state = make(map[string]bool)
	}
	f.state[id] = available
	return nil
}

func newReconciler(reg reconcile.Availability, q reconcile.Enqueuer) *reconcile.Reconciler {
	return reconcile.New(reg, q,
		reconcile.WithLogger(logger.Nop()),
		reconcile.WithRetry(4, time.Millisecond, 2*time.Millisecond),
	)
}

func drain(q *queue.InMemoryQueue) []model.ReconcileTask {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var out []model.ReconcileTask
	ch := q.Dequeue(ctx)
	for t := range ch {
		out = append(out, t)
	}
	return out
}

func TestReconciler(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reconciler over a bounded queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		reg := &flakyRegistry{failures: 2}
		r := newReconciler(reg, q)

		Convey("When the same worker is submitted twice", func() {
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W1", Available: false, JobID: "J1", Stage: "claim"}), ShouldBeTrue)
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W1", Available: true, JobID: "J1", Stage: "complete"}), ShouldBeTrue)

			Convey("Then only one task should be queued", func() {
				So(q.Len(ctx), ShouldEqual, 1)
				So(r.Pending(), ShouldEqual, 1)
			})

			Convey("And handling it should apply the latest flag after retries", func() {
				tasks := drain(q)
				So(len(tasks), ShouldEqual, 1)
				So(r.Handle(ctx, tasks[0]), ShouldBeNil)
				So(reg.calls, ShouldEqual, 3)
				So(reg.state["W1"], ShouldBeTrue)
				So(r.Pending(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W1"}), ShouldBeTrue)
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W2"}), ShouldBeTrue)
			ok := r.Submit(ctx, model.ReconcileTask{WorkerID: "W3", JobID: "J3"})

			Convey("Then the task should be dropped and the key released", func() {
				So(ok, ShouldBeFalse)
				So(r.Pending(), ShouldEqual, 2)
			})
		})

		Convey("When the registry keeps failing", func() {
			reg.failures = 100
			err := r.Handle(ctx, model.ReconcileTask{WorkerID: "W1", Available: true})

			Convey("Then it should give up after the attempt limit", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, model.ErrStoreUnavailable), ShouldBeTrue)
				So(reg.calls, ShouldEqual, 4)
			})
		})

		Convey("When the worker is unknown", func() {
			reg.failures = 100
			reg.err = model.ErrNotFound
			err := r.Handle(ctx, model.ReconcileTask{WorkerID: "ghost", Available: true})

			Convey("Then it should not retry", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(reg.calls, ShouldEqual, 1)
			})
		})

		Convey("When a task is handled and the worker drifts again", func() {
			reg.failures = 0
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W1", Available: false}), ShouldBeTrue)
			first := drain(q)
			So(r.Handle(ctx, first[0]), ShouldBeNil)
			So(r.Submit(ctx, model.ReconcileTask{WorkerID: "W1", Available: true}), ShouldBeTrue)

			Convey("Then a fresh task should be queued", func() {
				So(q.Len(ctx), ShouldEqual, 1)
			})
		})
	})
}
