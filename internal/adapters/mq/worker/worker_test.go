package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/movers/internal/adapters/mq/queue"
	worker "github.com/okian/movers/internal/adapters/mq/worker"
	"github.com/okian/movers/internal/domain/model"
	logging "github.com/okian/movers/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// recorder is a Handler that remembers every task it saw.
type recorder struct {
	mu    sync.Mutex
	seen  []model.ReconcileTask
	fail  map[string]error
	delay time.Duration
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) Handle(_ context.Context, t model.ReconcileTask) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t)
	return r.fail[t.WorkerID]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker draining a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		h := newRecorder()
		w := worker.NewInMemoryWorker(q, h, worker.WithName("test"), worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When tasks are enqueued", func() {
			q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W1", Available: true})
			q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W2", Available: false})

			convey.Convey("Then the handler should see each of them", func() {
				convey.So(waitFor(func() bool { return h.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the handler fails", func() {
			h.fail["W1"] = errors.New("registry down")
			q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W1"})
			q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W2"})

			convey.Convey("Then the worker should keep going", func() {
				convey.So(waitFor(func() bool { return h.count() == 2 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then it should stop cleanly and tolerate a second call", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		h := newRecorder()
		h.delay = time.Millisecond
		p := worker.NewPool(4, q, h, worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)

		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many tasks are enqueued", func() {
			for i := 0; i < 40; i++ {
				q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W", Attempt: i})
			}

			convey.Convey("Then all should be processed", func() {
				convey.So(waitFor(func() bool { return h.count() == 40 }), convey.ShouldBeTrue)
			})

			convey.Convey("And shutdown should close the queue", func() {
				convey.So(waitFor(func() bool { return h.count() == 40 }), convey.ShouldBeTrue)
				convey.So(p.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When created with a non-positive count", func() {
			p2 := worker.NewPool(0, queue.NewInMemoryQueue(), worker.HandlerFunc(func(context.Context, model.ReconcileTask) error { return nil }), worker.WithLogger(logging.Nop()))

			convey.Convey("Then it should size itself to the CPUs", func() {
				convey.So(p2.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestTaskTimeout(t *testing.T) {
	convey.Convey("Given a worker with a task timeout", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		deadlines := make(chan bool, 1)
		h := worker.HandlerFunc(func(ctx context.Context, _ model.ReconcileTask) error {
			<-ctx.Done()
			_, ok := ctx.Deadline()
			deadlines <- ok
			return ctx.Err()
		})
		w := worker.NewInMemoryWorker(q, h, worker.WithLogger(logging.Nop()), worker.WithTaskTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a handler blocks on its context", func() {
			q.Enqueue(ctx, model.ReconcileTask{WorkerID: "W1"})

			convey.Convey("Then the call is cut off at the deadline", func() {
				select {
				case ok := <-deadlines:
					convey.So(ok, convey.ShouldBeTrue)
				case <-time.After(2 * time.Second):
					convey.So("handler was never cancelled", convey.ShouldBeEmpty)
				}
			})
		})
	})
}
