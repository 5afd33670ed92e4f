package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/adapters/repository/storetest"
	"github.com/okian/movers/internal/domain/lifecycle"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type repairLog struct {
	mu    sync.Mutex
	tasks []model.ReconcileTask
}

func (r *repairLog) Submit(_ context.Context, t model.ReconcileTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return true
}

func (r *repairLog) Settle(ctx context.Context, _ string, write func(context.Context) error) error {
	return write(ctx)
}

// flakyWorkers fails availability or score writes on demand.
type flakyWorkers struct {
	repository.WorkerRegistry
	failAvailability bool
	failScore        bool
}

func (f *flakyWorkers) SetAvailability(ctx context.Context, id string, available bool) error {
	if f.failAvailability {
		return repository.Unavailable("set_availability", errors.New("timeout"))
	}
	return f.WorkerRegistry.SetAvailability(ctx, id, available)
}

func (f *flakyWorkers) SetPerformanceScore(ctx context.Context, id string, score float64) error {
	if f.failScore {
		return repository.Unavailable("set_performance_score", errors.New("timeout"))
	}
	return f.WorkerRegistry.SetPerformanceScore(ctx, id, score)
}

// stalledRatings returns its first ListRatings result only after release
// is closed, signalling listed once it has read the ratings.
type stalledRatings struct {
	*repository.MemoryJobStore
	mu      sync.Mutex
	stalled bool
	listed  chan struct{}
	release chan struct{}
}

func (s *stalledRatings) ListRatings(ctx context.Context, workerID string) ([]model.Rating, error) {
	ratings, err := s.MemoryJobStore.ListRatings(ctx, workerID)
	s.mu.Lock()
	first := !s.stalled
	s.stalled = true
	s.mu.Unlock()
	if first {
		close(s.listed)
		<-s.release
	}
	return ratings, err
}

var fixed = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestAdvanceStatus(t *testing.T) {
	Convey("Given J1 assigned to W2", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		jobs := repository.NewMemoryJobStore()
		registry := repository.NewTreapRegistry(ctx)
		defer registry.Close()
		workers := &flakyWorkers{WorkerRegistry: registry}
		repairs := &repairLog{}
		c := lifecycle.New(jobs, workers, repairs,
			lifecycle.WithLogger(logger.Nop()),
			lifecycle.WithClock(func() time.Time { return fixed }),
		)

		So(jobs.CreateJob(ctx, storetest.OpenJob("J1")), ShouldBeNil)
		_, err := registry.UpsertWorker(ctx, model.Worker{ID: "W2", PerformanceScore: 90})
		So(err, ShouldBeNil)
		ok, err := jobs.ConditionalAssign(ctx, "J1", "W2", model.StatusOpen)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		Convey("When it moves to in_progress and then completed", func() {
			job, err := c.AdvanceStatus(ctx, "J1", model.StatusInProgress)
			So(err, ShouldBeNil)
			So(job.Status, ShouldEqual, model.StatusInProgress)

			job, err = c.AdvanceStatus(ctx, "J1", model.StatusCompleted)

			Convey("Then the job should be completed and W2 available again", func() {
				So(err, ShouldBeNil)
				So(job.Status, ShouldEqual, model.StatusCompleted)
				So(job.AssignedWorkerID, ShouldEqual, "W2")

				w, err := registry.GetWorker(ctx, "W2")
				So(err, ShouldBeNil)
				So(w.Available, ShouldBeTrue)
			})

			Convey("And completed should be terminal", func() {
				_, err := c.AdvanceStatus(ctx, "J1", model.StatusCancelled)
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When completing straight from assigned", func() {
			_, err := c.AdvanceStatus(ctx, "J1", model.StatusCompleted)

			Convey("Then it should be an invalid transition and nothing changes", func() {
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
				job, _ := jobs.GetJob(ctx, "J1")
				So(job.Status, ShouldEqual, model.StatusAssigned)
			})
		})

		Convey("When the job is cancelled", func() {
			job, err := c.AdvanceStatus(ctx, "J1", model.StatusCancelled)

			Convey("Then the assignee should be cleared and the worker freed", func() {
				So(err, ShouldBeNil)
				So(job.Status, ShouldEqual, model.StatusCancelled)
				So(job.AssignedWorkerID, ShouldBeEmpty)

				stored, _ := jobs.GetJob(ctx, "J1")
				So(stored.AssignedWorkerID, ShouldBeEmpty)
				w, _ := registry.GetWorker(ctx, "W2")
				So(w.Available, ShouldBeTrue)
			})
		})

		Convey("When freeing the worker fails", func() {
			workers.failAvailability = true
			_, err := c.AdvanceStatus(ctx, "J1", model.StatusCancelled)

			Convey("Then the transition should stand and a repair be queued", func() {
				So(err, ShouldBeNil)
				job, _ := jobs.GetJob(ctx, "J1")
				So(job.Status, ShouldEqual, model.StatusCancelled)
				So(len(repairs.tasks), ShouldEqual, 1)
				So(repairs.tasks[0], ShouldResemble, model.ReconcileTask{WorkerID: "W2", Available: true, JobID: "J1", Stage: "cancel"})
			})
		})

		Convey("When the job is unknown", func() {
			_, err := c.AdvanceStatus(ctx, "missing", model.StatusInProgress)

			Convey("Then it should be not found", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When two callers race the same transition", func() {
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				okCount   int
				conflicts int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := c.AdvanceStatus(ctx, "J1", model.StatusInProgress)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						okCount++
					case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
						conflicts++
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one should win", func() {
				So(okCount, ShouldEqual, 1)
				So(conflicts, ShouldEqual, 7)
			})
		})
	})

	Convey("Given an open job", t, func() {
		c := lifecycle.New(repository.NewMemoryJobStore(), nil, nil, lifecycle.WithLogger(logger.Nop()))

		Convey("Then assigned and completed should not be reachable through AdvanceStatus", func() {
			So(lifecycle.Allowed(model.StatusOpen, model.StatusAssigned), ShouldBeFalse)
			So(lifecycle.Allowed(model.StatusOpen, model.StatusCompleted), ShouldBeFalse)
			So(lifecycle.Allowed(model.StatusOpen, model.StatusCancelled), ShouldBeFalse)
			So(lifecycle.Allowed(model.StatusInProgress, model.StatusCompleted), ShouldBeTrue)
			So(c, ShouldNotBeNil)
		})
	})
}

func TestRelist(t *testing.T) {
	Convey("Given a cancelled job", t, func() {
		ctx := context.Background()
		jobs := repository.NewMemoryJobStore()
		c := lifecycle.New(jobs, nil, nil,
			lifecycle.WithLogger(logger.Nop()),
			lifecycle.WithClock(func() time.Time { return fixed }),
		)

		job := storetest.OpenJob("J1")
		job.RequiredSkills = []string{"piano"}
		job.Attributes = map[string]string{"title": "2BR flat"}
		So(jobs.CreateJob(ctx, job), ShouldBeNil)
		ok, err := jobs.ConditionalAssign(ctx, "J1", "W1", model.StatusOpen)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		ok, err = jobs.SetStatus(ctx, "J1", model.StatusCancelled, model.StatusAssigned)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)

		Convey("When it is relisted", func() {
			relisted, err := c.Relist(ctx, "J1")

			Convey("Then a new open job should copy its terms", func() {
				So(err, ShouldBeNil)
				So(relisted.ID, ShouldEqual, lifecycle.RelistID("J1"))
				So(relisted.ID, ShouldNotEqual, "J1")
				So(relisted.Status, ShouldEqual, model.StatusOpen)
				So(relisted.RelistedFrom, ShouldEqual, "J1")
				So(relisted.Price, ShouldEqual, job.Price)
				So(relisted.Size, ShouldEqual, job.Size)
				So(relisted.RequiredSkills, ShouldResemble, []string{"piano"})
				So(relisted.Attributes["title"], ShouldEqual, "2BR flat")

				stored, err := jobs.GetJob(ctx, relisted.ID)
				So(err, ShouldBeNil)
				So(stored.AssignedWorkerID, ShouldBeEmpty)

				old, _ := jobs.GetJob(ctx, "J1")
				So(old.Status, ShouldEqual, model.StatusCancelled)
			})

			Convey("And relisting again should conflict", func() {
				_, err := c.Relist(ctx, "J1")
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
			})
		})

		Convey("When relisting a job that is not cancelled", func() {
			So(jobs.CreateJob(ctx, storetest.OpenJob("J2")), ShouldBeNil)
			_, err := c.Relist(ctx, "J2")

			Convey("Then it should be an invalid transition", func() {
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})
	})
}

func TestSubmitRating(t *testing.T) {
	Convey("Given J1 completed by W2", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		jobs := repository.NewMemoryJobStore()
		registry := repository.NewTreapRegistry(ctx)
		defer registry.Close()
		workers := &flakyWorkers{WorkerRegistry: registry}
		c := lifecycle.New(jobs, workers, &repairLog{}, lifecycle.WithLogger(logger.Nop()))

		for _, id := range []string{"J1", "J2", "J3"} {
			So(jobs.CreateJob(ctx, storetest.OpenJob(id)), ShouldBeNil)
		}
		_, err := registry.UpsertWorker(ctx, model.Worker{ID: "W2", Available: true, PerformanceScore: 90})
		So(err, ShouldBeNil)
		complete := func(id string) {
			ok, err := jobs.ConditionalAssign(ctx, id, "W2", model.StatusOpen)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			_, err = c.AdvanceStatus(ctx, id, model.StatusInProgress)
			So(err, ShouldBeNil)
			_, err = c.AdvanceStatus(ctx, id, model.StatusCompleted)
			So(err, ShouldBeNil)
		}
		complete("J1")

		Convey("When the customer rates W2 with 5", func() {
			r, err := c.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W2", Score: 5, Comment: "great"})

			Convey("Then the rating should be stored and the score become the mean", func() {
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 5)
				So(r.CreatedAt.IsZero(), ShouldBeFalse)

				score, err := registry.GetPerformanceScore(ctx, "W2")
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 5)
			})

			Convey("And a duplicate rating should conflict", func() {
				_, err := c.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W2", Score: 1})
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)

				score, _ := registry.GetPerformanceScore(ctx, "W2")
				So(score, ShouldEqual, 5)
			})

			Convey("And further ratings should keep the rounded mean", func() {
				complete("J2")
				complete("J3")
				_, err := c.SubmitRating(ctx, model.Rating{JobID: "J2", WorkerID: "W2", Score: 4})
				So(err, ShouldBeNil)
				_, err = c.SubmitRating(ctx, model.Rating{JobID: "J3", WorkerID: "W2", Score: 4})
				So(err, ShouldBeNil)

				score, _ := registry.GetPerformanceScore(ctx, "W2")
				So(score, ShouldEqual, 4.3333)
			})
		})

		Convey("When the rating is invalid", func() {
			_, errState := c.SubmitRating(ctx, model.Rating{JobID: "J2", WorkerID: "W2", Score: 5})
			_, errWorker := c.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W1", Score: 5})
			_, errScore := c.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W2", Score: 6})
			_, errJob := c.SubmitRating(ctx, model.Rating{JobID: "missing", WorkerID: "W2", Score: 5})

			Convey("Then each should carry its error kind", func() {
				So(errors.Is(errState, model.ErrInvalidState), ShouldBeTrue)
				So(errors.Is(errWorker, model.ErrInvalidState), ShouldBeTrue)
				So(errors.Is(errScore, model.ErrInvalidRating), ShouldBeTrue)
				So(errors.Is(errJob, model.ErrNotFound), ShouldBeTrue)

				ratings, err := jobs.ListRatings(ctx, "W2")
				So(err, ShouldBeNil)
				So(ratings, ShouldBeEmpty)
			})
		})

		Convey("When two ratings for W2 are recomputed concurrently", func() {
			complete("J2")
			stalled := &stalledRatings{
				MemoryJobStore: jobs,
				listed:         make(chan struct{}),
				release:        make(chan struct{}),
			}
			racing := lifecycle.New(stalled, workers, &repairLog{}, lifecycle.WithLogger(logger.Nop()))

			errs := make(chan error, 2)
			go func() {
				_, err := racing.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W2", Score: 1})
				errs <- err
			}()
			<-stalled.listed
			go func() {
				_, err := racing.SubmitRating(ctx, model.Rating{JobID: "J2", WorkerID: "W2", Score: 5})
				errs <- err
			}()

			// J1's recompute holds a list without J2; let J2's rating land first.
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				ratings, _ := jobs.ListRatings(ctx, "W2")
				if len(ratings) == 2 {
					break
				}
				time.Sleep(time.Millisecond)
			}
			close(stalled.release)
			So(<-errs, ShouldBeNil)
			So(<-errs, ShouldBeNil)

			Convey("Then the final score should be the mean of both ratings", func() {
				ratings, _ := jobs.ListRatings(ctx, "W2")
				So(len(ratings), ShouldEqual, 2)
				score, err := registry.GetPerformanceScore(ctx, "W2")
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 3)
			})
		})

		Convey("When the score write fails", func() {
			workers.failScore = true
			_, err := c.SubmitRating(ctx, model.Rating{JobID: "J1", WorkerID: "W2", Score: 5})

			Convey("Then the rating should still be accepted and the old score kept", func() {
				So(err, ShouldBeNil)
				ratings, _ := jobs.ListRatings(ctx, "W2")
				So(len(ratings), ShouldEqual, 1)
				score, _ := registry.GetPerformanceScore(ctx, "W2")
				So(score, ShouldEqual, 90)
			})
		})
	})
}
