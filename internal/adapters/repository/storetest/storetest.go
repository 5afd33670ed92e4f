// Package storetest holds behaviour suites every repository backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/domain/model"
	"github.com/stretchr/testify/require"
)

// OpenJob returns a valid open job with the given id.
func OpenJob(id string) model.Job {
	return model.Job{
		ID:        id,
		Size:      model.SizeMedium,
		Price:     15000,
		Status:    model.StatusOpen,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// RunJobStore exercises a JobStore. newStore must return an empty store.
func RunJobStore(t *testing.T, newStore func(t *testing.T) repository.JobStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		job := OpenJob("J1")
		job.RequiredSkills = []string{"piano"}
		job.Attributes = map[string]string{"title": "2BR flat"}
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, "J1")
		require.NoError(t, err)
		require.Equal(t, "J1", got.ID)
		require.Equal(t, model.StatusOpen, got.Status)
		require.Equal(t, int64(15000), got.Price)
		require.Equal(t, []string{"piano"}, got.RequiredSkills)
		require.Equal(t, "2BR flat", got.Attributes["title"])
		require.Empty(t, got.AssignedWorkerID)

		err = s.CreateJob(ctx, job)
		require.ErrorIs(t, err, model.ErrAlreadyExists)

		_, err = s.GetJob(ctx, "missing")
		require.ErrorIs(t, err, model.ErrNotFound)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	})

	t.Run("conditional assign", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, OpenJob("J1")))

		ok, err := s.ConditionalAssign(ctx, "J1", "W1", model.StatusOpen)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.ConditionalAssign(ctx, "J1", "W2", model.StatusOpen)
		require.NoError(t, err)
		require.False(t, ok, "second claim must fail closed")

		got, err := s.GetJob(ctx, "J1")
		require.NoError(t, err)
		require.Equal(t, model.StatusAssigned, got.Status)
		require.Equal(t, "W1", got.AssignedWorkerID)

		_, err = s.ConditionalAssign(ctx, "missing", "W1", model.StatusOpen)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("concurrent claims grant exactly one", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, OpenJob("J1")))

		const n = 16
		var granted atomic.Int64
		var winner atomic.Value
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := fmt.Sprintf("W%02d", i)
				ok, err := s.ConditionalAssign(ctx, "J1", w, model.StatusOpen)
				if err != nil {
					errs <- err
					return
				}
				if ok {
					granted.Add(1)
					winner.Store(w)
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, int64(1), granted.Load())

		got, err := s.GetJob(ctx, "J1")
		require.NoError(t, err)
		require.Equal(t, winner.Load(), got.AssignedWorkerID)
	})

	t.Run("set status", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, OpenJob("J1")))
		ok, err := s.ConditionalAssign(ctx, "J1", "W1", model.StatusOpen)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.SetStatus(ctx, "J1", model.StatusInProgress, model.StatusOpen)
		require.NoError(t, err)
		require.False(t, ok, "stale expected status must fail closed")

		ok, err = s.SetStatus(ctx, "J1", model.StatusInProgress, model.StatusAssigned)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.SetStatus(ctx, "J1", model.StatusCompleted, model.StatusInProgress)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetJob(ctx, "J1")
		require.NoError(t, err)
		require.Equal(t, model.StatusCompleted, got.Status)
		require.Equal(t, "W1", got.AssignedWorkerID)

		_, err = s.SetStatus(ctx, "missing", model.StatusCancelled, model.StatusOpen)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("cancel clears assignee", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, OpenJob("J1")))
		_, err := s.ConditionalAssign(ctx, "J1", "W1", model.StatusOpen)
		require.NoError(t, err)

		ok, err := s.SetStatus(ctx, "J1", model.StatusCancelled, model.StatusAssigned)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetJob(ctx, "J1")
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, got.Status)
		require.Empty(t, got.AssignedWorkerID)
		require.NoError(t, got.CheckAssignee())
	})

	t.Run("list jobs", func(t *testing.T) {
		s := newStore(t)
		for i, id := range []string{"J3", "J1", "J2"} {
			job := OpenJob(id)
			job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Minute)
			require.NoError(t, s.CreateJob(ctx, job))
		}
		_, err := s.ConditionalAssign(ctx, "J1", "W1", model.StatusOpen)
		require.NoError(t, err)

		all, err := s.ListJobs(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "J3", all[0].ID)
		require.Equal(t, "J1", all[1].ID)
		require.Equal(t, "J2", all[2].ID)

		open, err := s.ListJobs(ctx, model.StatusOpen)
		require.NoError(t, err)
		require.Len(t, open, 2)

		assigned, err := s.ListJobs(ctx, model.StatusAssigned)
		require.NoError(t, err)
		require.Len(t, assigned, 1)
		require.Equal(t, "J1", assigned[0].ID)
	})

	t.Run("ratings", func(t *testing.T) {
		s := newStore(t)
		r := model.Rating{JobID: "J1", WorkerID: "W1", Score: 5, Comment: "great"}
		require.NoError(t, s.CreateRating(ctx, r))
		require.ErrorIs(t, s.CreateRating(ctx, r), model.ErrConflict)
		require.NoError(t, s.CreateRating(ctx, model.Rating{JobID: "J0", WorkerID: "W1", Score: 3}))
		require.NoError(t, s.CreateRating(ctx, model.Rating{JobID: "J2", WorkerID: "W2", Score: 1}))

		list, err := s.ListRatings(ctx, "W1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, "J0", list[0].JobID)
		require.Equal(t, "J1", list[1].JobID)
		require.Equal(t, "great", list[1].Comment)

		none, err := s.ListRatings(ctx, "W9")
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("concurrent duplicate ratings keep one", func(t *testing.T) {
		s := newStore(t)
		var ok atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.CreateRating(ctx, model.Rating{JobID: "J1", WorkerID: "W1", Score: 1 + i%5})
				if err == nil {
					ok.Add(1)
				} else if !errors.Is(err, model.ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, int64(1), ok.Load())
	})
}

// RunWorkerRegistry exercises a WorkerRegistry. newRegistry must return an
// empty registry.
func RunWorkerRegistry(t *testing.T, newRegistry func(t *testing.T) repository.WorkerRegistry) {
	t.Helper()
	ctx := context.Background()

	seed := func(t *testing.T, r repository.WorkerRegistry) {
		t.Helper()
		for _, w := range []model.Worker{
			{ID: "A", Available: true, PerformanceScore: 80, Skills: []string{"piano"}},
			{ID: "C", Available: true, PerformanceScore: 95},
			{ID: "B", Available: true, PerformanceScore: 95, Skills: []string{"piano", "stairs"}},
			{ID: "D", Available: false, PerformanceScore: 99, Skills: []string{"piano"}},
		} {
			_, err := r.UpsertWorker(ctx, w)
			require.NoError(t, err)
		}
	}

	ids := func(ws []model.Worker) []string {
		out := make([]string, len(ws))
		for i := range ws {
			out[i] = ws[i].ID
		}
		return out
	}

	t.Run("upsert and get", func(t *testing.T) {
		r := newRegistry(t)
		seed(t, r)

		w, err := r.GetWorker(ctx, "B")
		require.NoError(t, err)
		require.True(t, w.Available)
		require.InDelta(t, 95, w.PerformanceScore, 1e-9)
		require.ElementsMatch(t, []string{"piano", "stairs"}, w.Skills)

		_, err = r.GetWorker(ctx, "missing")
		require.ErrorIs(t, err, model.ErrNotFound)

		n, err := r.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 4, n)
	})

	t.Run("upsert keeps existing score", func(t *testing.T) {
		r := newRegistry(t)
		seed(t, r)

		got, err := r.UpsertWorker(ctx, model.Worker{ID: "A", Name: "Ann", Available: true, PerformanceScore: 1})
		require.NoError(t, err)
		require.InDelta(t, 80, got.PerformanceScore, 1e-9)
		require.Equal(t, "Ann", got.Name)

		score, err := r.GetPerformanceScore(ctx, "A")
		require.NoError(t, err)
		require.InDelta(t, 80, score, 1e-9)
	})

	t.Run("list available", func(t *testing.T) {
		r := newRegistry(t)
		seed(t, r)

		all, err := r.ListAvailable(ctx, nil)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"A", "B", "C"}, ids(all))

		piano, err := r.ListAvailable(ctx, []string{"piano"})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"A", "B"}, ids(piano))

		none, err := r.ListAvailable(ctx, []string{"crane"})
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("availability toggles", func(t *testing.T) {
		r := newRegistry(t)
		seed(t, r)

		require.NoError(t, r.SetAvailability(ctx, "B", false))
		require.NoError(t, r.SetAvailability(ctx, "B", false))
		require.NoError(t, r.SetAvailability(ctx, "D", true))

		all, err := r.ListAvailable(ctx, nil)
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"A", "C", "D"}, ids(all))

		w, err := r.GetWorker(ctx, "B")
		require.NoError(t, err)
		require.False(t, w.Available)

		require.ErrorIs(t, r.SetAvailability(ctx, "missing", true), model.ErrNotFound)
	})

	t.Run("performance score", func(t *testing.T) {
		r := newRegistry(t)
		seed(t, r)

		require.NoError(t, r.SetPerformanceScore(ctx, "A", 4.3333))
		score, err := r.GetPerformanceScore(ctx, "A")
		require.NoError(t, err)
		require.InDelta(t, 4.3333, score, 1e-9)

		_, err = r.GetPerformanceScore(ctx, "missing")
		require.ErrorIs(t, err, model.ErrNotFound)
		require.ErrorIs(t, r.SetPerformanceScore(ctx, "missing", 1), model.ErrNotFound)
	})
}
