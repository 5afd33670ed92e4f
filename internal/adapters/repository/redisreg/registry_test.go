package redisreg_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/adapters/repository/redisreg"
	"github.com/okian/movers/internal/adapters/repository/storetest"
	"github.com/okian/movers/internal/domain/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts ...redisreg.Option) (*redisreg.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := redisreg.New(rc, opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRegistry(t *testing.T) {
	storetest.RunWorkerRegistry(t, func(t *testing.T) repository.WorkerRegistry {
		r, _ := newRegistry(t)
		return r
	})
}

func TestRegistry_RankedOrder(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	for _, w := range []model.Worker{
		{ID: "A", Available: true, PerformanceScore: 80},
		{ID: "C", Available: true, PerformanceScore: 95},
		{ID: "B", Available: true, PerformanceScore: 95},
	} {
		_, err := r.UpsertWorker(ctx, w)
		require.NoError(t, err)
	}

	ws, err := r.ListAvailable(ctx, nil)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	require.Equal(t, "B", ws[0].ID)
	require.Equal(t, "C", ws[1].ID)
	require.Equal(t, "A", ws[2].ID)
}

func TestRegistry_KeyLayout(t *testing.T) {
	ctx := context.Background()
	r, mr := newRegistry(t, redisreg.WithKeyPrefix("test"))

	_, err := r.UpsertWorker(ctx, model.Worker{ID: "W1", Name: "Sam", Available: true, PerformanceScore: 70, Skills: []string{"piano"}})
	require.NoError(t, err)

	require.True(t, mr.Exists("test:worker:W1"))
	require.Equal(t, "Sam", mr.HGet("test:worker:W1", "name"))
	score, err := mr.ZScore("test:workers:available", "W1")
	require.NoError(t, err)
	require.InDelta(t, 70, score, 1e-9)

	require.NoError(t, r.SetAvailability(ctx, "W1", false))
	members, err := mr.ZMembers("test:workers:available")
	if err == nil {
		require.Empty(t, members)
	}

	require.NoError(t, r.SetPerformanceScore(ctx, "W1", 4.5))
	require.NoError(t, r.SetAvailability(ctx, "W1", true))
	score, err = mr.ZScore("test:workers:available", "W1")
	require.NoError(t, err)
	require.InDelta(t, 4.5, score, 1e-9)
}

func TestRegistry_Unavailable(t *testing.T) {
	ctx := context.Background()
	r, mr := newRegistry(t)
	mr.Close()

	_, err := r.GetWorker(ctx, "W1")
	require.ErrorIs(t, err, model.ErrStoreUnavailable)
	require.ErrorIs(t, r.SetAvailability(ctx, "W1", true), model.ErrStoreUnavailable)

	_, err = redisreg.Open(ctx, mr.Addr(), 0)
	require.ErrorIs(t, err, model.ErrStoreUnavailable)
}
