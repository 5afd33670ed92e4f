package natskv_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/adapters/repository/natskv"
	"github.com/okian/movers/internal/adapters/repository/storetest"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/pkg/logger"
	"github.com/stretchr/testify/require"
)

// startEmbeddedNATS runs an in-process JetStream server for one test.
func startEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready within timeout")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns, nc
}

func TestStore(t *testing.T) {
	_, nc := startEmbeddedNATS(t)
	var buckets atomic.Int64

	storetest.RunJobStore(t, func(t *testing.T) repository.JobStore {
		bucket := fmt.Sprintf("jobs-%d", buckets.Add(1))
		s, err := natskv.New(context.Background(), nc, bucket, logger.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_Open(t *testing.T) {
	ns, _ := startEmbeddedNATS(t)
	ctx := context.Background()

	s, err := natskv.Open(ctx, ns.ClientURL(), "open-test", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, storetest.OpenJob("J1")))
	require.NoError(t, s.Close())

	again, err := natskv.Open(ctx, ns.ClientURL(), "open-test", logger.Nop())
	require.NoError(t, err)
	defer again.Close()

	job, err := again.GetJob(ctx, "J1")
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, job.Status)
}

func TestStore_IDsWithUnsafeCharacters(t *testing.T) {
	_, nc := startEmbeddedNATS(t)
	ctx := context.Background()
	s, err := natskv.New(ctx, nc, "unsafe-ids", logger.Nop())
	require.NoError(t, err)

	require.NoError(t, s.CreateJob(ctx, storetest.OpenJob("move #1 / 2BR.flat")))
	ok, err := s.ConditionalAssign(ctx, "move #1 / 2BR.flat", "worker*one", model.StatusOpen)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.CreateRating(ctx, model.Rating{JobID: "move #1 / 2BR.flat", WorkerID: "worker*one", Score: 4}))
	list, err := s.ListRatings(ctx, "worker*one")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestStore_Unreachable(t *testing.T) {
	_, err := natskv.Open(context.Background(), "nats://127.0.0.1:1", "none", logger.Nop())
	require.ErrorIs(t, err, model.ErrStoreUnavailable)
}
