package service

import (
	"context"
	"io"
	"strings"

	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/adapters/repository/natskv"
	"github.com/okian/movers/internal/adapters/repository/postgres"
	"github.com/okian/movers/internal/adapters/repository/redisreg"
	"github.com/okian/movers/internal/config"
	"github.com/okian/movers/pkg/logger"
)

func (s *Service) openJobStore(ctx context.Context, c *components) (repository.JobStore, error) {
	if s.jobStore != nil {
		return s.jobStore, nil
	}

	var (
		store repository.JobStore
		err   error
	)
	switch strings.ToLower(s.cfg.JobStore) {
	case config.BackendMemory:
		store = repository.NewMemoryJobStore()
	case config.BackendPostgres:
		store, err = postgres.Open(ctx, s.cfg.PostgresDSN, s.logger.Named("postgres"))
	case config.BackendNATS:
		store, err = natskv.Open(ctx, s.cfg.NATSURL, s.cfg.NATSBucket, s.logger.Named("natskv"))
	default:
		return nil, unknownBackend("job_store", s.cfg.JobStore)
	}
	if err != nil {
		return nil, err
	}

	track(c, store)
	s.logger.Info(ctx, "job store ready", logger.String("backend", s.cfg.JobStore))
	return store, nil
}

func (s *Service) openRegistry(ctx, runCtx context.Context, c *components) (repository.WorkerRegistry, error) {
	if s.registry != nil {
		return s.registry, nil
	}

	var (
		reg repository.WorkerRegistry
		err error
	)
	switch strings.ToLower(s.cfg.WorkerRegistry) {
	case config.BackendMemory:
		reg = repository.NewTreapRegistry(runCtx)
	case config.BackendRedis:
		reg, err = redisreg.Open(ctx, s.cfg.RedisAddr, s.cfg.RedisDB)
	default:
		return nil, unknownBackend("worker_registry", s.cfg.WorkerRegistry)
	}
	if err != nil {
		return nil, err
	}

	track(c, reg)
	s.logger.Info(ctx, "worker registry ready", logger.String("backend", s.cfg.WorkerRegistry))
	return reg, nil
}

func track(c *components, v any) {
	if closer, ok := v.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
}
