// Package redisreg is a WorkerRegistry backed by Redis. Each worker is a
// hash; available workers are also members of a ZSET scored by their
// performance score. Multi-key updates run as Lua scripts.
package redisreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/okian/movers/internal/adapters/repository"
	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/ranking"
	"github.com/redis/go-redis/v9"
)

const (
	backend       = repository.BackendRedis
	defaultPrefix = "movers"
)

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithKeyPrefix namespaces every key. Useful when several environments
// share one Redis.
func WithKeyPrefix(prefix string) Option {
	return func(r *Registry) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// Registry implements repository.WorkerRegistry.
type Registry struct {
	rc     *redis.Client
	prefix string
}

var _ repository.WorkerRegistry = (*Registry)(nil)

// Open connects to addr/db and verifies the connection.
func Open(ctx context.Context, addr string, db int, opts ...Option) (*Registry, error) {
	rc := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, repository.Unavailable("redis ping", err)
	}
	return New(rc, opts...), nil
}

// New wraps an existing client.
func New(rc *redis.Client, opts ...Option) *Registry {
	r := &Registry{rc: rc, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the client.
func (r *Registry) Close() error {
	return r.rc.Close()
}

func (r *Registry) keys(id string) []string {
	return []string{workerKey(r.prefix, id), availableKey(r.prefix), allKey(r.prefix)}
}

// ListAvailable implements repository.WorkerRegistry.
func (r *Registry) ListAvailable(ctx context.Context, skills []string) ([]model.Worker, error) {
	defer repository.ObserveLatency(backend, "list_available", time.Now())

	ids, err := r.rc.ZRevRange(ctx, availableKey(r.prefix), 0, -1).Result()
	if err != nil {
		return nil, repository.Unavailable("list available", err)
	}
	workers, err := r.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Worker, 0, len(workers))
	for _, w := range workers {
		if w.Available && w.HasSkills(skills) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b model.Worker) int {
		if ranking.Less(&a, &b) {
			return -1
		}
		if ranking.Less(&b, &a) {
			return 1
		}
		return 0
	})
	return out, nil
}

// SetAvailability implements repository.WorkerRegistry.
func (r *Registry) SetAvailability(ctx context.Context, id string, available bool) error {
	defer repository.ObserveLatency(backend, "set_availability", time.Now())

	n, err := setAvailabilityScript.Run(ctx, r.rc, r.keys(id), id, flag(available)).Int()
	if err != nil {
		return repository.Unavailable("set availability", err)
	}
	if n == 0 {
		return repository.NotFound("worker", id)
	}
	return nil
}

// GetPerformanceScore implements repository.WorkerRegistry.
func (r *Registry) GetPerformanceScore(ctx context.Context, id string) (float64, error) {
	v, err := r.rc.HGet(ctx, workerKey(r.prefix, id), "score").Float64()
	if errors.Is(err, redis.Nil) {
		return 0, repository.NotFound("worker", id)
	}
	if err != nil {
		return 0, repository.Unavailable("get score", err)
	}
	return v, nil
}

// SetPerformanceScore implements repository.WorkerRegistry.
func (r *Registry) SetPerformanceScore(ctx context.Context, id string, score float64) error {
	defer repository.ObserveLatency(backend, "set_performance_score", time.Now())

	n, err := setScoreScript.Run(ctx, r.rc, r.keys(id), id, formatScore(score)).Int()
	if err != nil {
		return repository.Unavailable("set score", err)
	}
	if n == 0 {
		return repository.NotFound("worker", id)
	}
	return nil
}

// GetWorker implements repository.WorkerRegistry.
func (r *Registry) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	fields, err := r.rc.HGetAll(ctx, workerKey(r.prefix, id)).Result()
	if err != nil {
		return model.Worker{}, repository.Unavailable("get worker", err)
	}
	if len(fields) == 0 {
		return model.Worker{}, repository.NotFound("worker", id)
	}
	return decode(fields)
}

// UpsertWorker implements repository.WorkerRegistry. A new worker starts
// with the score it was registered with.
func (r *Registry) UpsertWorker(ctx context.Context, w model.Worker) (model.Worker, error) {
	defer repository.ObserveLatency(backend, "upsert_worker", time.Now())

	skills, err := json.Marshal(w.Skills)
	if err != nil {
		return model.Worker{}, fmt.Errorf("encode skills: %w", err)
	}
	stored, err := upsertScript.Run(ctx, r.rc, r.keys(w.ID),
		w.ID, w.Name, flag(w.Available), formatScore(w.PerformanceScore), string(skills),
	).Text()
	if err != nil {
		return model.Worker{}, repository.Unavailable("upsert worker", err)
	}
	score, err := strconv.ParseFloat(stored, 64)
	if err != nil {
		return model.Worker{}, fmt.Errorf("decode score %q: %w", stored, err)
	}
	w = w.Clone()
	w.PerformanceScore = score
	return w, nil
}

// Count implements repository.WorkerRegistry.
func (r *Registry) Count(ctx context.Context) (int, error) {
	n, err := r.rc.SCard(ctx, allKey(r.prefix)).Result()
	if err != nil {
		return 0, repository.Unavailable("count workers", err)
	}
	return int(n), nil
}

// fetch loads worker hashes in one pipeline round trip.
func (r *Registry) fetch(ctx context.Context, ids []string) ([]model.Worker, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.rc.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, workerKey(r.prefix, id))
		}
		return nil
	})
	if err != nil {
		return nil, repository.Unavailable("fetch workers", err)
	}

	out := make([]model.Worker, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		w, err := decode(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func decode(fields map[string]string) (model.Worker, error) {
	w := model.Worker{
		ID:        fields["id"],
		Name:      fields["name"],
		Available: fields["available"] == "1",
	}
	score, err := strconv.ParseFloat(fields["score"], 64)
	if err != nil {
		return model.Worker{}, fmt.Errorf("decode score of %s: %w", w.ID, err)
	}
	w.PerformanceScore = score
	if s := fields["skills"]; s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &w.Skills); err != nil {
			return model.Worker{}, fmt.Errorf("decode skills of %s: %w", w.ID, err)
		}
	}
	return w, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
