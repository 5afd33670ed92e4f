package claimrace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/movers/pkg/logger"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// ErrViolation is returned when the service granted a job more than once
// or its stored assignee disagrees with the granted claim.
var ErrViolation = errors.New("assignment invariant violated")

// Run executes the complete race and returns its statistics.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	log := logger.Named("claimrace")
	stats := &Stats{StartTime: time.Now()}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting claim race",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("jobs", cfg.NumJobs),
		logger.Int("workers", cfg.NumWorkers),
		logger.Int("contenders", cfg.Contenders),
		logger.Int("concurrency", cfg.Concurrency))

	if _, err := c.call(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	workers := generateWorkers(cfg.NumWorkers)
	for _, w := range workers {
		if _, err := c.call(ctx, http.MethodPut, "/workers/"+url.PathEscape(w.ID), w, nil, http.StatusOK); err != nil {
			return stats, fmt.Errorf("seed worker: %w", err)
		}
		stats.WorkersSeeded++
	}

	jobs := generateJobs(cfg.NumJobs)
	for _, j := range jobs {
		if _, err := c.call(ctx, http.MethodPost, "/jobs", j, nil, http.StatusCreated); err != nil {
			return stats, fmt.Errorf("post job: %w", err)
		}
		stats.JobsPosted++
	}
	log.Info(ctx, "seeded", logger.Int("workers", stats.WorkersSeeded), logger.Int("jobs", stats.JobsPosted))

	grants := race(ctx, c, cfg, jobs, workers, stats)

	if err := verify(ctx, c, jobs, grants, stats); err != nil {
		return stats, err
	}

	stats.Duration = time.Since(stats.StartTime)
	if stats.Duration > 0 {
		stats.ClaimsPerSecond = float64(stats.ClaimsSent) / stats.Duration.Seconds()
	}
	report(ctx, log, stats)

	if cfg.OutputFile != "" {
		if err := saveReport(cfg.OutputFile, stats); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	if len(stats.Violations) > 0 {
		return stats, fmt.Errorf("%w: %d violation(s)", ErrViolation, len(stats.Violations))
	}
	return stats, nil
}

type claim struct {
	jobID    string
	workerID string
}

// race fires every contender claim through a bounded pool and returns the
// granted worker ids per job.
func race(ctx context.Context, c *client, cfg *Config, jobs []Job, workers []Worker, stats *Stats) *xsync.Map[string, []string] {
	grants := xsync.NewMap[string, []string]()
	sent, granted, lost, failed := xsync.NewCounter(), xsync.NewCounter(), xsync.NewCounter(), xsync.NewCounter()

	claims := make(chan claim, cfg.Concurrency*channelMultiplier)
	var wg sync.WaitGroup
	for range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cl := range claims {
				sent.Inc()
				switch claimOnce(ctx, c, cl) {
				case resultGranted:
					granted.Inc()
					grants.Compute(cl.jobID, func(old []string, _ bool) ([]string, xsync.ComputeOp) {
						return append(old, cl.workerID), xsync.UpdateOp
					})
				case resultConflict:
					lost.Inc()
				default:
					failed.Inc()
				}
			}
		}()
	}

	// Contenders for one job are queued back to back so they overlap.
feed:
	for _, j := range jobs {
		for _, w := range contenders(workers, cfg.Contenders) {
			select {
			case <-ctx.Done():
				break feed
			case claims <- claim{jobID: j.ID, workerID: w.ID}:
			}
		}
	}
	close(claims)
	wg.Wait()

	stats.ClaimsSent = int(sent.Value())
	stats.ClaimsGranted = int(granted.Value())
	stats.ClaimsConflict = int(lost.Value())
	stats.ClaimsFailed = int(failed.Value())
	return grants
}

func claimOnce(ctx context.Context, c *client, cl claim) string {
	var ack ClaimAck
	status, err := c.call(ctx, http.MethodPost, "/jobs/"+url.PathEscape(cl.jobID)+"/claim",
		map[string]string{"worker_id": cl.workerID}, &ack, http.StatusOK, http.StatusConflict)
	switch {
	case err != nil:
		return resultFailed
	case status == http.StatusOK && ack.Outcome == resultGranted:
		return resultGranted
	case status == http.StatusConflict:
		return resultConflict
	}
	return resultFailed
}

// verify checks the stored state of each job against the grants seen.
func verify(ctx context.Context, c *client, jobs []Job, grants *xsync.Map[string, []string], stats *Stats) error {
	for _, j := range jobs {
		var view jobView
		if _, err := c.call(ctx, http.MethodGet, "/jobs/"+url.PathEscape(j.ID), nil, &view, http.StatusOK); err != nil {
			return fmt.Errorf("verify job: %w", err)
		}
		got, _ := grants.Load(j.ID)
		stats.Violations = append(stats.Violations, checkJob(view, got)...)
		if len(got) == 0 {
			stats.JobsUnassigned++
		}
	}
	return nil
}

// checkJob returns the violations for one job. A worker winning two
// different jobs is not one: availability is advisory.
func checkJob(view jobView, granted []string) []string {
	var out []string
	switch len(granted) {
	case 0:
		if view.AssignedWorkerID != "" {
			out = append(out, fmt.Sprintf("job %s assigned to %s without a granted claim", view.ID, view.AssignedWorkerID))
		}
		return out
	case 1:
	default:
		out = append(out, fmt.Sprintf("job %s granted %d times: %v", view.ID, len(granted), granted))
	}
	w := granted[0]
	if view.AssignedWorkerID != w || view.Status != "assigned" {
		out = append(out, fmt.Sprintf("job %s is %s/%q, granted to %s", view.ID, view.Status, view.AssignedWorkerID, w))
	}
	return out
}

func report(ctx context.Context, log logger.Logger, stats *Stats) {
	var grantRate float64
	if stats.ClaimsSent > 0 {
		grantRate = float64(stats.ClaimsGranted) / float64(stats.ClaimsSent) * percentage
	}
	log.Info(ctx, "final statistics",
		logger.Int("jobsPosted", stats.JobsPosted),
		logger.Int("claimsSent", stats.ClaimsSent),
		logger.Int("claimsGranted", stats.ClaimsGranted),
		logger.Int("claimsConflict", stats.ClaimsConflict),
		logger.Int("claimsFailed", stats.ClaimsFailed),
		logger.Int("jobsUnassigned", stats.JobsUnassigned),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
		logger.Float64("grantRate", grantRate),
		logger.Float64("claimsPerSecond", stats.ClaimsPerSecond))
	for _, v := range stats.Violations {
		log.Error(ctx, "violation", logger.String("detail", v))
	}
}

func saveReport(path string, stats *Stats) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), filePermission)
}
