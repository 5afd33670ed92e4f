// Package claimrace drives a running movers service over HTTP: it seeds
// workers and jobs, fires concurrent self-claims at every job and checks
// that each job ends up with exactly one assignee.
package claimrace

import "time"

// Config holds configuration for a race run.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumJobs     int           // Jobs to post
	NumWorkers  int           // Movers to register
	Contenders  int           // Concurrent claims per job
	Concurrency int           // HTTP requests in flight
	Timeout     time.Duration // HTTP request timeout
	OutputFile  string        // Optional JSON report path
}

// Job is the payload posted to /jobs.
type Job struct {
	ID             string   `json:"id"`
	Size           string   `json:"size"`
	Price          int64    `json:"price"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

// Worker is the payload put to /workers/{id}.
type Worker struct {
	ID               string   `json:"-"`
	Name             string   `json:"name"`
	Available        bool     `json:"available"`
	PerformanceScore float64  `json:"performance_score"`
	Skills           []string `json:"skills"`
}

// ClaimAck is the body of a claim response.
type ClaimAck struct {
	Outcome  string `json:"outcome"`
	JobID    string `json:"job_id"`
	WorkerID string `json:"worker_id"`
}

// jobView is the subset of GET /jobs/{id} the verifier reads.
type jobView struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	AssignedWorkerID string `json:"assigned_worker_id"`
}

// Stats holds run statistics.
type Stats struct {
	JobsPosted      int           `json:"jobs_posted"`
	WorkersSeeded   int           `json:"workers_seeded"`
	ClaimsSent      int           `json:"claims_sent"`
	ClaimsGranted   int           `json:"claims_granted"`
	ClaimsConflict  int           `json:"claims_conflict"`
	ClaimsFailed    int           `json:"claims_failed"`
	JobsUnassigned  int           `json:"jobs_unassigned"`
	Violations      []string      `json:"violations,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	Duration        time.Duration `json:"duration"`
	ClaimsPerSecond float64       `json:"claims_per_second"`
}
