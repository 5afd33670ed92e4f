// Package types contains common types used across the application
package types

// Entry is one row of a ranked worker list (top suggested workers).
type Entry struct {
	Rank     int     `json:"rank"`
	WorkerID string  `json:"worker_id"`
	Score    float64 `json:"score"`
}

// Outcome is the result kind of a claim request.
type Outcome string

// Claim outcomes.
const (
	OutcomeGranted          Outcome = "granted"
	OutcomeConflict         Outcome = "conflict"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeNoEligibleWorker Outcome = "no_eligible_worker"
)

// ClaimResult is returned by auto-match and self-claim requests.
type ClaimResult struct {
	Outcome  Outcome `json:"outcome"`
	JobID    string  `json:"job_id"`
	WorkerID string  `json:"worker_id,omitempty"`
	Attempts int     `json:"attempts,omitempty"`
}

// Granted reports whether the claim succeeded.
func (r ClaimResult) Granted() bool { return r.Outcome == OutcomeGranted }
