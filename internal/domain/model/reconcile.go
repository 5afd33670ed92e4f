package model

import "time"

// ReconcileTask asks the reconciler to repair a worker's availability flag
// after a committed job transition failed to update it.
type ReconcileTask struct {
	WorkerID  string
	Available bool
	JobID     string // transition that caused the drift
	Stage     string // claim, complete, cancel
	Attempt   int
	QueuedAt  time.Time
	// Generation is the worker's direct-write generation when the task was
	// submitted. A task older than the latest direct write is stale.
	Generation uint64
}

// Key identifies the pending repair; one pending task per worker.
func (t ReconcileTask) Key() string {
	return t.WorkerID
}
