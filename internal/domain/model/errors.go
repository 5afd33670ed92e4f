package model

import "errors"

// Error kinds shared by every layer. Callers match with errors.Is.
var (
	// ErrNotFound: referenced job or worker is absent. Not retried.
	ErrNotFound = errors.New("not found")
	// ErrConflict: lost a race, or the record changed under the caller.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition: the lifecycle move is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidState: the operation is not allowed in the job's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrAlreadyExists: a record with the same id was already created.
	ErrAlreadyExists = errors.New("already exists")
	// ErrStoreUnavailable: the backing store failed; retried at the boundary only.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Validation error kinds.
var (
	ErrInvalidJob    = errors.New("invalid job")
	ErrInvalidWorker = errors.New("invalid worker")
	ErrInvalidRating = errors.New("invalid rating")
)
