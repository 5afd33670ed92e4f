// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

// Job lifecycle states. Completed and cancelled are terminal.
const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HasAssignee reports whether a job in status s must carry an assignee.
func (s Status) HasAssignee() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusCompleted
}

// ParseStatus converts user input into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}

// Size is the job size class.
type Size string

// Job sizes.
const (
	SizeLight  Size = "light"
	SizeMedium Size = "medium"
	SizeHeavy  Size = "heavy"
)

// Valid reports whether s is a known size.
func (s Size) Valid() bool {
	return s == SizeLight || s == SizeMedium || s == SizeHeavy
}

// Job is a posted move.
type Job struct {
	ID               string            `json:"id"`
	Size             Size              `json:"size"`
	Price            int64             `json:"price"` // minor currency units
	Status           Status            `json:"status"`
	AssignedWorkerID string            `json:"assigned_worker_id,omitempty"`
	RequiredSkills   []string          `json:"required_skills,omitempty"`
	RelistedFrom     string            `json:"relisted_from,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"` // display fields, passed through
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Validate checks the fields a newly posted job must carry.
func (j *Job) Validate() error {
	switch {
	case strings.TrimSpace(j.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	case !j.Size.Valid():
		return fmt.Errorf("%w: unknown size %q", ErrInvalidJob, j.Size)
	case j.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidJob)
	case j.Status != StatusOpen:
		return fmt.Errorf("%w: new jobs must be open", ErrInvalidJob)
	case j.AssignedWorkerID != "":
		return fmt.Errorf("%w: new jobs cannot carry an assignee", ErrInvalidJob)
	}
	return nil
}

// CheckAssignee verifies the assignee/status invariant.
func (j *Job) CheckAssignee() error {
	if j.Status.HasAssignee() != (j.AssignedWorkerID != "") {
		return fmt.Errorf("job %s: status %s with assignee %q", j.ID, j.Status, j.AssignedWorkerID)
	}
	return nil
}

// Clone returns a deep copy so stores never hand out shared slices or maps.
func (j Job) Clone() Job {
	j.RequiredSkills = slices.Clone(j.RequiredSkills)
	if j.Attributes != nil {
		attrs := make(map[string]string, len(j.Attributes))
		for k, v := range j.Attributes {
			attrs[k] = v
		}
		j.Attributes = attrs
	}
	return j
}
