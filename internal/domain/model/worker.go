package model

import (
	"fmt"
	"slices"
	"strings"
)

// Worker is a mover who can claim jobs.
type Worker struct {
	ID               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	Available        bool     `json:"available"`
	PerformanceScore float64  `json:"performance_score"`
	Skills           []string `json:"skills,omitempty"`
}

// Validate checks registration input.
func (w *Worker) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidWorker)
	}
	return nil
}

// HasSkills reports whether w carries every tag in required.
func (w *Worker) HasSkills(required []string) bool {
	for _, s := range required {
		if !slices.Contains(w.Skills, s) {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the skills slice.
func (w Worker) Clone() Worker {
	w.Skills = slices.Clone(w.Skills)
	return w
}
