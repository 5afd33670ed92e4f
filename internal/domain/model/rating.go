package model

import (
	"fmt"
	"time"
)

// Rating score bounds.
const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// Rating is a customer's score for a completed job.
type Rating struct {
	JobID     string    `json:"job_id"`
	WorkerID  string    `json:"worker_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the score range.
func (r *Rating) Validate() error {
	if r.Score < MinRatingScore || r.Score > MaxRatingScore {
		return fmt.Errorf("%w: score %d outside %d..%d", ErrInvalidRating, r.Score, MinRatingScore, MaxRatingScore)
	}
	return nil
}
