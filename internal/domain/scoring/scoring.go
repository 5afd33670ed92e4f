// Package scoring computes worker performance scores from ratings.
package scoring

import (
	"context"
	"fmt"
	"math"
)

// Default scoring configuration constants.
const (
	defaultPrecision = 4
	maxPrecision     = 10
)

// Option applies a configuration option to the MeanScorer.
type Option func(*MeanScorer)

// WithPrecision sets the number of decimal places kept in the score.
func WithPrecision(places int) Option {
	return func(s *MeanScorer) {
		if places >= 0 && places <= maxPrecision {
			s.precision = places
		}
	}
}

// Input carries every rating score a worker has received.
type Input struct {
	WorkerID string
	Scores   []int
}

// Result contains the computed score for a worker.
type Result struct {
	WorkerID string
	Score    float64
	Count    int
}

// Scorer computes a performance score from ratings.
type Scorer interface {
	// Score computes a score, honoring ctx for cancellation.
	Score(ctx context.Context, in Input) (Result, error)
}

// MeanScorer implements Scorer as the arithmetic mean of all rating scores,
// rounded half away from zero. The same input always yields the same score.
type MeanScorer struct {
	precision int
	factor    float64
}

// NewMeanScorer creates a scorer with configuration options.
func NewMeanScorer(opts ...Option) *MeanScorer {
	s := &MeanScorer{precision: defaultPrecision}
	for _, opt := range opts {
		opt(s)
	}
	s.factor = math.Pow(10, float64(s.precision))
	return s
}

// Score computes the mean of in.Scores. A worker with no ratings scores zero.
func (s *MeanScorer) Score(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("context cancelled: %w", err)
	}
	if len(in.Scores) == 0 {
		return Result{WorkerID: in.WorkerID}, nil
	}

	var sum int64
	for _, v := range in.Scores {
		sum += int64(v)
	}
	mean := float64(sum) / float64(len(in.Scores))

	return Result{
		WorkerID: in.WorkerID,
		Score:    math.Round(mean*s.factor) / s.factor,
		Count:    len(in.Scores),
	}, nil
}

// Precision returns the number of decimal places kept.
func (s *MeanScorer) Precision() int { return s.precision }
