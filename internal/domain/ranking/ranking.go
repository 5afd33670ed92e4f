// Package ranking orders candidate workers for a job.
//
// Ordering: performance score DESC, then worker id ASC. Ties are never left
// to map or slice iteration order. Every function here is pure and safe for
// concurrent use.
package ranking

import (
	"slices"

	"github.com/okian/movers/internal/domain/model"
	"github.com/okian/movers/internal/domain/types"
)

// Less returns true if worker a ranks before worker b.
func Less(a, b *model.Worker) bool {
	if a.PerformanceScore != b.PerformanceScore {
		return a.PerformanceScore > b.PerformanceScore // higher score ranks earlier
	}
	return a.ID < b.ID // tie-breaker by id asc
}

// compare adapts Less to slices.SortFunc.
func compare(a, b model.Worker) int {
	switch {
	case Less(&a, &b):
		return -1
	case Less(&b, &a):
		return 1
	}
	return 0
}

// Eligible filters candidates down to available workers carrying every skill
// the job requires. The input slice is not modified.
func Eligible(job *model.Job, candidates []model.Worker) []model.Worker {
	out := make([]model.Worker, 0, len(candidates))
	for i := range candidates {
		w := &candidates[i]
		if !w.Available {
			continue
		}
		if job != nil && !w.HasSkills(job.RequiredSkills) {
			continue
		}
		out = append(out, *w)
	}
	return out
}

// Sorted returns the eligible candidates in rank order.
func Sorted(job *model.Job, candidates []model.Worker) []model.Worker {
	out := Eligible(job, candidates)
	slices.SortStableFunc(out, compare)
	return out
}

// Rank returns the ids of eligible candidates, best first. An empty result
// means no match; it is not an error.
func Rank(job *model.Job, candidates []model.Worker) []string {
	sorted := Sorted(job, candidates)
	ids := make([]string, len(sorted))
	for i := range sorted {
		ids[i] = sorted[i].ID
	}
	return ids
}

// Top returns up to n ranked entries for display. Workers with equal scores
// share a rank and the next distinct score takes the following rank.
func Top(job *model.Job, candidates []model.Worker, n int) []types.Entry {
	if n < 1 {
		return []types.Entry{}
	}
	sorted := Sorted(job, candidates)
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]types.Entry, len(sorted))
	for i := range sorted {
		out[i] = types.Entry{WorkerID: sorted[i].ID, Score: sorted[i].PerformanceScore}
	}
	assignRanksWithTies(out)
	return out
}

// assignRanksWithTies assigns dense ranks to entries already in rank order.
func assignRanksWithTies(entries []types.Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}
