package claimrace

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
)

var sizes = []string{"light", "medium", "heavy"}

// generateWorkers creates n available workers with random skills and scores.
// Every worker carries the first skill so skill filters never empty a race.
func generateWorkers(n int) []Worker {
	out := make([]Worker, n)
	for i := range out {
		skills := []string{skillPool[0]}
		for _, s := range skillPool[1:] {
			if rand.IntN(2) == 0 {
				skills = append(skills, s)
			}
		}
		out[i] = Worker{
			ID:               "race-w-" + uuid.NewString(),
			Name:             "mover " + strconv.Itoa(i+1),
			Available:        true,
			PerformanceScore: float64(rand.IntN(500)) / 100,
			Skills:           skills,
		}
	}
	return out
}

// generateJobs creates n open jobs.
func generateJobs(n int) []Job {
	out := make([]Job, n)
	for i := range out {
		j := Job{
			ID:    "race-j-" + uuid.NewString(),
			Size:  sizes[rand.IntN(len(sizes))],
			Price: minPrice + rand.Int64N(priceSpread),
		}
		if rand.IntN(2) == 0 {
			j.RequiredSkills = []string{skillPool[0]}
		}
		out[i] = j
	}
	return out
}

// contenders picks k distinct workers for one job, starting at a random
// offset so contention spreads across the pool.
func contenders(workers []Worker, k int) []Worker {
	if k > len(workers) {
		k = len(workers)
	}
	off := rand.IntN(len(workers))
	out := make([]Worker, k)
	for i := range out {
		out[i] = workers[(off+i)%len(workers)]
	}
	return out
}
