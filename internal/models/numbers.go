package models

import "time"

// NumberSet is the payload a solver returns for a numbers request. FetchedAt
// records when the solver produced it, which drives cache staleness.
type NumberSet struct {
	Numbers   []int     `json:"numbers"`
	Method    string    `json:"method"`
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale,omitempty"` // Indicates data served from stale cache
}

// Sum adds the requested positions of the set. Positions outside the slice
// are skipped rather than treated as errors.
func (n NumberSet) Sum(positions ...int) int {
	total := 0
	for _, p := range positions {
		if p < 0 || p >= len(n.Numbers) {
			continue
		}
		total += n.Numbers[p]
	}
	return total
}
