// Package sharding places queues on shards and routes every queue, message
// and claim operation to the driver of the shard that owns the queue.
package sharding

import (
	"math/rand/v2"
)

// Weighted is anything the selector can choose between.
type Weighted interface {
	GetWeight() int
}

// SelectWeighted picks one candidate with probability proportional to its
// weight. Candidates with a weight of 0 or less are never picked. It returns
// false when nothing can be picked.
func SelectWeighted[T Weighted](candidates []T) (T, bool) {
	return selectWeighted(candidates, randIntN)
}

// selectWeighted takes intn so tests can fix the draw. intn(n) must return a
// value in [0, n).
func selectWeighted[T Weighted](candidates []T, intn func(int) int) (T, bool) {
	var zero T
	total := 0
	for _, c := range candidates {
		if w := c.GetWeight(); w > 0 {
			total += w
		}
	}
	if total == 0 {
		return zero, false
	}

	point := intn(total)
	cumulative := 0
	for _, c := range candidates {
		w := c.GetWeight()
		if w <= 0 {
			continue
		}
		cumulative += w
		if point < cumulative {
			return c, true
		}
	}
	// unreachable while intn honors its contract
	return zero, false
}

var randIntN = rand.IntN
