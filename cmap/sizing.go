package cmap

import (
	"math"

	"github.com/joeycumines/go-lockfree/errs"
	"github.com/joeycumines/go-lockfree/internal/primes"
)

const (
	defaultLevels    = 13
	defaultOccupancy = 0.989
)

// computeLevelCapacities realizes spec.md §4.F's sizing formula:
// next_prime(n / -ln(1-rho)) per level, iteratively subtracting
// capacity*rho from the remaining expected count, followed by one
// bootstrapping pass that rescales every level's capacity by
// n*expectedCapacity/total so the levels' capacities sum close to the
// caller's requested expectedCapacity rather than whatever the
// iterative pass happened to produce.
//
// The "share" spec.md's Open Question refers to (the per-level minimum
// a rescaled level must not fall under) is the capacity the first,
// unscaled pass computed for that level; if rescaling ever drives a
// level below its own share, construction fails with
// errs.ErrLevelUndersized rather than silently proceeding with an
// undersized level, per spec.md §9's explicit "do not guess" guidance.
func computeLevelCapacities(expectedCapacity, levels int, occupancy float64) ([]int, error) {
	divisor := -math.Log(1 - occupancy)
	shares := make([]int, levels)
	remaining := float64(expectedCapacity)
	for i := 0; i < levels; i++ {
		want := remaining / divisor
		if want < 2 {
			want = 2
		}
		share := primes.NextPrime(int(math.Ceil(want)))
		shares[i] = share
		remaining -= float64(share) * occupancy
		if remaining < 0 {
			remaining = 0
		}
	}

	var total int
	for _, s := range shares {
		total += s
	}

	capacities := make([]int, levels)
	for i, share := range shares {
		scaled := int(math.Round(float64(share) * float64(expectedCapacity) / float64(total)))
		if scaled < 2 {
			scaled = 2
		}
		capacities[i] = primes.NextPrime(scaled)
		if capacities[i] < share {
			return nil, errs.ErrLevelUndersized
		}
	}
	return capacities, nil
}
