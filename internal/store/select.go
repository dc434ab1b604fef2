package store

import (
	"math"
	"math/bits"
	"math/rand/v2"
	"slices"
	"time"
)

// Weighting selects how a candidate's draw weight is computed.
type Weighting string

const (
	// WeightByPriority multiplies staleness by priority.
	WeightByPriority Weighting = "priority"
	// WeightPlain uses staleness alone.
	WeightPlain Weighting = "plain"
)

// Selector draws tasks at random, favouring those left untouched the longest
// and, in priority mode, those with the highest priority. A candidate's weight
// is elapsed seconds times priority (or elapsed seconds alone in plain mode),
// floored at 1 so zero-priority and just-touched tasks can still be drawn.
type Selector struct {
	Now       time.Time
	Cutoff    time.Duration
	Weighting Weighting
	Rand      *rand.Rand
}

type weighted struct {
	index  int
	weight uint64
}

// Draw picks up to n distinct candidates. Candidates touched less than
// Cutoff ago are never eligible; n is clamped to the number of eligible
// candidates. The result is nil when nothing is eligible.
func (s Selector) Draw(candidates []Task, n int) []Task {
	pool := s.eligible(candidates)
	if len(pool) == 0 || n <= 0 {
		return nil
	}
	n = min(n, len(pool))
	r := s.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	out := make([]Task, 0, n)
	cumulative := make([]uint64, 0, len(pool))
	for range n {
		cumulative = cumulativeWeights(cumulative[:0], pool)
		pos := lowerBound(cumulative, sampleInclusive(r, cumulative[len(cumulative)-1]))
		out = append(out, candidates[pool[pos].index].clone())
		// drawn positions leave the pool, so draws are distinct
		pool = slices.Delete(pool, pos, pos+1)
	}
	return out
}

func (s Selector) eligible(candidates []Task) []weighted {
	cutoff := int64(s.Cutoff / time.Second)
	var pool []weighted
	for i, t := range candidates {
		elapsed := int64(s.Now.Sub(t.LastTouched()) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed < cutoff {
			continue
		}
		pool = append(pool, weighted{index: i, weight: s.weight(uint64(elapsed), t.Priority())})
	}
	return pool
}

// weight never returns zero so every eligible candidate can be drawn.
func (s Selector) weight(elapsed uint64, priority uint16) uint64 {
	w := elapsed
	if s.Weighting != WeightPlain {
		w = saturatingMul(elapsed, uint64(priority))
	}
	return max(w, 1)
}

func cumulativeWeights(dst []uint64, pool []weighted) []uint64 {
	var total uint64
	for _, p := range pool {
		total = saturatingAdd(total, p.weight)
		dst = append(dst, total)
	}
	return dst
}

// sampleInclusive returns a uniform integer in [0, total].
func sampleInclusive(r *rand.Rand, total uint64) uint64 {
	if total == math.MaxUint64 {
		return r.Uint64()
	}
	return r.Uint64N(total + 1)
}

// lowerBound returns the first index whose cumulative weight is >= v.
func lowerBound(cumulative []uint64, v uint64) int {
	i, _ := slices.BinarySearch(cumulative, v)
	if i >= len(cumulative) {
		i = len(cumulative) - 1
	}
	return i
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}
