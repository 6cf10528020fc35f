// Package util provides randomization helpers for the Pipkin application.
package util

import (
	"math/rand/v2"
	"time"
)

// Rand is the random source consumed by generation and reward code.
// Production code uses DefaultRand; tests supply a deterministic sequence.
type Rand interface {
	// IntN returns a uniform int in [0, n). n must be > 0.
	IntN(n int) int
	// Float64 returns a uniform float64 in [0.0, 1.0).
	Float64() float64
}

// DefaultRand returns the process-wide math/rand/v2 backed source.
func DefaultRand() Rand {
	return defaultRand{}
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int   { return rand.IntN(n) }
func (defaultRand) Float64() float64 { return rand.Float64() }

// WeightedChoice picks an index from weights proportionally to each weight.
// Zero-weight entries are never picked. Returns -1 when no weight is positive.
func WeightedChoice(r Rand, weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	pick := r.IntN(total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if pick < w {
			return i
		}
		pick -= w
	}
	return -1
}

// TimeBetween returns a uniformly random instant in [start, end).
// When the interval is empty or inverted, start is returned unchanged.
func TimeBetween(r Rand, start, end time.Time) time.Time {
	span := end.Sub(start)
	secs := int(span / time.Second)
	if secs <= 0 {
		return start
	}
	offset := time.Duration(r.IntN(secs)) * time.Second
	return start.Add(offset)
}

// Jitter returns a random duration in [0, max). Non-positive max yields 0.
func Jitter(r Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	secs := int(max / time.Second)
	if secs <= 0 {
		return 0
	}
	return time.Duration(r.IntN(secs)) * time.Second
}
