package util

import (
	"testing"
	"time"
)

// seqRand replays a fixed sequence of IntN results.
type seqRand struct {
	seq []int
	pos int
}

func (r *seqRand) IntN(n int) int {
	if r.pos >= len(r.seq) {
		return 0
	}
	v := r.seq[r.pos] % n
	r.pos++
	return v
}

func (r *seqRand) Float64() float64 { return 0 }

func TestWeightedChoiceSkipsZeroWeights(t *testing.T) {
	weights := []int{0, 10, 0, 5}
	for pick := 0; pick < 15; pick++ {
		r := &seqRand{seq: []int{pick}}
		got := WeightedChoice(r, weights)
		if got != 1 && got != 3 {
			t.Errorf("pick %d: chose zero-weight index %d", pick, got)
		}
	}
}

func TestWeightedChoiceProportional(t *testing.T) {
	weights := []int{3, 7}
	counts := map[int]int{}
	for pick := 0; pick < 10; pick++ {
		r := &seqRand{seq: []int{pick}}
		counts[WeightedChoice(r, weights)]++
	}
	if counts[0] != 3 || counts[1] != 7 {
		t.Errorf("expected exact proportional split 3/7, got %v", counts)
	}
}

func TestWeightedChoiceNoPositiveWeights(t *testing.T) {
	r := &seqRand{seq: []int{0}}
	if got := WeightedChoice(r, []int{0, 0}); got != -1 {
		t.Errorf("expected -1 for all-zero weights, got %d", got)
	}
	if got := WeightedChoice(r, nil); got != -1 {
		t.Errorf("expected -1 for empty weights, got %d", got)
	}
}

func TestTimeBetweenStaysInside(t *testing.T) {
	start := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	for pick := 0; pick < 5; pick++ {
		r := &seqRand{seq: []int{pick * 700}}
		got := TimeBetween(r, start, end)
		if got.Before(start) || !got.Before(end) {
			t.Errorf("pick %d: %v outside [%v, %v)", pick, got, start, end)
		}
	}
}

func TestTimeBetweenEmptyInterval(t *testing.T) {
	start := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	if got := TimeBetween(&seqRand{}, start, start); !got.Equal(start) {
		t.Errorf("empty interval should return start, got %v", got)
	}
	if got := TimeBetween(&seqRand{}, start, start.Add(-time.Minute)); !got.Equal(start) {
		t.Errorf("inverted interval should return start, got %v", got)
	}
}

func TestJitterBounds(t *testing.T) {
	if got := Jitter(&seqRand{seq: []int{59}}, time.Minute); got >= time.Minute || got < 0 {
		t.Errorf("jitter %v out of [0, 1m)", got)
	}
	if got := Jitter(&seqRand{}, 0); got != 0 {
		t.Errorf("zero max should yield 0, got %v", got)
	}
}
