package pacer

import (
	"math/bits"
	"sync/atomic"
)

// histogramLevels covers every uint64 millisecond value: level 0 holds zero
// delays and level c >= 1 holds [2^(c-1), 2^c).
const histogramLevels = 65

// DelayHistogram counts pacing delays in power-of-two millisecond buckets.
// Add is safe for concurrent use; readers see approximate counts while
// writers are active.
type DelayHistogram struct {
	levels [histogramLevels]atomic.Uint64
}

// Bucket is one populated histogram row.
type Bucket struct {
	FromMs uint64 `json:"from_ms" yaml:"from_ms"`
	ToMs   uint64 `json:"to_ms" yaml:"to_ms"`
	Count  uint64 `json:"count" yaml:"count"`
}

// levelFor returns 0 for ms == 0, otherwise floor(log2(ms)) + 1.
func levelFor(ms uint64) int {
	return bits.Len64(ms)
}

// Add records one delay of ms milliseconds.
func (h *DelayHistogram) Add(ms uint64) {
	h.levels[levelFor(ms)].Add(1)
}

// Level returns the count stored at level c, or 0 when c is out of range.
func (h *DelayHistogram) Level(c int) uint64 {
	if c < 0 || c >= histogramLevels {
		return 0
	}
	return h.levels[c].Load()
}

// MinLevel returns the lowest populated level, or -1 when empty.
func (h *DelayHistogram) MinLevel() int {
	for c := 0; c < histogramLevels; c++ {
		if h.levels[c].Load() > 0 {
			return c
		}
	}
	return -1
}

// MaxLevel returns the highest populated level, or -1 when empty.
func (h *DelayHistogram) MaxLevel() int {
	for c := histogramLevels - 1; c >= 0; c-- {
		if h.levels[c].Load() > 0 {
			return c
		}
	}
	return -1
}

// Total returns the sum of all level counts.
func (h *DelayHistogram) Total() uint64 {
	var total uint64
	for c := 0; c < histogramLevels; c++ {
		total += h.levels[c].Load()
	}
	return total
}

// Buckets returns every level between the lowest and highest populated
// one, inclusive. Empty levels inside that range are included with a zero
// count.
func (h *DelayHistogram) Buckets() []Bucket {
	lo, hi := h.MinLevel(), h.MaxLevel()
	if lo < 0 {
		return nil
	}
	out := make([]Bucket, 0, hi-lo+1)
	for c := lo; c <= hi; c++ {
		from, to := bucketBounds(c)
		out = append(out, Bucket{FromMs: from, ToMs: to, Count: h.Level(c)})
	}
	return out
}

// bucketBounds returns the [from, to) millisecond range of level c. The top
// level's upper bound saturates at the largest uint64.
func bucketBounds(c int) (from, to uint64) {
	if c == 0 {
		return 0, 1
	}
	from = uint64(1) << (c - 1)
	if c >= 64 {
		return from, ^uint64(0)
	}
	return from, uint64(1) << c
}
