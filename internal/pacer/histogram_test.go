package pacer

import (
	"sync"
	"testing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		ms   uint64
		want int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{7, 3},
		{8, 4},
		{10, 4},
		{15, 4},
		{16, 5},
		{1 << 63, 64},
		{^uint64(0), 64},
	}

	for _, tt := range tests {
		if got := levelFor(tt.ms); got != tt.want {
			t.Errorf("levelFor(%d) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestDelayHistogram_Empty(t *testing.T) {
	var h DelayHistogram

	if h.MinLevel() != -1 || h.MaxLevel() != -1 {
		t.Errorf("empty levels = (%d, %d), want (-1, -1)", h.MinLevel(), h.MaxLevel())
	}
	if h.Buckets() != nil {
		t.Errorf("Buckets() = %v, want nil", h.Buckets())
	}
	if h.Level(-1) != 0 || h.Level(histogramLevels) != 0 {
		t.Error("out-of-range Level() should be 0")
	}
}

func TestDelayHistogram_Buckets(t *testing.T) {
	var h DelayHistogram
	h.Add(2)
	h.Add(3)
	h.Add(12)

	got := h.Buckets()
	want := []Bucket{
		{FromMs: 2, ToMs: 4, Count: 2},
		{FromMs: 4, ToMs: 8, Count: 0},
		{FromMs: 8, ToMs: 16, Count: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("Buckets() len = %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Buckets()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDelayHistogram_ZeroBucket(t *testing.T) {
	var h DelayHistogram
	h.Add(0)
	h.Add(1)

	got := h.Buckets()
	if len(got) != 2 {
		t.Fatalf("Buckets() = %v, want 2 rows", got)
	}
	if got[0] != (Bucket{FromMs: 0, ToMs: 1, Count: 1}) {
		t.Errorf("zero bucket = %+v", got[0])
	}
	if got[1] != (Bucket{FromMs: 1, ToMs: 2, Count: 1}) {
		t.Errorf("first bucket = %+v", got[1])
	}
}

func TestDelayHistogram_TopBucket(t *testing.T) {
	from, to := bucketBounds(64)
	if from != 1<<63 || to != ^uint64(0) {
		t.Errorf("bucketBounds(64) = (%d, %d)", from, to)
	}
}

func TestDelayHistogram_ConcurrentConservation(t *testing.T) {
	const (
		goroutines = 16
		perWorker  = 5000
	)

	var h DelayHistogram
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h.Add(uint64((g * i) % 300))
			}
		}(g)
	}
	wg.Wait()

	if got := h.Total(); got != goroutines*perWorker {
		t.Errorf("Total() = %d, want %d", got, goroutines*perWorker)
	}

	var sum uint64
	for _, b := range h.Buckets() {
		sum += b.Count
	}
	if sum != goroutines*perWorker {
		t.Errorf("sum of buckets = %d, want %d", sum, goroutines*perWorker)
	}
}
