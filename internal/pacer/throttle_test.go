package pacer

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func TestPaceForAllocation_FastPath(t *testing.T) {
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{})
	p.Budget().Replace(1000, 1)

	p.PaceForAllocation(100)

	if words, _ := p.State(); words != 900 {
		t.Errorf("budget = %d, want 900", words)
	}
	if mc.Sleeps() != 0 {
		t.Errorf("fast path slept %d times, want 0", mc.Sleeps())
	}
	if p.Histogram().Total() != 0 {
		t.Errorf("fast path recorded %d delays, want 0", p.Histogram().Total())
	}
}

func TestPaceForAllocation_ChargesTax(t *testing.T) {
	p, _ := newManualPacer(t, DefaultConfig(), &fakeHeap{})
	p.Budget().Replace(1000, 2.5)

	p.PaceForAllocation(10)

	if words, _ := p.State(); words != 975 {
		t.Errorf("budget = %d, want 975", words)
	}
}

func TestPaceForAllocation_MinimumCost(t *testing.T) {
	p, _ := newManualPacer(t, DefaultConfig(), &fakeHeap{})
	p.Budget().Replace(10, 1)

	p.PaceForAllocation(0)

	if words, _ := p.State(); words != 9 {
		t.Errorf("zero-word allocation left budget %d, want 9", words)
	}
}

func TestPaceForAllocation_WaitsForProgress(t *testing.T) {
	rec := &fakeRecorder{}
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{}, WithRecorder(rec))
	p.Budget().Replace(0, 1)

	mc.OnSleep(func(total int) {
		if total == 3 {
			p.ReportProgress(100)
		}
	})

	p.PaceForAllocation(50)

	if mc.Sleeps() != 3 {
		t.Errorf("sleeps = %d, want 3", mc.Sleeps())
	}
	if words, _ := p.State(); words != 50 {
		t.Errorf("budget = %d, want 50", words)
	}
	// 3 ms lands in [2, 4).
	if got := p.Histogram().Level(2); got != 1 {
		t.Errorf("level 2 count = %d, want 1", got)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 3*time.Millisecond {
		t.Errorf("recorded delays = %v, want [3ms]", rec.delays)
	}
	if rec.forced != 0 {
		t.Errorf("forced = %d, want 0", rec.forced)
	}
}

func TestPaceForAllocation_RepricesAfterPhaseChange(t *testing.T) {
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{})
	p.Budget().Replace(0, 4)

	mc.OnSleep(func(total int) {
		if total == 1 {
			p.Budget().Replace(100, 1)
		}
	})

	p.PaceForAllocation(10)

	if words, _ := p.State(); words != 90 {
		t.Errorf("budget = %d, want 90 (claim priced at the new rate)", words)
	}
}

func TestPaceForAllocation_ForcedAfterMaxDelay(t *testing.T) {
	rec := &fakeRecorder{}
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{}, WithRecorder(rec))
	p.Budget().Replace(0, 1)

	p.PaceForAllocation(64)

	// The loop gives up on the first sleep that pushes elapsed past 10 ms.
	if mc.Sleeps() != 11 {
		t.Errorf("sleeps = %d, want 11", mc.Sleeps())
	}
	if words, _ := p.State(); words != -64 {
		t.Errorf("budget = %d, want -64", words)
	}
	// 11 ms lands in [8, 16).
	if got := p.Histogram().Level(4); got != 1 {
		t.Errorf("level 4 count = %d, want 1", got)
	}
	if rec.forced != 1 {
		t.Errorf("forced = %d, want 1", rec.forced)
	}
}

func TestClaimCost_Saturates(t *testing.T) {
	p, _ := newManualPacer(t, DefaultConfig(), &fakeHeap{})

	tests := []struct {
		name  string
		words uint64
		tax   float64
		want  int64
	}{
		{"truncates", 10, 2.5, 25},
		{"floor of one", 0, 33, 1},
		{"huge allocation", 1 << 62, 33, math.MaxInt64},
		{"max words", math.MaxUint64, 1, math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Budget().Replace(0, tt.tax)
			if got := p.claimCost(tt.words); got != tt.want {
				t.Errorf("claimCost(%d) = %d, want %d", tt.words, got, tt.want)
			}
		})
	}
}

func TestPaceForAllocation_HugeAllocationIsNotFree(t *testing.T) {
	rec := &fakeRecorder{}
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{}, WithRecorder(rec))
	p.Budget().Replace(1000, 33)

	p.PaceForAllocation(1 << 62)

	if mc.Sleeps() == 0 {
		t.Error("a claim far above the budget should take the slow path")
	}
	if rec.forced != 1 {
		t.Errorf("forced = %d, want 1", rec.forced)
	}
	if words, _ := p.State(); words != 1000-math.MaxInt64 {
		t.Errorf("budget = %d, want %d", words, int64(1000-math.MaxInt64))
	}
}

func TestPaceForAllocation_ZeroMaxDelay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDelay = 0
	p, mc := newManualPacer(t, cfg, &fakeHeap{})
	p.Budget().Replace(0, 1)

	p.PaceForAllocation(1)

	if mc.Sleeps() != 1 {
		t.Errorf("sleeps = %d, want 1", mc.Sleeps())
	}
	if words, _ := p.State(); words != -1 {
		t.Errorf("budget = %d, want -1", words)
	}
}

func TestPaceForAllocationContext_Canceled(t *testing.T) {
	p, mc := newManualPacer(t, DefaultConfig(), &fakeHeap{})
	p.Budget().Replace(0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.PaceForAllocationContext(ctx, 8)

	if mc.Sleeps() != 0 {
		t.Errorf("sleeps = %d, want 0", mc.Sleeps())
	}
	if words, _ := p.State(); words != -8 {
		t.Errorf("budget = %d, want -8", words)
	}
	if got := p.Histogram().Level(0); got != 1 {
		t.Errorf("level 0 count = %d, want 1", got)
	}
}

func TestPaceForAllocation_RealClockBound(t *testing.T) {
	if testing.Short() {
		t.Skip("uses the wall clock")
	}

	cfg := DefaultConfig()
	cfg.MaxDelay = 5 * time.Millisecond
	p := New(cfg, &fakeHeap{})
	p.Budget().Replace(0, 1)

	const goroutines = 4
	var wg sync.WaitGroup
	durations := make([]time.Duration, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start := time.Now()
			p.PaceForAllocation(16)
			durations[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	// Timer slack on loaded machines is generous; the loop itself must
	// stop after the first quantum past the limit.
	limit := cfg.MaxDelay + DefaultSleepQuantum + 250*time.Millisecond
	for i, d := range durations {
		if d > limit {
			t.Errorf("goroutine %d waited %v, want <= %v", i, d, limit)
		}
	}
	if words, _ := p.State(); words != -16*goroutines {
		t.Errorf("budget = %d, want %d", words, -16*goroutines)
	}
	if p.Histogram().Total() != goroutines {
		t.Errorf("histogram total = %d, want %d", p.Histogram().Total(), goroutines)
	}
}
