package pacer

import (
	"context"
	"math"
	"time"
)

// PaceForAllocation charges an allocation of words heap words against the
// shared budget, waiting for collector progress when the budget is short.
// It always returns within MaxDelay plus one sleep quantum. When the wait
// runs out the charge is forced and the budget may go negative.
func (p *Pacer) PaceForAllocation(words uint64) {
	p.PaceForAllocationContext(context.Background(), words)
}

// PaceForAllocationContext is PaceForAllocation with a cancellation hook.
// A done ctx ends the wait the same way reaching MaxDelay does: the delay
// is recorded, the charge is forced and the call returns.
func (p *Pacer) PaceForAllocationContext(ctx context.Context, words uint64) {
	p.mustBeEnabled("pace for allocation")

	if p.claim(words) {
		return
	}

	maxMs := uint64(p.cfg.MaxDelay / time.Millisecond)
	start := p.clock.Now()

	for {
		sleepErr := p.clock.Sleep(ctx, p.quantum)

		elapsed := p.clock.Now().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		ms := uint64(elapsed / time.Millisecond)

		if sleepErr != nil || ms > maxMs {
			p.delays.Add(ms)
			p.budget.ForceDecrement(p.claimCost(words))
			p.observe(elapsed, true)
			return
		}

		if p.claim(words) {
			p.delays.Add(ms)
			p.observe(elapsed, false)
			return
		}
	}
}

// claim attempts one budget claim priced at the current tax rate.
func (p *Pacer) claim(words uint64) bool {
	return p.budget.TryDecrement(p.claimCost(words))
}

// claimCost is words times the current tax rate, in [1, MaxInt64].
func (p *Pacer) claimCost(words uint64) int64 {
	scaled := float64(words) * p.budget.TaxRate()
	if scaled >= math.MaxInt64 {
		return math.MaxInt64
	}
	if cost := int64(scaled); cost > 1 {
		return cost
	}
	return 1
}

func (p *Pacer) observe(delay time.Duration, forced bool) {
	if p.recorder != nil {
		p.recorder.AllocationPaced(delay, forced)
	}
}
