package pacer

import (
	"math"
	"sync/atomic"
)

// Budget is the shared pacing state: a signed allowance in heap words and
// the tax rate charged per allocated word. The two fields are separate
// atomics, so a reader racing a Replace may pair a new budget with the old
// rate (or the reverse) for one claim.
type Budget struct {
	words   atomic.Int64
	taxBits atomic.Uint64
}

// Read loads the budget and the tax rate independently.
func (b *Budget) Read() (words int64, taxRate float64) {
	return b.words.Load(), math.Float64frombits(b.taxBits.Load())
}

// TaxRate loads the current tax rate.
func (b *Budget) TaxRate() float64 {
	return math.Float64frombits(b.taxBits.Load())
}

// Replace installs a new budget and tax rate, discarding whatever
// decrements or progress were recorded against the previous budget.
func (b *Budget) Replace(words int64, taxRate float64) {
	b.words.Store(words)
	b.taxBits.Store(math.Float64bits(taxRate))
}

// TryDecrement subtracts cost when the current budget covers it. It
// returns false without touching the budget otherwise.
func (b *Budget) TryDecrement(cost int64) bool {
	for {
		cur := b.words.Load()
		if cur < cost {
			return false
		}
		if b.words.CompareAndSwap(cur, cur-cost) {
			return true
		}
	}
}

// ForceDecrement subtracts a non-negative cost unconditionally. The budget
// may go negative, saturating at MinInt64; the next phase's Replace or
// collector progress repays it.
func (b *Budget) ForceDecrement(cost int64) {
	for {
		cur := b.words.Load()
		next := int64(math.MinInt64)
		if cur >= math.MinInt64+cost {
			next = cur - cost
		}
		if b.words.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Add credits words of collector progress to the budget.
func (b *Budget) Add(words int64) {
	b.words.Add(words)
}
