package pacer

import (
	"math"

	"github.com/Iron-Ham/allocpacer/internal/errors"
)

// Phase is a stage of the collection cycle, or the idle gap between cycles.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseMark
	PhaseEvacuation
	PhaseUpdateReferences
)

// String returns the phase name used in logs and metrics labels.
func (ph Phase) String() string {
	switch ph {
	case PhaseIdle:
		return "idle"
	case PhaseMark:
		return "mark"
	case PhaseEvacuation:
		return "evacuation"
	case PhaseUpdateReferences:
		return "update-refs"
	default:
		return "unknown"
	}
}

// Next returns the phase that follows ph in a concurrent cycle.
func (ph Phase) Next() Phase {
	switch ph {
	case PhaseIdle:
		return PhaseMark
	case PhaseMark:
		return PhaseEvacuation
	case PhaseEvacuation:
		return PhaseUpdateReferences
	default:
		return PhaseIdle
	}
}

// Phase multipliers: each active phase charges for the number of passes
// over the heap that remain in the cycle, counting itself.
const (
	markPhasesLeft       = 3
	evacuationPhasesLeft = 2
	updateRefsPhasesLeft = 1

	// surcharge biases repayment to finish slightly before the phase does.
	surcharge = 1.1
)

// Plan is the (allowance, tax) pair computed for one phase, along with the
// heap figures it was derived from.
type Plan struct {
	Phase Phase

	// Work is the bytes the phase expects to process: used bytes for mark
	// and update-references, collection-set live bytes for evacuation,
	// capacity for idle.
	Work uint64
	Free uint64

	// NonTaxable is the allowance in bytes granted at the phase start.
	NonTaxable uint64
	// Taxable is the remaining free space the tax is spread over. Zero for idle.
	Taxable uint64

	TaxRate     float64
	BudgetWords int64
}

// MarkPlan assumes the whole used region is live and will be walked by all
// three phases, so it charges three times the used-to-taxable ratio.
func MarkPlan(used, free uint64, slackPercent uint) Plan {
	return cyclePlan(PhaseMark, used, free, slackPercent, markPhasesLeft)
}

// EvacuationPlan charges against the collection set's known live bytes for
// the two phases left in the cycle.
func EvacuationPlan(csetLive, free uint64, slackPercent uint) Plan {
	return cyclePlan(PhaseEvacuation, csetLive, free, slackPercent, evacuationPhasesLeft)
}

// UpdateReferencesPlan charges against used bytes for the final phase.
func UpdateReferencesPlan(used, free uint64, slackPercent uint) Plan {
	return cyclePlan(PhaseUpdateReferences, used, free, slackPercent, updateRefsPhasesLeft)
}

// IdlePlan grants a flat share of capacity at tax 1. It bootstraps the idle
// control loop, which tops the budget up as it observes allocations.
func IdlePlan(capacity uint64, idleSlackPercent uint) Plan {
	allowance := PercentOf(capacity, idleSlackPercent)
	return Plan{
		Phase:       PhaseIdle,
		Work:        capacity,
		NonTaxable:  allowance,
		TaxRate:     1,
		BudgetWords: budgetWords(allowance, 1),
	}
}

// cyclePlan panics with ErrNoTaxableSpace when no free space is left to tax.
// Callers must check free space before entering a phase.
func cyclePlan(phase Phase, work, free uint64, slackPercent uint, phasesLeft float64) Plan {
	nonTaxable := PercentOf(free, slackPercent)
	if nonTaxable >= free {
		panic(errors.NewPacerError("compute phase tax", errors.ErrNoTaxableSpace).WithPhase(phase.String()))
	}
	taxable := free - nonTaxable

	tax := float64(work) / float64(taxable)
	tax *= phasesLeft
	tax = math.Max(1, tax)
	tax *= surcharge

	return Plan{
		Phase:       phase,
		Work:        work,
		Free:        free,
		NonTaxable:  nonTaxable,
		Taxable:     taxable,
		TaxRate:     tax,
		BudgetWords: budgetWords(nonTaxable, tax),
	}
}

// PercentOf computes floor(v * pct / 100) without overflowing v * pct.
func PercentOf(v uint64, pct uint) uint64 {
	p := uint64(pct)
	return v/100*p + v%100*p/100
}

// budgetWords converts an allowance in bytes, pre-multiplied by the tax
// rate, to heap words. The product is truncated before the shift.
func budgetWords(allowanceBytes uint64, tax float64) int64 {
	scaled := float64(allowanceBytes) * tax
	if scaled >= math.MaxInt64 {
		return math.MaxInt64 >> LogWordSize
	}
	return int64(scaled) >> LogWordSize
}
