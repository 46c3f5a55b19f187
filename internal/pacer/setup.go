package pacer

import "math"

const mb = 1 << 20

// SetupForMark installs the mark-phase budget. Called once when the
// concurrent mark starts.
func (p *Pacer) SetupForMark() Plan {
	p.mustBeEnabled("setup for mark")

	plan := MarkPlan(p.heap.UsedBytes(), p.heap.FreeAvailableBytes(), p.cfg.CycleSlackPercent)
	p.install(plan)

	p.logger.WithPhase(plan.Phase.String()).Info("pacer for mark",
		"used_mb", plan.Work/mb,
		"free_mb", plan.Free/mb,
		"non_taxable_mb", plan.NonTaxable/mb,
		"tax_rate", roundTenth(plan.TaxRate),
	)
	return plan
}

// SetupForEvacuation installs the evacuation budget once the collection
// set, and therefore its live size, is known.
func (p *Pacer) SetupForEvacuation() Plan {
	p.mustBeEnabled("setup for evacuation")

	plan := EvacuationPlan(p.heap.CollectionSetLiveBytes(), p.heap.FreeAvailableBytes(), p.cfg.CycleSlackPercent)
	p.install(plan)

	p.logger.WithPhase(plan.Phase.String()).Info("pacer for evacuation",
		"cset_mb", plan.Work/mb,
		"free_mb", plan.Free/mb,
		"non_taxable_mb", plan.NonTaxable/mb,
		"tax_rate", roundTenth(plan.TaxRate),
	)
	return plan
}

// SetupForUpdateReferences installs the budget for the last phase.
func (p *Pacer) SetupForUpdateReferences() Plan {
	p.mustBeEnabled("setup for update references")

	plan := UpdateReferencesPlan(p.heap.UsedBytes(), p.heap.FreeAvailableBytes(), p.cfg.CycleSlackPercent)
	p.install(plan)

	p.logger.WithPhase(plan.Phase.String()).Info("pacer for update-refs",
		"used_mb", plan.Work/mb,
		"free_mb", plan.Free/mb,
		"non_taxable_mb", plan.NonTaxable/mb,
		"tax_rate", roundTenth(plan.TaxRate),
	)
	return plan
}

// SetupForIdle installs the flat idle budget between cycles.
func (p *Pacer) SetupForIdle() Plan {
	p.mustBeEnabled("setup for idle")

	plan := IdlePlan(p.heap.HeapCapacityBytes(), p.cfg.IdleSlackPercent)
	p.install(plan)

	p.logger.WithPhase(plan.Phase.String()).Info("pacer for idle",
		"initial_mb", plan.NonTaxable/mb,
		"tax_rate", roundTenth(plan.TaxRate),
	)
	return plan
}

// install replaces the shared budget with the plan's values.
func (p *Pacer) install(plan Plan) {
	p.budget.Replace(plan.BudgetWords, plan.TaxRate)
	p.phase.Store(int32(plan.Phase))
	if p.recorder != nil {
		p.recorder.PhaseInstalled(plan.Phase, plan.BudgetWords, plan.TaxRate)
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
