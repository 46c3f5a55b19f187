package pacer

import (
	"math"
	"testing"

	"github.com/Iron-Ham/allocpacer/internal/errors"
)

const floatTolerance = 1e-9

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseMark, "mark"},
		{PhaseEvacuation, "evacuation"},
		{PhaseUpdateReferences, "update-refs"},
		{Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestPhase_NextCycles(t *testing.T) {
	ph := PhaseIdle
	want := []Phase{PhaseMark, PhaseEvacuation, PhaseUpdateReferences, PhaseIdle}
	for i, w := range want {
		ph = ph.Next()
		if ph != w {
			t.Fatalf("step %d: Next() = %v, want %v", i, ph, w)
		}
	}
}

func TestMarkPlan_Scenario(t *testing.T) {
	plan := MarkPlan(90*mb, 10*mb, 10)

	if plan.NonTaxable != 1*mb {
		t.Errorf("NonTaxable = %d, want %d", plan.NonTaxable, 1*mb)
	}
	if plan.Taxable != 9*mb {
		t.Errorf("Taxable = %d, want %d", plan.Taxable, 9*mb)
	}
	if math.Abs(plan.TaxRate-33.0) > floatTolerance {
		t.Errorf("TaxRate = %v, want 33.0", plan.TaxRate)
	}
	wantWords := int64(float64(mb)*plan.TaxRate) >> LogWordSize
	if plan.BudgetWords != wantWords {
		t.Errorf("BudgetWords = %d, want %d", plan.BudgetWords, wantWords)
	}
	if plan.Phase != PhaseMark {
		t.Errorf("Phase = %v, want mark", plan.Phase)
	}
}

func TestEvacuationPlan(t *testing.T) {
	plan := EvacuationPlan(18*mb, 10*mb, 10)

	// 2 * 18 / 9 = 4, times the surcharge.
	if math.Abs(plan.TaxRate-4.4) > floatTolerance {
		t.Errorf("TaxRate = %v, want 4.4", plan.TaxRate)
	}
	if plan.Work != 18*mb {
		t.Errorf("Work = %d, want cset live bytes", plan.Work)
	}
}

func TestUpdateReferencesPlan(t *testing.T) {
	plan := UpdateReferencesPlan(45*mb, 10*mb, 10)

	// 1 * 45 / 9 = 5, times the surcharge.
	if math.Abs(plan.TaxRate-5.5) > floatTolerance {
		t.Errorf("TaxRate = %v, want 5.5", plan.TaxRate)
	}
}

func TestIdlePlan_Scenario(t *testing.T) {
	plan := IdlePlan(1000*mb, 1)

	if plan.NonTaxable != 10*mb {
		t.Errorf("NonTaxable = %d, want %d", plan.NonTaxable, 10*mb)
	}
	if plan.TaxRate != 1 {
		t.Errorf("TaxRate = %v, want exactly 1", plan.TaxRate)
	}
	if plan.BudgetWords != 10*mb/WordSize {
		t.Errorf("BudgetWords = %d, want %d", plan.BudgetWords, 10*mb/WordSize)
	}
}

func TestPlans_TaxFloor(t *testing.T) {
	inputs := []struct {
		name       string
		work, free uint64
		slack      uint
	}{
		{"empty heap", 0, 100 * mb, 10},
		{"tiny work", 1, 100 * mb, 0},
		{"balanced", 30 * mb, 100 * mb, 50},
		{"heavy", 900 * mb, 1 * mb, 99},
		{"single free byte", 1 << 30, 1, 10},
	}

	for _, in := range inputs {
		t.Run(in.name, func(t *testing.T) {
			for _, plan := range []Plan{
				MarkPlan(in.work, in.free, in.slack),
				EvacuationPlan(in.work, in.free, in.slack),
				UpdateReferencesPlan(in.work, in.free, in.slack),
			} {
				if plan.TaxRate < 1.1 {
					t.Errorf("%v TaxRate = %v, want >= 1.1", plan.Phase, plan.TaxRate)
				}
				if plan.NonTaxable+plan.Taxable != in.free {
					t.Errorf("%v allowance split %d+%d != free %d",
						plan.Phase, plan.NonTaxable, plan.Taxable, in.free)
				}
			}
		})
	}
}

func TestCyclePlan_NoTaxableSpacePanics(t *testing.T) {
	expectPacerPanic(t, errors.ErrNoTaxableSpace, func() {
		MarkPlan(10*mb, 0, 10)
	})
	expectPacerPanic(t, errors.ErrNoTaxableSpace, func() {
		EvacuationPlan(10*mb, 100, 100)
	})
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		v    uint64
		pct  uint
		want uint64
	}{
		{0, 10, 0},
		{99, 10, 9},
		{100, 10, 10},
		{1234, 33, 407},
		{^uint64(0), 50, ^uint64(0) / 2},
	}
	for _, tt := range tests {
		if got := PercentOf(tt.v, tt.pct); got != tt.want {
			t.Errorf("PercentOf(%d, %d) = %d, want %d", tt.v, tt.pct, got, tt.want)
		}
	}
}

func TestSetups_InstallPlans(t *testing.T) {
	heap := &fakeHeap{used: 90 * mb, free: 10 * mb, cset: 18 * mb, capacity: 1000 * mb}
	rec := &fakeRecorder{}
	cfg := DefaultConfig()
	cfg.IdleSlackPercent = 1
	p := New(cfg, heap, WithRecorder(rec))

	tests := []struct {
		name  string
		setup func() Plan
		phase Phase
	}{
		{"mark", p.SetupForMark, PhaseMark},
		{"evacuation", p.SetupForEvacuation, PhaseEvacuation},
		{"update-refs", p.SetupForUpdateReferences, PhaseUpdateReferences},
		{"idle", p.SetupForIdle, PhaseIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := tt.setup()
			words, tax := p.State()
			if words != plan.BudgetWords || tax != plan.TaxRate {
				t.Errorf("State() = (%d, %v), want (%d, %v)", words, tax, plan.BudgetWords, plan.TaxRate)
			}
			if p.Phase() != tt.phase {
				t.Errorf("Phase() = %v, want %v", p.Phase(), tt.phase)
			}
		})
	}

	if len(rec.phases) != 4 {
		t.Fatalf("recorder saw %d phases, want 4", len(rec.phases))
	}
	if rec.phases[1] != PhaseEvacuation {
		t.Errorf("second recorded phase = %v, want evacuation", rec.phases[1])
	}
}

func TestSetupForMark_ZeroFreePanics(t *testing.T) {
	p := New(DefaultConfig(), &fakeHeap{used: 100 * mb, free: 0})
	expectPacerPanic(t, errors.ErrNoTaxableSpace, func() { p.SetupForMark() })
}

func TestSetup_SupersedesBorrowedBudget(t *testing.T) {
	p := New(DefaultConfig(), &fakeHeap{capacity: 100 * mb})
	p.Budget().ForceDecrement(1 << 30)

	plan := p.SetupForIdle()
	if words, _ := p.State(); words != plan.BudgetWords {
		t.Errorf("budget = %d, want idle allowance %d", words, plan.BudgetWords)
	}
}
