// Package collector drives a simulated concurrent collection cycle against
// a heap.Heap, installing pacer budgets at every phase boundary and
// reporting completed work as pacer progress.
package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/clock"
	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/event"
	"github.com/Iron-Ham/allocpacer/internal/heap"
	"github.com/Iron-Ham/allocpacer/internal/logging"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"github.com/Iron-Ham/allocpacer/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// Config controls the simulated collector.
type Config struct {
	// Tick is how often Run advances the current phase.
	Tick time.Duration
	// WorkRate is phase work completed per second, in bytes.
	WorkRate uint64
	// TriggerPercent is the heap occupancy that starts a cycle.
	TriggerPercent uint
	// GarbagePercent is the share of used bytes each cycle reclaims.
	GarbagePercent uint
	// CsetLivePercent is the share of used bytes evacuation copies.
	CsetLivePercent uint
}

// Stats summarizes the cycles run so far.
type Stats struct {
	Completed      uint64
	Degenerated    uint64
	ReclaimedBytes uint64
}

// Driver is the phase driver. Step and Run must be called from one
// goroutine; NotifyExhausted, Phase and Stats are safe from any goroutine.
type Driver struct {
	cfg    Config
	heap   *heap.Heap
	pacer  *pacer.Pacer
	pacing bool

	clock  clock.Clock
	bus    *event.Bus
	logger *logging.Logger
	tracer *tracing.Tracer

	phase         atomic.Int32
	cycle         uint64
	remaining     uint64 // bytes of work left in the current phase
	lastAllocated uint64 // heap.AllocatedBytes at the last idle acknowledgement
	exhausted     atomic.Bool
	started       bool

	cycleStart time.Time
	cycleCtx   context.Context
	cycleSpan  *tracing.Span
	phaseSpan  *tracing.Span

	mu    sync.Mutex
	stats Stats
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithBus publishes phase and cycle events on bus.
func WithBus(bus *event.Bus) Option {
	return func(d *Driver) { d.bus = bus }
}

// WithLogger sets the driver logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithTracer opens a span per cycle and per phase.
func WithTracer(t *tracing.Tracer) Option {
	return func(d *Driver) {
		if t != nil {
			d.tracer = t
		}
	}
}

// New builds a Driver. Budgets are installed only when p's config has
// pacing enabled.
func New(cfg Config, h *heap.Heap, p *pacer.Pacer, opts ...Option) *Driver {
	d := &Driver{
		cfg:    cfg,
		heap:   h,
		pacer:  p,
		pacing: p.Config().Enabled,
		clock:  clock.Real(),
		bus:    event.NewBus(nil),
		logger: logging.NopLogger(),
		tracer: tracing.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Phase returns the phase the driver is in.
func (d *Driver) Phase() pacer.Phase {
	return pacer.Phase(d.phase.Load())
}

// Stats returns a copy of the cycle counters.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// NotifyExhausted tells the driver a mutator could not allocate. In idle
// it starts a cycle at the next step; mid-cycle it degenerates the cycle.
func (d *Driver) NotifyExhausted() {
	d.exhausted.Store(true)
}

// Run installs the idle budget and steps once per tick until ctx is done.
// An in-flight cycle is abandoned without reclaiming.
func (d *Driver) Run(ctx context.Context) error {
	d.Start(ctx)
	defer d.endSpans(errors.ErrCanceled)

	for {
		if err := d.clock.Sleep(ctx, d.cfg.Tick); err != nil {
			return nil
		}
		if err := d.Step(ctx); err != nil {
			return err
		}
	}
}

// Start installs the initial idle budget. Step calls it if needed.
func (d *Driver) Start(ctx context.Context) {
	if d.started {
		return
	}
	d.started = true
	d.cycleCtx = ctx
	d.lastAllocated = d.heap.AllocatedBytes()

	plan := pacer.Plan{Phase: pacer.PhaseIdle}
	if d.pacing {
		plan = d.pacer.SetupForIdle()
	}
	d.phase.Store(int32(pacer.PhaseIdle))
	d.publish(event.NewPhaseChangedEvent(0, pacer.PhaseIdle.String(), pacer.PhaseIdle.String(), plan.BudgetWords, plan.TaxRate))
}

// Step advances the collector by one tick.
func (d *Driver) Step(ctx context.Context) error {
	d.Start(ctx)

	if d.Phase() == pacer.PhaseIdle {
		return d.stepIdle(ctx)
	}

	if d.exhausted.Swap(false) {
		return d.degenerate("allocation failure during "+d.Phase().String(), errors.SeverityWarning)
	}

	work := d.workPerTick()
	done := min(work, d.remaining)
	d.remaining -= done
	if d.pacing && done > 0 {
		d.pacer.ReportProgress(done >> pacer.LogWordSize)
	}

	if d.remaining == 0 {
		return d.advance(d.Phase().Next())
	}
	return nil
}

func (d *Driver) stepIdle(ctx context.Context) error {
	// Give back what mutators consumed since the last tick so idle pacing
	// only throttles bursts larger than the idle allowance.
	allocated := d.heap.AllocatedBytes()
	if d.pacing {
		if delta := allocated - d.lastAllocated; delta > 0 {
			d.pacer.ReportProgress(delta >> pacer.LogWordSize)
		}
	}
	d.lastAllocated = allocated

	triggered := d.heap.OccupancyPercent() >= uint64(d.cfg.TriggerPercent)
	if !d.exhausted.Swap(false) && !triggered {
		return nil
	}
	return d.startCycle(ctx)
}

func (d *Driver) startCycle(ctx context.Context) error {
	d.cycle++
	d.cycleStart = d.clock.Now()
	est := d.heap.BeginCycle(d.cfg.GarbagePercent, d.cfg.CsetLivePercent)

	d.cycleCtx, d.cycleSpan = d.tracer.Start(ctx, "gc.cycle",
		attribute.Int64("cycle", int64(d.cycle)),
		attribute.Int64("used_bytes", int64(est.Used)),
		attribute.Int64("garbage_bytes", int64(est.Garbage)),
	)

	d.logger.Debug("cycle started",
		"cycle", d.cycle,
		"used_mb", est.Used>>20,
		"garbage_mb", est.Garbage>>20,
		"cset_live_mb", est.CsetLive>>20,
	)
	return d.advance(pacer.PhaseMark)
}

// advance moves to the next phase in cycle order and installs its budget.
func (d *Driver) advance(to pacer.Phase) error {
	from := d.Phase()
	if from.Next() != to {
		return errors.NewCollectorError(fmt.Sprintf("enter %s", to), errors.ErrPhaseOrder).
			WithPhase(from.String()).
			WithCycle(d.cycle)
	}

	if d.phaseSpan != nil {
		d.phaseSpan.End(nil)
		d.phaseSpan = nil
	}

	if to == pacer.PhaseIdle {
		return d.finishCycle(false)
	}

	d.phase.Store(int32(to))
	plan, err := d.setup(to)
	if err != nil {
		return d.degenerate(fmt.Sprintf("no free space at %s setup", to), errors.SeverityError)
	}

	d.remaining = plan.Work
	_, d.phaseSpan = d.tracer.Start(d.cycleCtx, "gc.phase."+to.String(),
		attribute.Int64("work_bytes", int64(plan.Work)),
		attribute.Float64("tax_rate", plan.TaxRate),
		attribute.Int64("budget_words", plan.BudgetWords),
	)
	d.publish(event.NewPhaseChangedEvent(d.cycle, from.String(), to.String(), plan.BudgetWords, plan.TaxRate))
	return nil
}

// setup installs the budget for an active phase. With pacing off it only
// computes how much work the phase has.
func (d *Driver) setup(to pacer.Phase) (plan pacer.Plan, err error) {
	if d.heap.FreeAvailableBytes() == 0 {
		return plan, errors.ErrNoTaxableSpace
	}

	if !d.pacing {
		plan = pacer.Plan{Phase: to, Work: d.heap.UsedBytes()}
		if to == pacer.PhaseEvacuation {
			plan.Work = d.heap.CollectionSetLiveBytes()
		}
		return plan, nil
	}

	// Mutators can take the last free bytes between the check above and
	// the pacer reading the heap.
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok || !errors.Is(perr, errors.ErrNoTaxableSpace) {
				panic(r)
			}
			err = perr
		}
	}()

	switch to {
	case pacer.PhaseMark:
		plan = d.pacer.SetupForMark()
	case pacer.PhaseEvacuation:
		plan = d.pacer.SetupForEvacuation()
	case pacer.PhaseUpdateReferences:
		plan = d.pacer.SetupForUpdateReferences()
	}
	return plan, nil
}

// degenerate abandons the concurrent cycle: the collector reclaims at once
// and returns to idle, which replaces whatever debt mutators built up.
func (d *Driver) degenerate(reason string, severity errors.Severity) error {
	phase := d.Phase()
	cause := errors.NewCollectorError(reason, errors.ErrDegeneratedCycle).
		WithPhase(phase.String()).
		WithCycle(d.cycle).
		WithSeverity(severity)

	log := d.logger.WithPhase(phase.String()).Warn
	if errors.GetSeverity(cause) >= errors.SeverityError {
		log = d.logger.WithPhase(phase.String()).Error
	}
	log("degenerated cycle", "cycle", d.cycle, "reason", reason)
	d.publish(event.NewDegeneratedCycleEvent(d.cycle, phase.String(), reason))

	if d.phaseSpan != nil {
		d.phaseSpan.End(cause)
		d.phaseSpan = nil
	}
	if d.cycleSpan != nil {
		d.cycleSpan.SetAttributes(attribute.String("degenerated_reason", reason))
	}
	return d.finishCycle(true)
}

func (d *Driver) finishCycle(degenerated bool) error {
	from := d.Phase()
	reclaimed := d.heap.Reclaim()
	duration := d.clock.Now().Sub(d.cycleStart)

	d.mu.Lock()
	if degenerated {
		d.stats.Degenerated++
	} else {
		d.stats.Completed++
	}
	d.stats.ReclaimedBytes += reclaimed
	d.mu.Unlock()

	plan := pacer.Plan{Phase: pacer.PhaseIdle}
	if d.pacing {
		plan = d.pacer.SetupForIdle()
	}
	d.phase.Store(int32(pacer.PhaseIdle))
	d.remaining = 0
	d.lastAllocated = d.heap.AllocatedBytes()
	d.exhausted.Store(false)

	if d.cycleSpan != nil {
		d.cycleSpan.SetAttributes(
			attribute.Int64("reclaimed_bytes", int64(reclaimed)),
			attribute.Bool("degenerated", degenerated),
		)
		d.cycleSpan.End(nil)
		d.cycleSpan = nil
	}

	d.logger.Debug("cycle finished",
		"cycle", d.cycle,
		"reclaimed_mb", reclaimed>>20,
		"duration_ms", duration.Milliseconds(),
		"degenerated", degenerated,
	)
	d.publish(event.NewPhaseChangedEvent(d.cycle, from.String(), pacer.PhaseIdle.String(), plan.BudgetWords, plan.TaxRate))
	d.publish(event.NewCycleCompletedEvent(d.cycle, duration, reclaimed, degenerated))
	return nil
}

func (d *Driver) endSpans(err error) {
	if d.phaseSpan != nil {
		d.phaseSpan.End(err)
		d.phaseSpan = nil
	}
	if d.cycleSpan != nil {
		d.cycleSpan.End(err)
		d.cycleSpan = nil
	}
}

func (d *Driver) workPerTick() uint64 {
	work := d.cfg.WorkRate * uint64(d.cfg.Tick) / uint64(time.Second)
	return max(work, 1)
}

func (d *Driver) publish(e event.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}
