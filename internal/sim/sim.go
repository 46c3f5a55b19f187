// Package sim runs a pacer against a simulated heap, collector and set of
// allocating mutators, and reports what happened.
package sim

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/clock"
	"github.com/Iron-Ham/allocpacer/internal/collector"
	"github.com/Iron-Ham/allocpacer/internal/config"
	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/event"
	"github.com/Iron-Ham/allocpacer/internal/heap"
	"github.com/Iron-Ham/allocpacer/internal/logging"
	"github.com/Iron-Ham/allocpacer/internal/metrics"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"github.com/Iron-Ham/allocpacer/internal/tracing"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
)

// Options configures a simulation run. Only Config is required.
type Options struct {
	Config *config.Config
	Logger *logging.Logger
	// Registerer receives pacer and collector metrics when set.
	Registerer prometheus.Registerer
	Tracer     *tracing.Tracer
	Clock      clock.Clock
}

// Run simulates cfg.Simulation.Duration of allocation under pacing and
// returns when every mutator and the collector have stopped. Canceling
// ctx ends the run early with a partial result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.NewValidationError("simulation config is required")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}

	s := newSimulation(cfg, opts)
	s.logger.Info("simulation started",
		"mutators", cfg.Simulation.Mutators,
		"duration_ms", cfg.Simulation.DurationMs,
		"capacity_mb", cfg.Heap.CapacityMB,
		"pacing", cfg.Pacing.Enabled,
	)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Simulation.Duration())
	defer cancel()

	start := time.Now()
	var driverErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		driverErr = s.driver.Run(runCtx)
		// A stopped collector can no longer repay debt.
		cancel()
	})
	for i := 0; i < cfg.Simulation.Mutators; i++ {
		m := s.newMutator(i)
		wg.Go(func() { m.run(runCtx) })
	}
	wg.Wait()

	if driverErr != nil {
		return nil, errors.Wrapf(driverErr, "collector stopped in run %s", s.runID)
	}

	res := s.result(time.Since(start))
	s.logger.Info("simulation finished",
		"allocations", res.Allocations,
		"allocated_mb", res.AllocatedBytes>>20,
		"cycles", res.CompletedCycles,
		"degenerated", res.DegeneratedCycles,
		"max_pace_latency_ms", res.MaxPaceLatency.Milliseconds(),
	)
	return res, nil
}

type simulation struct {
	cfg    *config.Config
	runID  string
	seed   uint64
	logger *logging.Logger
	clock  clock.Clock

	heap   *heap.Heap
	pacer  *pacer.Pacer
	driver *collector.Driver
	bus    *event.Bus
	stats  counters
}

type counters struct {
	allocations    atomic.Uint64
	allocatedBytes atomic.Uint64
	failed         atomic.Uint64
	maxLatency     atomic.Int64
}

func (c *counters) observeLatency(d time.Duration) {
	for {
		cur := c.maxLatency.Load()
		if int64(d) <= cur || c.maxLatency.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

func newSimulation(cfg *config.Config, opts Options) *simulation {
	runID := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger = logger.WithRun(runID)

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Nop()
	}

	seed := uint64(cfg.Simulation.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}

	h := heap.New(cfg.Heap.CapacityBytes())
	bus := event.NewBus(logger)

	pacerOpts := []pacer.Option{
		pacer.WithClock(clk),
		pacer.WithLogger(logger),
		pacer.WithSleepQuantum(cfg.Pacing.SleepQuantum()),
	}
	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
		m.WatchHeap(h)
		m.Subscribe(bus)
		pacerOpts = append(pacerOpts, pacer.WithRecorder(m))
	}
	p := pacer.New(cfg.Pacing.ToPacer(), h, pacerOpts...)
	if m != nil {
		m.WatchPacer(p)
	}

	driver := collector.New(collector.Config{
		Tick:            cfg.Collector.Tick(),
		WorkRate:        uint64(cfg.Collector.WorkRateMBPerSec) << 20,
		TriggerPercent:  uint(cfg.Collector.TriggerPercent),
		GarbagePercent:  uint(cfg.Collector.GarbagePercent),
		CsetLivePercent: uint(cfg.Collector.CollectionSetLivePercent),
	}, h, p,
		collector.WithClock(clk),
		collector.WithBus(bus),
		collector.WithLogger(logger),
		collector.WithTracer(tracer),
	)

	return &simulation{
		cfg:    cfg,
		runID:  runID,
		seed:   seed,
		logger: logger,
		clock:  clk,
		heap:   h,
		pacer:  p,
		driver: driver,
		bus:    bus,
	}
}

func (s *simulation) result(elapsed time.Duration) *Result {
	st := s.driver.Stats()
	return &Result{
		RunID:             s.runID,
		Seed:              s.seed,
		Elapsed:           elapsed,
		Mutators:          s.cfg.Simulation.Mutators,
		PacingEnabled:     s.cfg.Pacing.Enabled,
		Allocations:       s.stats.allocations.Load(),
		AllocatedBytes:    s.stats.allocatedBytes.Load(),
		FailedAllocations: s.stats.failed.Load(),
		CompletedCycles:   st.Completed,
		DegeneratedCycles: st.Degenerated,
		ReclaimedBytes:    st.ReclaimedBytes,
		HeapUsedBytes:     s.heap.UsedBytes(),
		MaxPaceLatency:    time.Duration(s.stats.maxLatency.Load()),
		Pacer:             s.pacer.Snapshot(),
	}
}
