package pacer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/allocpacer/internal/clock"
	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/logging"
)

// Heap words are 8 bytes; budgets and claim costs are counted in words.
const (
	LogWordSize = 3
	WordSize    = 1 << LogWordSize
)

// DefaultSleepQuantum is how long a starved mutator sleeps between claims.
const DefaultSleepQuantum = time.Millisecond

// HeapInfo is the read-only view of the heap the phase setups consult.
type HeapInfo interface {
	// UsedBytes returns the bytes currently occupied.
	UsedBytes() uint64
	// FreeAvailableBytes returns the bytes currently available for allocation.
	FreeAvailableBytes() uint64
	// CollectionSetLiveBytes returns the estimated live bytes in the
	// current collection set. Only meaningful during evacuation setup.
	CollectionSetLiveBytes() uint64
	// HeapCapacityBytes returns the total heap capacity.
	HeapCapacityBytes() uint64
}

// Recorder receives pacing observations. Implementations must be safe for
// concurrent use because AllocationPaced is called from mutator goroutines.
type Recorder interface {
	// PhaseInstalled is called after every phase setup.
	PhaseInstalled(phase Phase, budgetWords int64, taxRate float64)
	// AllocationPaced is called once per slow-path wait, after the wait ends.
	AllocationPaced(delay time.Duration, forced bool)
}

// Config holds the startup pacing settings. It is immutable once the
// Pacer is built.
type Config struct {
	// Enabled must be true for any entry point to be called.
	Enabled bool
	// CycleSlackPercent is the share of free space exempt from tax during
	// mark, evacuation and update-references. Must be in [0,100).
	CycleSlackPercent uint
	// IdleSlackPercent is the share of capacity granted as the idle budget.
	// Must be in [0,100).
	IdleSlackPercent uint
	// MaxDelay bounds how long one allocation waits before force-proceeding.
	MaxDelay time.Duration
}

// DefaultConfig returns the stock pacing settings.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		CycleSlackPercent: 10,
		IdleSlackPercent:  2,
		MaxDelay:          10 * time.Millisecond,
	}
}

// Pacer throttles mutator allocations against collector progress. A single
// Pacer is shared by the phase driver, which calls the SetupFor* methods in
// phase order, and by every mutator, which calls PaceForAllocation.
type Pacer struct {
	cfg      Config
	heap     HeapInfo
	clock    clock.Clock
	quantum  time.Duration
	logger   *logging.Logger
	recorder Recorder

	budget Budget
	delays DelayHistogram
	phase  atomic.Int32
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Pacer) { p.clock = c }
}

// WithSleepQuantum sets the slow-path sleep between claim attempts.
func WithSleepQuantum(d time.Duration) Option {
	return func(p *Pacer) {
		if d > 0 {
			p.quantum = d
		}
	}
}

// WithLogger sets the logger used for phase setup lines.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pacer) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRecorder attaches a Recorder for metrics.
func WithRecorder(r Recorder) Option {
	return func(p *Pacer) { p.recorder = r }
}

// New builds a Pacer over heap. The budget starts at zero with a tax rate
// of 1 until the driver calls SetupForIdle.
//
// New panics with an *errors.PacerError wrapping errors.ErrInvalidInput
// for a negative MaxDelay or a slack percentage of 100 or more.
func New(cfg Config, heap HeapInfo, opts ...Option) *Pacer {
	if err := cfg.validate(); err != nil {
		panic(err)
	}
	p := &Pacer{
		cfg:     cfg,
		heap:    heap,
		clock:   clock.Real(),
		quantum: DefaultSleepQuantum,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.budget.Replace(0, 1)
	return p
}

func (c Config) validate() error {
	switch {
	case c.MaxDelay < 0:
		return errors.NewPacerError(fmt.Sprintf("max delay %s is negative", c.MaxDelay), errors.ErrInvalidInput)
	case c.CycleSlackPercent >= 100:
		return errors.NewPacerError(fmt.Sprintf("cycle slack %d%% is not below 100%%", c.CycleSlackPercent), errors.ErrInvalidInput)
	case c.IdleSlackPercent >= 100:
		return errors.NewPacerError(fmt.Sprintf("idle slack %d%% is not below 100%%", c.IdleSlackPercent), errors.ErrInvalidInput)
	}
	return nil
}

// Config returns the settings the Pacer was built with.
func (p *Pacer) Config() Config {
	return p.cfg
}

// Phase returns the phase of the last installed setup.
func (p *Pacer) Phase() Phase {
	return Phase(p.phase.Load())
}

// State returns the current budget in words and the tax rate.
func (p *Pacer) State() (budgetWords int64, taxRate float64) {
	return p.budget.Read()
}

// Budget exposes the shared budget for callers that need the raw claim
// primitives.
func (p *Pacer) Budget() *Budget {
	return &p.budget
}

// Histogram returns the delay histogram.
func (p *Pacer) Histogram() *DelayHistogram {
	return &p.delays
}

// ReportProgress credits words of completed collector work to the budget.
// The idle control loop also uses it to acknowledge observed allocations.
func (p *Pacer) ReportProgress(words uint64) {
	p.mustBeEnabled("report progress")
	if words == 0 {
		return
	}
	p.budget.Add(int64(words))
}

// mustBeEnabled panics when pacing is off.
func (p *Pacer) mustBeEnabled(op string) {
	if !p.cfg.Enabled {
		panic(errors.NewPacerError(op, errors.ErrPacingDisabled).WithPhase(p.Phase().String()))
	}
}
