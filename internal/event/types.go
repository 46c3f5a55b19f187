package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "collector.phase_changed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypePhaseChanged     = "collector.phase_changed"
	TypeCycleCompleted   = "collector.cycle_completed"
	TypeDegeneratedCycle = "collector.degenerated_cycle"
	TypeAllocationFailed = "heap.allocation_failed"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Collector Events
// -----------------------------------------------------------------------------

// PhaseChangedEvent is emitted after the collector enters a phase and, when
// pacing is on, the new budget has been installed.
type PhaseChangedEvent struct {
	baseEvent
	Cycle       uint64  // Cycle number, starting at 1; 0 before the first cycle
	From        string  // Phase being left
	To          string  // Phase being entered
	BudgetWords int64   // Budget installed for To
	TaxRate     float64 // Tax rate installed for To
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(cycle uint64, from, to string, budgetWords int64, taxRate float64) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent:   newBaseEvent(TypePhaseChanged),
		Cycle:       cycle,
		From:        from,
		To:          to,
		BudgetWords: budgetWords,
		TaxRate:     taxRate,
	}
}

// CycleCompletedEvent is emitted when a cycle returns to idle.
type CycleCompletedEvent struct {
	baseEvent
	Cycle          uint64
	Duration       time.Duration
	ReclaimedBytes uint64
	Degenerated    bool // The cycle ended through the stop-the-world fallback
}

// NewCycleCompletedEvent creates a CycleCompletedEvent.
func NewCycleCompletedEvent(cycle uint64, duration time.Duration, reclaimed uint64, degenerated bool) CycleCompletedEvent {
	return CycleCompletedEvent{
		baseEvent:      newBaseEvent(TypeCycleCompleted),
		Cycle:          cycle,
		Duration:       duration,
		ReclaimedBytes: reclaimed,
		Degenerated:    degenerated,
	}
}

// DegeneratedCycleEvent is emitted when the collector abandons concurrent
// collection because the heap ran out of free space.
type DegeneratedCycleEvent struct {
	baseEvent
	Cycle  uint64
	Phase  string // Phase in progress when the cycle degenerated
	Reason string
}

// NewDegeneratedCycleEvent creates a DegeneratedCycleEvent.
func NewDegeneratedCycleEvent(cycle uint64, phase, reason string) DegeneratedCycleEvent {
	return DegeneratedCycleEvent{
		baseEvent: newBaseEvent(TypeDegeneratedCycle),
		Cycle:     cycle,
		Phase:     phase,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Heap Events
// -----------------------------------------------------------------------------

// AllocationFailedEvent is emitted when a mutator's allocation does not fit.
type AllocationFailedEvent struct {
	baseEvent
	Mutator   int
	Requested uint64
	Free      uint64
}

// NewAllocationFailedEvent creates an AllocationFailedEvent.
func NewAllocationFailedEvent(mutator int, requested, free uint64) AllocationFailedEvent {
	return AllocationFailedEvent{
		baseEvent: newBaseEvent(TypeAllocationFailed),
		Mutator:   mutator,
		Requested: requested,
		Free:      free,
	}
}
