// Package event provides a synchronous pub-sub bus that lets the collector
// driver announce phase changes and cycle outcomes without knowing who
// listens (metrics, tracing, the CLI summary).
//
// # Main Types
//
//   - [Event]: interface with EventType() and Timestamp()
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: func(Event)
//
// # Event Types
//
// Collector:
//   - [PhaseChangedEvent]: a phase began and its budget is installed
//   - [CycleCompletedEvent]: a cycle returned to idle
//   - [DegeneratedCycleEvent]: a cycle fell back to the stop-the-world path
//
// Heap:
//   - [AllocationFailedEvent]: a mutator allocation did not fit
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeCycleCompleted, func(e event.Event) {
//	    done := e.(event.CycleCompletedEvent)
//	    logger.Info("cycle done", "cycle", done.Cycle)
//	})
//
// Handlers run on the publishing goroutine. A panicking handler is
// recovered and logged; remaining handlers still run.
package event
