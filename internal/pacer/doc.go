// Package pacer throttles allocating goroutines so they cannot outrun a
// concurrent collector.
//
// Instead of stopping every mutator at a barrier, each allocation pays a tax
// out of a shared budget that the collector replenishes. A goroutine waits
// only when the budget is exhausted, and never longer than the configured
// maximum delay.
//
// # Components
//
//   - [Budget]: the shared signed word budget and tax rate, updated with
//     atomics only.
//   - [MarkPlan], [EvacuationPlan], [UpdateReferencesPlan], [IdlePlan]: pure
//     functions turning heap figures into an (allowance, tax) [Plan].
//   - [Pacer.SetupForMark] and friends: query [HeapInfo], compute the plan
//     and install it. Called by the phase driver, one phase at a time.
//   - [Pacer.PaceForAllocation]: the mutator entry point.
//   - [DelayHistogram]: power-of-two millisecond buckets of slow-path waits.
//
// # Tax Model
//
// At mark start the pacer does not know the collection set, so it assumes
// the whole used region is live and will be walked three times (mark,
// evacuate, update references). For 10 MB free and 90 MB used, every
// allocated byte costs 3*90/10 bytes of collector progress. The result is
// floored at 1 and carries a 10% surcharge. The installed budget is the
// non-taxable slack multiplied by that rate, expressed in heap words.
//
//	p := pacer.New(pacer.DefaultConfig(), heap)
//	p.SetupForIdle()
//
//	// mutator
//	p.PaceForAllocation(words)
//
//	// phase driver
//	p.SetupForMark()
//	p.ReportProgress(markedWords)
//	p.SetupForEvacuation()
//	p.SetupForUpdateReferences()
//	p.SetupForIdle()
//
// # Contract
//
// Every entry point panics with an *errors.PacerError when pacing is
// disabled. The active-phase setups also panic when no taxable free space
// is left. Both are caller bugs. A wait that reaches the maximum delay is not
// an error: the allocation is charged anyway and the budget may go
// negative, which the collector's fallback cycle deals with.
//
// # Thread Safety
//
// PaceForAllocation, ReportProgress, State and the report methods are safe
// for concurrent use. The SetupFor* methods must be called from a single
// driver goroutine.
package pacer
