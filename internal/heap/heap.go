// Package heap models a collected heap as byte counters: enough for the
// pacer to read occupancy and for a simulated collector to reclaim garbage.
// It has no object layout.
package heap

import (
	"math/bits"
	"sync/atomic"

	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
)

// Heap tracks used bytes against a fixed capacity. All methods are safe
// for concurrent use. It implements pacer.HeapInfo.
type Heap struct {
	capacity uint64

	used      atomic.Uint64
	allocated atomic.Uint64 // cumulative, never decreases

	// Snapshotted by BeginCycle, cleared by Reclaim.
	garbage  atomic.Uint64
	csetLive atomic.Uint64
}

// CycleEstimate is what the collector learns about the heap when a cycle starts.
type CycleEstimate struct {
	Used     uint64
	Garbage  uint64
	CsetLive uint64
}

// New returns an empty heap of capacity bytes.
func New(capacity uint64) *Heap {
	return &Heap{capacity: capacity}
}

// Allocate reserves bytes. It fails with a retryable *errors.HeapError
// matching errors.ErrHeapExhausted when the request does not fit.
func (h *Heap) Allocate(bytes uint64) error {
	for {
		used := h.used.Load()
		free := h.capacity - used
		if bytes > free {
			return errors.NewHeapError("allocate", errors.ErrHeapExhausted).WithRequest(bytes, free)
		}
		if h.used.CompareAndSwap(used, used+bytes) {
			h.allocated.Add(bytes)
			return nil
		}
	}
}

// UsedBytes returns the bytes currently occupied.
func (h *Heap) UsedBytes() uint64 {
	return h.used.Load()
}

// FreeAvailableBytes returns capacity minus used.
func (h *Heap) FreeAvailableBytes() uint64 {
	return h.capacity - h.used.Load()
}

// CollectionSetLiveBytes returns the live bytes estimated by the last BeginCycle.
func (h *Heap) CollectionSetLiveBytes() uint64 {
	return h.csetLive.Load()
}

// HeapCapacityBytes returns the heap capacity.
func (h *Heap) HeapCapacityBytes() uint64 {
	return h.capacity
}

// AllocatedBytes returns every byte ever allocated.
func (h *Heap) AllocatedBytes() uint64 {
	return h.allocated.Load()
}

// AllocatedSince returns bytes allocated after mark, a previous AllocatedBytes value.
func (h *Heap) AllocatedSince(mark uint64) uint64 {
	now := h.allocated.Load()
	if now < mark {
		return 0
	}
	return now - mark
}

// BeginCycle snapshots the share of used bytes that will be reclaimed and
// the share that is live in the collection set.
func (h *Heap) BeginCycle(garbagePercent, csetLivePercent uint) CycleEstimate {
	used := h.used.Load()
	est := CycleEstimate{
		Used:     used,
		Garbage:  pacer.PercentOf(used, garbagePercent),
		CsetLive: pacer.PercentOf(used, csetLivePercent),
	}
	h.garbage.Store(est.Garbage)
	h.csetLive.Store(est.CsetLive)
	return est
}

// Reclaim frees the garbage estimated by BeginCycle and returns how many
// bytes were released. Calling it twice for one cycle frees nothing more.
func (h *Heap) Reclaim() uint64 {
	garbage := h.garbage.Swap(0)
	h.csetLive.Store(0)

	for {
		used := h.used.Load()
		release := min(garbage, used)
		if h.used.CompareAndSwap(used, used-release) {
			return release
		}
	}
}

// OccupancyPercent returns used bytes as a whole percentage of capacity.
func (h *Heap) OccupancyPercent() uint64 {
	if h.capacity == 0 {
		return 100
	}
	// used never exceeds capacity, so the high word is below the divisor.
	hi, lo := bits.Mul64(h.used.Load(), 100)
	pct, _ := bits.Div64(hi, lo, h.capacity)
	return pct
}
