package sim

import (
	"context"
	"math/rand/v2"

	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/event"
	"github.com/Iron-Ham/allocpacer/internal/logging"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
)

// mutator allocates random-sized objects until its context is done.
type mutator struct {
	id     int
	sim    *simulation
	rng    *rand.Rand
	logger *logging.Logger
	min    uint64
	span   uint64
}

func (s *simulation) newMutator(id int) *mutator {
	minSize := uint64(s.cfg.Simulation.AllocMinBytes)
	return &mutator{
		id:     id,
		sim:    s,
		rng:    rand.New(rand.NewPCG(s.seed, uint64(id))),
		logger: s.logger.WithMutator(id),
		min:    minSize,
		span:   uint64(s.cfg.Simulation.AllocMaxBytes) - minSize + 1,
	}
}

func (m *mutator) run(ctx context.Context) {
	s := m.sim
	pacing := s.cfg.Pacing.Enabled
	backoff := s.cfg.Collector.Tick()

	for ctx.Err() == nil {
		size := m.min + m.rng.Uint64N(m.span)

		if pacing {
			start := s.clock.Now()
			s.pacer.PaceForAllocationContext(ctx, (size+pacer.WordSize-1)>>pacer.LogWordSize)
			s.stats.observeLatency(s.clock.Now().Sub(start))
		}

		if err := s.heap.Allocate(size); err != nil {
			s.stats.failed.Add(1)
			s.bus.Publish(event.NewAllocationFailedEvent(m.id, size, s.heap.FreeAvailableBytes()))
			s.driver.NotifyExhausted()
			if !errors.IsRetryable(err) {
				m.logger.Error("allocation failed permanently", "size", size, "error", err.Error())
				return
			}
			if m.logger.Enabled(logging.LevelDebug) {
				m.logger.Debug("allocation failed", "size", size, "error", err.Error())
			}
			// Give the collector a tick before retrying.
			_ = s.clock.Sleep(ctx, backoff)
			continue
		}

		s.stats.allocations.Add(1)
		s.stats.allocatedBytes.Add(size)
	}
}
