// Package clock abstracts the monotonic time source and the interruptible
// sleep used by pacing loops, so tests can drive time by hand.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock provides elapsed time and a sleep that returns early when ctx is done.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// Real returns the wall clock. time.Now carries a monotonic reading, so
// differences between two Now values are safe against wall-clock jumps.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manual is a Clock that only moves when told to. Sleep advances the clock
// by the requested duration instead of blocking. It is safe for concurrent use.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func(total int)
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// OnSleep registers a hook run after every Sleep with the running sleep
// count. Tests use it to change shared state partway through a wait.
func (m *Manual) OnSleep(fn func(total int)) {
	m.mu.Lock()
	m.onSleep = fn
	m.mu.Unlock()
}

// Sleeps returns how many times Sleep has been called.
func (m *Manual) Sleeps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleeps
}

// Sleep advances the clock by d. It returns ctx.Err() without advancing
// when ctx is already done.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.sleeps++
	total, hook := m.sleeps, m.onSleep
	m.mu.Unlock()

	if hook != nil {
		hook(total)
	}
	return nil
}
