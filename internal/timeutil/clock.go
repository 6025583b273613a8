// Package timeutil provides the time collaborators consumed by the control
// and odometry loops: a monotonic Timer and a fixed-cadence Rate.
package timeutil

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Clock is the time source behind Timer and FixedRate. Production code uses
// clock.RealClock; tests inject a k8s.io/utils/clock/testing.FakeClock.
type Clock = clock.Clock

func orReal(c Clock) Clock {
	if c == nil {
		return clock.RealClock{}
	}
	return c
}

// Timer reports elapsed time. GetDt is consuming: each call returns the time
// since the previous GetDt call (or since construction).
type Timer interface {
	// Millis returns the time elapsed since the timer was created.
	Millis() time.Duration

	// GetDt returns the time since the last call to GetDt and restarts the
	// interval.
	GetDt() time.Duration

	// ReadDt returns the time since the last call to GetDt without
	// restarting the interval.
	ReadDt() time.Duration
}

// Rate paces a loop body so iterations recur at a fixed cadence regardless
// of how long the body took.
type Rate interface {
	// DelayUntil blocks until one period after the previous wake-up. It
	// returns ctx.Err() if ctx ends first.
	DelayUntil(ctx context.Context, period time.Duration) error
}

type clockTimer struct {
	clock clock.PassiveClock
	mu    sync.Mutex
	epoch time.Time
	last  time.Time
}

// NewTimer returns a Timer backed by c. A nil c uses the wall clock.
func NewTimer(c Clock) Timer {
	c = orReal(c)
	now := c.Now()
	return &clockTimer{clock: c, epoch: now, last: now}
}

func (t *clockTimer) Millis() time.Duration {
	return t.clock.Since(t.epoch)
}

func (t *clockTimer) GetDt() time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	dt := now.Sub(t.last)
	t.last = now
	return dt
}

func (t *clockTimer) ReadDt() time.Duration {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.last)
}

// FixedRate is a drift-free Rate: wake-up deadlines advance by exactly one
// period from the previous deadline, not from the end of the loop body.
// When the body overran a whole period the schedule is re-anchored to now.
type FixedRate struct {
	clock    Clock
	next     time.Time
	overruns uint64
}

// NewRate returns a FixedRate sleeping on c. A nil c uses the wall clock.
func NewRate(c Clock) *FixedRate {
	return &FixedRate{clock: orReal(c)}
}

func (r *FixedRate) DelayUntil(ctx context.Context, period time.Duration) error {
	now := r.clock.Now()
	if r.next.IsZero() {
		r.next = now
	}
	r.next = r.next.Add(period)

	wait := r.next.Sub(now)
	if wait <= 0 {
		r.overruns++
		r.next = now
		return ctx.Err()
	}

	timer := r.clock.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// Overruns reports how many periods were missed because the loop body took
// longer than the period.
func (r *FixedRate) Overruns() uint64 {
	return r.overruns
}
