package timeutil

import (
	"context"
	"time"
)

// ConstantTimer returns the same dt from every query.
type ConstantTimer struct {
	Dt time.Duration
}

func NewConstantTimer(dt time.Duration) *ConstantTimer {
	return &ConstantTimer{Dt: dt}
}

func (c *ConstantTimer) Millis() time.Duration { return 0 }
func (c *ConstantTimer) GetDt() time.Duration  { return c.Dt }
func (c *ConstantTimer) ReadDt() time.Duration { return c.Dt }

// ManualRate is a Rate whose loop only advances when Step is called. It lets
// tests run a periodic loop one iteration at a time.
type ManualRate struct {
	parked  chan struct{}
	release chan struct{}
	waiting bool
}

func NewManualRate() *ManualRate {
	return &ManualRate{
		parked:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *ManualRate) DelayUntil(ctx context.Context, period time.Duration) error {
	select {
	case r.parked <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitParked blocks until the loop is sleeping in DelayUntil.
func (r *ManualRate) WaitParked() {
	if !r.waiting {
		<-r.parked
		r.waiting = true
	}
}

// Step lets the loop run exactly one more iteration and returns once it is
// parked again. Step must be called from a single goroutine.
func (r *ManualRate) Step() {
	r.WaitParked()
	r.release <- struct{}{}
	<-r.parked
}
