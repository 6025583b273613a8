package control

import (
	"testing"
	"time"

	testclock "k8s.io/utils/clock/testing"

	"github.com/san-kum/odomctl/internal/timeutil"
)

func newTestSettled(cfg SettleConfig) (*SettledUtil, *testclock.FakeClock) {
	clock := testclock.NewFakeClock(time.Unix(0, 0))
	return NewSettledUtil(timeutil.NewTimer(clock), cfg), clock
}

func TestSettledDwell(t *testing.T) {
	s, clock := newTestSettled(DefaultSettleConfig())

	if s.IsSettled(0) {
		t.Fatal("settled before any dwell")
	}
	for elapsed := 50 * time.Millisecond; elapsed < DefaultAtTargetTime; elapsed += 50 * time.Millisecond {
		clock.Step(50 * time.Millisecond)
		if s.IsSettled(1) {
			t.Fatalf("settled after only %v", elapsed)
		}
	}
	clock.Step(50 * time.Millisecond)
	if !s.IsSettled(1) {
		t.Error("expected settled once the dwell elapsed")
	}
}

func TestSettledExcursionResetsDwell(t *testing.T) {
	s, clock := newTestSettled(SettleConfig{Error: 1, Derivative: 10, Time: 100 * time.Millisecond})

	s.IsSettled(0)
	clock.Step(90 * time.Millisecond)
	if s.IsSettled(0.5) {
		t.Fatal("settled early")
	}

	// one sample outside the band
	clock.Step(5 * time.Millisecond)
	if s.IsSettled(2) {
		t.Fatal("settled while outside the band")
	}

	clock.Step(5 * time.Millisecond)
	if s.IsSettled(0) {
		t.Fatal("dwell was not restarted by the excursion")
	}
	clock.Step(99 * time.Millisecond)
	if s.IsSettled(0) {
		t.Fatal("settled before a full uninterrupted dwell")
	}
	clock.Step(time.Millisecond)
	if !s.IsSettled(0) {
		t.Error("expected settled after a full uninterrupted dwell")
	}
}

func TestSettledDerivativeTolerance(t *testing.T) {
	s, clock := newTestSettled(SettleConfig{Error: 10, Derivative: 1, Time: 0})

	if !s.IsSettled(0.5) {
		t.Fatal("small error with small change should settle with zero dwell")
	}
	clock.Step(time.Millisecond)
	if s.IsSettled(-5) {
		t.Error("per-sample change of 5.5 exceeds the derivative tolerance")
	}
	clock.Step(time.Millisecond)
	if !s.IsSettled(-5) {
		t.Error("steady error inside the band should settle")
	}
}

func TestSettledReset(t *testing.T) {
	s, clock := newTestSettled(SettleConfig{Error: 1, Derivative: 1, Time: 10 * time.Millisecond})

	s.IsSettled(0)
	clock.Step(20 * time.Millisecond)
	if !s.IsSettled(0) {
		t.Fatal("expected settled")
	}
	s.Reset()
	if s.IsSettled(0) {
		t.Error("reset should restart the dwell")
	}
}
