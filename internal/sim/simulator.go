package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/odomctl/internal/dynamo"
)

// Simulator integrates a system in simulated time, as fast as possible.
// It is used for offline gain tuning where wall-clock pacing would only
// slow things down.
type Simulator struct {
	sys        dynamo.System
	integrator dynamo.Integrator
	observers  []Observer
}

func New(sys dynamo.System, integrator dynamo.Integrator) *Simulator {
	return &Simulator{sys: sys, integrator: integrator}
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, ctrl Controller, cfg Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if len(x0) != s.sys.StateDim() {
		return nil, fmt.Errorf("%w: state has %d values, system expects %d", dynamo.ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}

	steps := int(cfg.Duration/cfg.Dt + 0.5)
	result := &Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u := ctrl.Compute(x, t)
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		next := s.integrator.Step(s.sys, x, u, t, cfg.Dt)
		if cfg.ValidateState && !next.IsValid() {
			return result, &dynamo.SimError{Step: i, Time: t, Wrapped: dynamo.ErrInvalidState}
		}

		x = next
		t += cfg.Dt
		result.StepsTaken++
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	return result, nil
}

func validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	return nil
}
