// Package optim tunes PID gains against the simulated drivetrain.
package optim

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/odomctl/internal/analysis"
	"github.com/san-kum/odomctl/internal/control"
	"github.com/san-kum/odomctl/internal/dynamo"
	"github.com/san-kum/odomctl/internal/models"
	"github.com/san-kum/odomctl/internal/sim"
	"github.com/san-kum/odomctl/internal/timeutil"
)

// Tunable loops.
const (
	LoopDistance = "distance"
	LoopAngle    = "angle"
)

// Problem is one offline step response: the named loop drives the plant
// from rest to Target and the response is scored by Metric.
type Problem struct {
	Loop   string
	Target float64
	Params models.SkidSteerParams
	// NewIntegrator returns a fresh integrator per evaluation. Integrators
	// keep scratch state and are not shared between goroutines.
	NewIntegrator func() dynamo.Integrator
	// Period is the control period; the plant is integrated at the same step.
	Period   time.Duration
	Duration time.Duration
	Metric   string
	// OutputLimit bounds the command magnitude. Zero means 1.
	OutputLimit float64
}

func (p Problem) validate() error {
	if p.Loop != LoopDistance && p.Loop != LoopAngle {
		return fmt.Errorf("optim: unknown loop %q", p.Loop)
	}
	if p.NewIntegrator == nil {
		return fmt.Errorf("optim: no integrator")
	}
	if p.Period <= 0 || p.Duration <= p.Period {
		return fmt.Errorf("optim: invalid period %v or duration %v", p.Period, p.Duration)
	}
	if p.Params.WheelTrack <= 0 {
		return fmt.Errorf("optim: wheel track must be positive")
	}
	return nil
}

// measure maps a plant state onto the loop's controlled variable.
func (p Problem) measure(x dynamo.State) float64 {
	l, r := x[models.IdxDistLeft], x[models.IdxDistRight]
	if p.Loop == LoopAngle {
		return (l - r) / p.Params.WheelTrack
	}
	return (l + r) / 2
}

func (p Problem) command(out float64) dynamo.Control {
	if p.Loop == LoopAngle {
		return dynamo.Control{out, -out}
	}
	return dynamo.Control{out, out}
}

// Response is a simulated step response in the columns used by analysis.
type Response struct {
	Times, Targets, Inputs, Outputs []float64
}

// Simulate runs the problem with the given gains.
func Simulate(ctx context.Context, p Problem, gains control.Gains) (*Response, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	limit := p.OutputLimit
	if limit <= 0 {
		limit = 1
	}

	pid := control.NewPID(gains, timeutil.NewConstantTimer(p.Period))
	pid.SetOutputLimits(-limit, limit)
	pid.SetTarget(p.Target)

	resp := &Response{}
	ctrl := sim.ControllerFunc(func(x dynamo.State, t float64) dynamo.Control {
		in := p.measure(x)
		out := pid.Step(in)
		resp.Times = append(resp.Times, t)
		resp.Targets = append(resp.Targets, p.Target)
		resp.Inputs = append(resp.Inputs, in)
		resp.Outputs = append(resp.Outputs, out)
		return p.command(out)
	})

	plant := models.NewSkidSteer(p.Params)
	s := sim.New(plant, p.NewIntegrator())
	_, err := s.Run(ctx, plant.InitialState(), ctrl, sim.Config{
		Dt:            p.Period.Seconds(),
		Duration:      p.Duration.Seconds(),
		ValidateState: true,
	})
	if err != nil {
		return resp, err
	}
	return resp, nil
}

// Cost simulates the problem and scores it with p.Metric.
func Cost(ctx context.Context, p Problem, gains control.Gains) (float64, error) {
	resp, err := Simulate(ctx, p, gains)
	if err != nil {
		return 0, err
	}
	return analysis.Evaluate(p.Metric, resp.Times, resp.Targets, resp.Inputs, resp.Outputs)
}
