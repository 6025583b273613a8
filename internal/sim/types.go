package sim

import "github.com/san-kum/odomctl/internal/dynamo"

// Controller computes the plant command for an offline run.
type Controller interface {
	Compute(x dynamo.State, t float64) dynamo.Control
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(x dynamo.State, t float64) dynamo.Control

func (f ControllerFunc) Compute(x dynamo.State, t float64) dynamo.Control { return f(x, t) }

type Observer interface {
	OnStep(x dynamo.State, u dynamo.Control, t float64)
}

// Config of an offline run. Times are in seconds.
type Config struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	ValidateState bool    `yaml:"validate_state"`
}

type Result struct {
	States     []dynamo.State
	Controls   []dynamo.Control
	Times      []float64
	StepsTaken int
}

// Final returns the last recorded state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}
