package dynamo

import "math"

// State is the continuous state of a simulated plant, for the skid-steer
// model the wheel positions and velocities.
type State []float64

func (s State) Clone() State {
	return append(State(nil), s...)
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control holds the plant inputs, for the skid-steer model the left and
// right wheel commands in [-1, 1].
type Control []float64

// System is a continuous-time plant dx/dt = f(x, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Integrator advances a System by one fixed step.
type Integrator interface {
	Step(sys System, x State, u Control, t, dt float64) State
}
