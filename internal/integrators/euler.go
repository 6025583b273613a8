package integrators

import "github.com/san-kum/odomctl/internal/dynamo"

// Euler is the explicit first-order method. It is cheap and adequate for
// the skid-steer model at control-loop periods of a few milliseconds.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	next := x.Clone()
	for i, d := range sys.Derive(x, u, t) {
		next[i] += dt * d
	}
	return next
}
