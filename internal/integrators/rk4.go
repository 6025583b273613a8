package integrators

import "github.com/san-kum/odomctl/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta integrator. Stage buffers are
// reused between calls, so one RK4 must not be shared across goroutines.
type RK4 struct {
	k     [4]dynamo.State
	stage dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(dynamo.State, n)
	}
	r.stage = make(dynamo.State, n)
}

// advance writes x + h*k into the stage buffer.
func (r *RK4) advance(x, k dynamo.State, h float64) dynamo.State {
	for i := range x {
		r.stage[i] = x[i] + h*k[i]
	}
	return r.stage
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.ensureScratch(len(x))
	half := dt * 0.5

	copy(r.k[0], dyn.Derive(x, u, t))
	copy(r.k[1], dyn.Derive(r.advance(x, r.k[0], half), u, t+half))
	copy(r.k[2], dyn.Derive(r.advance(x, r.k[1], half), u, t+half))
	copy(r.k[3], dyn.Derive(r.advance(x, r.k[2], dt), u, t+dt))

	result := make(dynamo.State, len(x))
	dt6 := dt / 6.0
	for i := range x {
		result[i] = x[i] + dt6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return result
}
