// Package dynamo provides the numerical primitives shared by the drivetrain
// simulation: state vectors, continuous-time systems and integrators.
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical integrator interface
//
// # Example
//
//	dyn := models.NewSkidSteer(models.DefaultSkidSteerParams())
//	integ := integrators.NewRK4()
//	x = integ.Step(dyn, x, dynamo.Control{0.5, 0.5}, t, 0.01)
package dynamo
