package control

// ControllerInput supplies the measured value for a control loop.
type ControllerInput interface {
	ControllerGet() (float64, error)
}

// ControllerOutput accepts the value computed by a control loop.
type ControllerOutput interface {
	ControllerSet(value float64) error
}

// InputFunc adapts a function to ControllerInput.
type InputFunc func() (float64, error)

func (f InputFunc) ControllerGet() (float64, error) { return f() }

// OutputFunc adapts a function to ControllerOutput.
type OutputFunc func(value float64) error

func (f OutputFunc) ControllerSet(value float64) error { return f(value) }

// IterativeController is a discrete-time control law. It knows nothing about
// scheduling; the caller invokes Step once per sample.
type IterativeController interface {
	SetTarget(target float64)
	Target() float64

	// Step consumes the latest measurement and returns the new output.
	Step(input float64) float64

	// Error returns target - input as of the last Step.
	Error() float64
	Output() float64

	// Reset clears any accumulated state.
	Reset()
}
