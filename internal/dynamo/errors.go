package dynamo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState      = errors.New("dynamo: drivetrain state is not finite")
	ErrDimensionMismatch = errors.New("dynamo: state length does not match the system")
)

// SimError records where an integration run diverged.
type SimError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *SimError) Error() string {
	return fmt.Sprintf("dynamo: step %d at %.4fs: %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimError) Unwrap() error { return e.Wrapped }
