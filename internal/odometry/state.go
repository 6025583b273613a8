package odometry

import (
	"fmt"

	"github.com/san-kum/odomctl/internal/units"
)

// OdomState is a pose estimate: X and Y in metres, Theta in radians.
type OdomState struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

func (s OdomState) String() string {
	return fmt.Sprintf("OdomState(x=%fm, y=%fm, theta=%fdeg)", s.X, s.Y, units.ToDegrees(s.Theta))
}

// StateMode selects the axis convention used by State and SetState.
type StateMode int

const (
	// FrameTransformation is the native convention: x forward, y lateral.
	FrameTransformation StateMode = iota
	// Cartesian swaps x and y.
	Cartesian
)

func (m StateMode) String() string {
	switch m {
	case FrameTransformation:
		return "frame"
	case Cartesian:
		return "cartesian"
	default:
		return fmt.Sprintf("StateMode(%d)", int(m))
	}
}

// ParseStateMode accepts the names produced by StateMode.String.
func ParseStateMode(name string) (StateMode, error) {
	switch name {
	case "frame", "":
		return FrameTransformation, nil
	case "cartesian":
		return Cartesian, nil
	}
	return 0, fmt.Errorf("odometry: unknown state mode %q", name)
}

// convert translates between conventions in either direction.
func convert(s OdomState, mode StateMode) OdomState {
	if mode == Cartesian {
		return OdomState{X: s.Y, Y: s.X, Theta: s.Theta}
	}
	return s
}
