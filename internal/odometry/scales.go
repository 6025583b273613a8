package odometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/odomctl/internal/units"
)

var (
	ErrInvalidScales = errors.New("odometry: invalid chassis scales")
	ErrTickCount     = errors.New("odometry: unexpected number of encoder values")
)

// ChassisScales converts encoder ticks into chassis motion.
type ChassisScales struct {
	// Straight is ticks per metre of tracked-wheel travel.
	Straight float64 `yaml:"straight"`
	// Middle is ticks per metre of the lateral wheel. Zero means Straight.
	Middle float64 `yaml:"middle"`
	// Turn is ticks of left/right difference per radian of rotation. Only
	// HeadingOdometry uses it.
	Turn float64 `yaml:"turn"`
	// WheelTrack is the distance between the tracked wheels in metres.
	WheelTrack float64 `yaml:"wheel_track"`
	// MiddleWheelDistance is the offset of the lateral wheel from the
	// centre of rotation in metres.
	MiddleWheelDistance float64 `yaml:"middle_wheel_distance"`
}

// ScalesFromWheel derives scales for a chassis with the given wheel
// diameter, wheel track (both metres) and encoder ticks per revolution.
func ScalesFromWheel(wheelDiameter, wheelTrack, tpr float64) ChassisScales {
	straight := units.StraightScale(wheelDiameter, tpr)
	return ChassisScales{
		Straight:   straight,
		Middle:     straight,
		Turn:       straight * wheelTrack,
		WheelTrack: wheelTrack,
	}
}

func (c ChassisScales) middle() float64 {
	if c.Middle == 0 {
		return c.Straight
	}
	return c.Middle
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate reports ErrInvalidScales when a divisor would be zero, negative
// or not finite.
func (c ChassisScales) Validate() error {
	switch {
	case !positive(c.Straight):
		return fmt.Errorf("%w: straight=%v", ErrInvalidScales, c.Straight)
	case !positive(c.WheelTrack):
		return fmt.Errorf("%w: wheel_track=%v", ErrInvalidScales, c.WheelTrack)
	case c.Middle != 0 && !positive(c.Middle):
		return fmt.Errorf("%w: middle=%v", ErrInvalidScales, c.Middle)
	case c.Turn != 0 && !positive(c.Turn):
		return fmt.Errorf("%w: turn=%v", ErrInvalidScales, c.Turn)
	case math.IsNaN(c.MiddleWheelDistance) || math.IsInf(c.MiddleWheelDistance, 0):
		return fmt.Errorf("%w: middle_wheel_distance=%v", ErrInvalidScales, c.MiddleWheelDistance)
	}
	return nil
}
