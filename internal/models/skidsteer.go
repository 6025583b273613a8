// Package models contains continuous-time plant models used to exercise the
// controllers without hardware.
package models

import (
	"math"

	"github.com/san-kum/odomctl/internal/dynamo"
)

// State layout of the skid-steer model.
const (
	IdxX = iota
	IdxY
	IdxTheta
	IdxVelLeft
	IdxVelRight
	IdxDistLeft
	IdxDistRight
	skidSteerDim
)

const (
	DefaultMaxVelocity  = 1.0  // m/s at full command
	DefaultTimeConstant = 0.08 // s
	DefaultWheelTrack   = 0.29 // m
)

// SkidSteerParams describes the plant. Heading is positive clockwise, X is
// the initial forward axis, matching the odometry frame.
type SkidSteerParams struct {
	MaxVelocity  float64 `yaml:"max_velocity"`
	TimeConstant float64 `yaml:"time_constant"`
	WheelTrack   float64 `yaml:"wheel_track"`
}

func DefaultSkidSteerParams() SkidSteerParams {
	return SkidSteerParams{
		MaxVelocity:  DefaultMaxVelocity,
		TimeConstant: DefaultTimeConstant,
		WheelTrack:   DefaultWheelTrack,
	}
}

// SkidSteer models each side of the drivetrain as a first-order velocity
// lag driven by a normalised command in [-1, 1].
type SkidSteer struct {
	P SkidSteerParams
}

func NewSkidSteer(p SkidSteerParams) *SkidSteer {
	return &SkidSteer{P: p}
}

func (s *SkidSteer) StateDim() int   { return skidSteerDim }
func (s *SkidSteer) ControlDim() int { return 2 }

func (s *SkidSteer) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	cmdL, cmdR := 0.0, 0.0
	if len(u) >= 2 {
		cmdL, cmdR = clamp(u[0]), clamp(u[1])
	}

	vl, vr := x[IdxVelLeft], x[IdxVelRight]
	v := (vl + vr) / 2
	omega := (vl - vr) / s.P.WheelTrack
	theta := x[IdxTheta]

	dx := make(dynamo.State, skidSteerDim)
	dx[IdxX] = v * math.Cos(theta)
	dx[IdxY] = v * math.Sin(theta)
	dx[IdxTheta] = omega
	dx[IdxVelLeft] = (cmdL*s.P.MaxVelocity - vl) / s.P.TimeConstant
	dx[IdxVelRight] = (cmdR*s.P.MaxVelocity - vr) / s.P.TimeConstant
	dx[IdxDistLeft] = vl
	dx[IdxDistRight] = vr
	return dx
}

// InitialState returns a state at rest at the origin.
func (s *SkidSteer) InitialState() dynamo.State {
	return make(dynamo.State, skidSteerDim)
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
