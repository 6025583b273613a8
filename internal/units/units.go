// Package units provides the length and angle conversions used to describe
// chassis geometry. Internally everything is metres and radians.
package units

import "math"

const (
	MetersPerInch  = 0.0254
	DegreeToRadian = math.Pi / 180.0
	RadianToDegree = 180.0 / math.Pi
)

// Encoder ticks per output-shaft revolution for the common motor cartridges.
const (
	RedTPR   = 1800.0 // 100 rpm
	GreenTPR = 900.0  // 200 rpm
	BlueTPR  = 300.0  // 600 rpm
)

var gearsets = map[string]float64{
	"red":   RedTPR,
	"green": GreenTPR,
	"blue":  BlueTPR,
}

// TicksPerRev returns the encoder resolution for a named gearset.
func TicksPerRev(gearset string) (float64, bool) {
	tpr, ok := gearsets[gearset]
	return tpr, ok
}

func Inches(v float64) float64 { return v * MetersPerInch }

func ToInches(m float64) float64 { return m / MetersPerInch }

func Degrees(v float64) float64 { return v * DegreeToRadian }

func ToDegrees(rad float64) float64 { return rad * RadianToDegree }

// WrapAngle folds an angle in radians into [-pi, pi].
func WrapAngle(rad float64) float64 {
	if rad >= -math.Pi && rad <= math.Pi {
		return rad
	}
	rad = math.Mod(rad+math.Pi, 2*math.Pi)
	if rad < 0 {
		rad += 2 * math.Pi
	}
	return rad - math.Pi
}

// StraightScale returns encoder ticks per metre of wheel travel.
func StraightScale(wheelDiameter, tpr float64) float64 {
	return tpr / (math.Pi * wheelDiameter)
}
