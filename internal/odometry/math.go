package odometry

import (
	"math"

	"github.com/san-kum/odomctl/internal/metrics"
)

// ArcStep converts one tick delta into a pose delta, assuming the chassis
// moved along a circular arc during the sample. theta is the heading at the
// start of the sample. diff holds left, right and optionally middle tick
// deltas.
//
// Degenerate geometry never produces NaN: any NaN component of the result is
// replaced by zero.
func ArcStep(scales ChassisScales, theta float64, diff []float64) OdomState {
	var dM float64
	dL := diff[0] / scales.Straight
	dR := diff[1] / scales.Straight
	if len(diff) > 2 {
		dM = diff[2] / scales.middle()
	}

	dTheta := (dL - dR) / scales.WheelTrack

	var offX, offY float64
	if dTheta != 0 {
		chord := 2 * math.Sin(dTheta/2)
		offX = chord * (dM/dTheta + scales.MiddleWheelDistance)
		offY = chord * (dR/dTheta + scales.WheelTrack/2)
	} else {
		offX = dM
		offY = dR
	}

	avgA := theta + dTheta/2
	polarR := math.Hypot(offX, offY)
	polarA := math.Atan2(offY, offX) - avgA

	return OdomState{
		X:     clampNaN(math.Sin(polarA) * polarR),
		Y:     clampNaN(math.Cos(polarA) * polarR),
		Theta: clampNaN(dTheta),
	}
}

func clampNaN(v float64) float64 {
	if math.IsNaN(v) {
		metrics.OdometryNaNClamps.Inc()
		return 0
	}
	return v
}
