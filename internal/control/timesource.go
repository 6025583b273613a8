package control

import (
	"k8s.io/utils/clock"

	"github.com/san-kum/odomctl/internal/timeutil"
)

// TimeSource bundles the time factories a controller needs so that nothing in
// this package constructs a concrete clock itself.
type TimeSource struct {
	NewTimer   func() timeutil.Timer
	NewRate    func() timeutil.Rate
	NewSettled func() *SettledUtil
}

// NewTimeSource builds a TimeSource whose timers, rates and settled
// detectors all read c.
func NewTimeSource(c timeutil.Clock, settle SettleConfig) TimeSource {
	return TimeSource{
		NewTimer: func() timeutil.Timer { return timeutil.NewTimer(c) },
		NewRate:  func() timeutil.Rate { return timeutil.NewRate(c) },
		NewSettled: func() *SettledUtil {
			return NewSettledUtil(timeutil.NewTimer(c), settle)
		},
	}
}

func DefaultTimeSource() TimeSource {
	return NewTimeSource(clock.RealClock{}, DefaultSettleConfig())
}
