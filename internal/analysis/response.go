package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrTooFewSamples  = errors.New("analysis: need at least two samples")
	ErrLengthMismatch = errors.New("analysis: column lengths differ")
	ErrUnknownMetric  = errors.New("analysis: unknown metric")
)

const (
	// DefaultSettleBand is the settling band as a fraction of the step size.
	DefaultSettleBand = 0.02
	// steadyFraction is the tail of the run averaged for steady-state error.
	steadyFraction = 0.1
)

// StepMetrics summarises one step response. Times are in the units of the
// time column, measured from its first sample. RiseTime and SettlingTime are
// NaN when the response never reached the corresponding threshold.
type StepMetrics struct {
	Step             float64 `json:"step"`
	RiseTime         float64 `json:"rise_time"`
	Overshoot        float64 `json:"overshoot"`
	SettlingTime     float64 `json:"settling_time"`
	SteadyStateError float64 `json:"steady_state_error"`
	RMSError         float64 `json:"rms_error"`
	IAE              float64 `json:"iae"`
	ITAE             float64 `json:"itae"`
	ControlEffort    float64 `json:"control_effort"`
	PeakOutput       float64 `json:"peak_output"`
}

// Map returns the metrics keyed by their metric name.
func (m StepMetrics) Map() map[string]float64 {
	return map[string]float64{
		"rise_time":          m.RiseTime,
		"overshoot":          m.Overshoot,
		"settling_time":      m.SettlingTime,
		"steady_state_error": m.SteadyStateError,
		"rms":                m.RMSError,
		"iae":                m.IAE,
		"itae":               m.ITAE,
		"effort":             m.ControlEffort,
		"peak_output":        m.PeakOutput,
	}
}

// checkColumns verifies that every column matches times. outputs may be nil.
func checkColumns(times, targets, inputs, outputs []float64) error {
	n := len(times)
	if n < 2 {
		return ErrTooFewSamples
	}
	if len(targets) != n || len(inputs) != n || (outputs != nil && len(outputs) != n) {
		return fmt.Errorf("%w: times has %d samples", ErrLengthMismatch, n)
	}
	return nil
}

// StepResponse computes step metrics for a response that starts at inputs[0]
// and is driven towards the final target. outputs may be nil, in which case
// the effort metrics are zero.
func StepResponse(times, targets, inputs, outputs []float64) (StepMetrics, error) {
	if err := checkColumns(times, targets, inputs, outputs); err != nil {
		return StepMetrics{}, err
	}

	n := len(times)
	t := make([]float64, n)
	copy(t, times)
	floats.AddConst(-times[0], t)

	target := targets[n-1]
	start := inputs[0]
	step := target - start

	errs := make([]float64, n)
	floats.SubTo(errs, targets, inputs)

	abs := make([]float64, n)
	weighted := make([]float64, n)
	for i, e := range errs {
		abs[i] = math.Abs(e)
		weighted[i] = t[i] * abs[i]
	}

	sq := make([]float64, n)
	floats.MulTo(sq, errs, errs)

	m := StepMetrics{
		Step:         step,
		RiseTime:     math.NaN(),
		SettlingTime: math.NaN(),
		RMSError:     math.Sqrt(stat.Mean(sq, nil)),
		IAE:          integrate.Trapezoidal(t, abs),
		ITAE:         integrate.Trapezoidal(t, weighted),
	}

	tail := int(math.Ceil(float64(n) * steadyFraction))
	m.SteadyStateError = stat.Mean(errs[n-tail:], nil)

	if outputs != nil {
		usq := make([]float64, n)
		floats.MulTo(usq, outputs, outputs)
		m.ControlEffort = integrate.Trapezoidal(t, usq)
		m.PeakOutput = math.Max(math.Abs(floats.Max(outputs)), math.Abs(floats.Min(outputs)))
	}

	if step == 0 {
		m.RiseTime = 0
		m.SettlingTime = 0
		return m, nil
	}

	// Progress is the fraction of the step covered; 1 means on target.
	progress := make([]float64, n)
	for i, y := range inputs {
		progress[i] = (y - start) / step
	}

	t10, t90 := math.NaN(), math.NaN()
	for i, p := range progress {
		if math.IsNaN(t10) && p >= 0.1 {
			t10 = t[i]
		}
		if p >= 0.9 {
			t90 = t[i]
			break
		}
	}
	if !math.IsNaN(t10) && !math.IsNaN(t90) {
		m.RiseTime = t90 - t10
	}

	if peak := floats.Max(progress); peak > 1 {
		m.Overshoot = (peak - 1) * 100
	}

	band := DefaultSettleBand * math.Abs(step)
	last := -1
	for i, e := range errs {
		if math.Abs(e) > band {
			last = i
		}
	}
	switch {
	case last == -1:
		m.SettlingTime = 0
	case last < n-1:
		m.SettlingTime = t[last+1]
	}

	return m, nil
}
