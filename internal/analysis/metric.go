package analysis

import (
	"fmt"
	"math"
	"slices"
)

// MetricNames lists the names accepted by Evaluate.
func MetricNames() []string {
	names := make([]string, 0, 9)
	for name := range (StepMetrics{}).Map() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Evaluate returns the named step metric. A metric that is undefined for the
// response (a rise or settling time never reached) evaluates to +Inf so that
// it always loses when minimised.
func Evaluate(name string, times, targets, inputs, outputs []float64) (float64, error) {
	m, err := StepResponse(times, targets, inputs, outputs)
	if err != nil {
		return 0, err
	}
	v, ok := m.Map()[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	if math.IsNaN(v) {
		return math.Inf(1), nil
	}
	if name == "steady_state_error" {
		v = math.Abs(v)
	}
	return v, nil
}
